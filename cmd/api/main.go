package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/agentdesk/agentdesk-golang/internal/agent"
	"github.com/agentdesk/agentdesk-golang/internal/billing"
	"github.com/agentdesk/agentdesk-golang/internal/database"
	"github.com/agentdesk/agentdesk-golang/internal/handlers"
	"github.com/agentdesk/agentdesk-golang/internal/routes"
	"github.com/joho/godotenv"
)

func main() {
	// 0. --- Load Environment Variables (.env) ---
	if err := godotenv.Load(); err != nil {
		log.Println("WARNING: Could not find or load .env file. Relying on system environment variables.")
	}

	// 1. --- Database Connection ---
	db, err := database.OpenDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// 2. --- Billing Core ---
	stripeKey := os.Getenv("STRIPE_API_KEY")
	if stripeKey == "" {
		log.Fatal("CRITICAL ERROR: STRIPE_API_KEY environment variable is not set.")
	}

	store := billing.NewMySQLStore(db)
	client := billing.NewStripeClient(stripeKey, 5*time.Second)
	notifier := billing.NewDBNotifier(db)
	reconciler := billing.NewReconciler(store, client, notifier)

	// Fraction of access checks that pay for a live provider round-trip.
	sampleRate := 0.1
	if raw := os.Getenv("ACCESS_CHECK_SAMPLE_RATE"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			log.Fatalf("Invalid ACCESS_CHECK_SAMPLE_RATE %q: must be a number between 0 and 1", raw)
		}
		sampleRate = parsed
	}
	gate := billing.NewAccessGate(store, reconciler, sampleRate, nil)

	// 3. --- Agent Service Initialization ---
	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		log.Fatal("CRITICAL ERROR: GEMINI_API_KEY environment variable is not set.")
	}

	agentService, err := agent.NewService(context.Background(), geminiKey)
	if err != nil {
		log.Fatalf("Failed to initialize agent service: %v", err)
	}
	defer agentService.Close()

	// --- Application Setup ---
	// We inject ALL dependencies into the Handlers struct.
	app := &handlers.Handlers{
		DB:         db,
		Store:      store,
		Gate:       gate,
		Reconciler: reconciler,
		Agent:      agentService,
	}

	// --- 4. Background Workers (Cron) ---
	// Two tickers drive the reconciliation engine independently of any
	// user request. The reconciler itself refuses overlapping runs, so a
	// slow sweep simply makes the next tick a no-op.
	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()

		log.Println("Background worker started: bulk subscription validation every 6h")
		for range ticker.C {
			report, err := reconciler.ValidateBatch(context.Background())
			if err != nil {
				if errors.Is(err, billing.ErrRunInProgress) {
					log.Println("Skipping bulk validation: a run is already in progress")
					continue
				}
				log.Printf("ERROR: bulk subscription validation failed: %v", err)
				continue
			}
			log.Printf("Bulk validation done: checked=%d invalid=%d updated=%d errors=%d",
				report.Checked, report.Invalid, report.Updated, len(report.Errors))
		}
	}()

	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		log.Println("Background worker started: expiration sweep every 1h")
		for range ticker.C {
			report, err := reconciler.SweepExpirations(context.Background(), time.Now().UTC())
			if err != nil {
				if errors.Is(err, billing.ErrRunInProgress) {
					log.Println("Skipping expiration sweep: a run is already in progress")
					continue
				}
				log.Printf("ERROR: expiration sweep failed: %v", err)
				continue
			}
			log.Printf("Expiration sweep done: checked=%d expired=%d updated=%d errors=%d",
				report.Checked, report.Expired, report.Updated, len(report.Errors))
		}
	}()

	// --- Router Setup ---
	router := routes.SetupRouter(app)

	// --- Start Server ---
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Starting AgentDesk API server on port %s...", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
