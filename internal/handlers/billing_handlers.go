package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/agentdesk/agentdesk-golang/internal/billing"
	"github.com/agentdesk/agentdesk-golang/internal/models"
	"github.com/gin-gonic/gin"
)

//
// --- Billing & Access Handlers ---
//

// GetMyAccess is the handler for GET /v1/billing/access
// It runs the access gate for the caller's company and returns the
// decision, so the frontend can show (or hide) the paywall.
func (h *Handlers) GetMyAccess(c *gin.Context) {
	companyID_raw, _ := c.Get("companyID")
	companyID := companyID_raw.(int64)

	decision := h.Gate.CheckAccess(c.Request.Context(), companyID)

	c.JSON(http.StatusOK, decision)
}

// GetMySubscription is the handler for GET /v1/billing/subscription
// It returns the company's current subscription record.
func (h *Handlers) GetMySubscription(c *gin.Context) {
	companyID_raw, _ := c.Get("companyID")
	companyID := companyID_raw.(int64)

	sub, err := h.Store.GetByCompany(c.Request.Context(), companyID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No subscription found for your company"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

// GetPlans is the handler for GET /v1/billing/plans
// It lists the public plans, for the pricing page.
func (h *Handlers) GetPlans(c *gin.Context) {
	query := `
		SELECT id, name, description, price, billing_type, agents_limit, is_public, created_at, updated_at
		FROM plans
		WHERE is_public = 1
		ORDER BY price ASC`

	rows, err := h.DB.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		var plan models.Plan
		if err := rows.Scan(
			&plan.ID,
			&plan.Name,
			&plan.Description,
			&plan.Price,
			&plan.BillingType,
			&plan.AgentsLimit,
			&plan.IsPublic,
			&plan.CreatedAt,
			&plan.UpdatedAt,
		); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to scan plan row"})
			return
		}
		plans = append(plans, &plan)
	}
	if err = rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error iterating plan rows"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

//
// --- Admin Reconciliation Triggers ---
//

// RunValidateBatch is the handler for POST /v1/admin/billing/validate
// It runs the bulk reconciliation pass on demand, outside the schedule.
func (h *Handlers) RunValidateBatch(c *gin.Context) {
	report, err := h.Reconciler.ValidateBatch(c.Request.Context())
	if err != nil {
		if errors.Is(err, billing.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "A reconciliation run is already in progress"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Batch validation failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// RunSweepExpirations is the handler for POST /v1/admin/billing/sweep
func (h *Handlers) RunSweepExpirations(c *gin.Context) {
	report, err := h.Reconciler.SweepExpirations(c.Request.Context(), time.Now().UTC())
	if err != nil {
		if errors.Is(err, billing.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "A reconciliation run is already in progress"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Expiration sweep failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}
