package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentdesk/agentdesk-golang/internal/models"
)

// ErrRunInProgress is returned when a batch validation or expiration sweep
// is started while another run is still going. The scheduled job treats it
// as "skip this tick"; overlapping runs would double-fire notifications and
// race on the same rows.
var ErrRunInProgress = errors.New("billing: reconciliation run already in progress")

const (
	// defaultGracePeriod is how long a subscription may sit in overdue
	// before the sweep forces it to expired, provider reachable or not.
	defaultGracePeriod = 30 * 24 * time.Hour

	// defaultWorkers bounds the per-subscription provider calls a batch
	// run makes in parallel.
	defaultWorkers = 4
)

// Reconciler keeps the local subscription cache converging toward the
// billing provider's truth. It validates single records on demand (for the
// access gate) and runs the scheduled batch/sweep passes.
type Reconciler struct {
	store    Store
	client   ProviderClient
	notifier Notifier

	gracePeriod time.Duration
	workers     int

	// running guards the scheduled entry points. Single record
	// validations are not guarded: they are idempotent functions of
	// remote truth, so concurrent calls converge on the same write.
	running atomic.Bool
}

func NewReconciler(store Store, client ProviderClient, notifier Notifier) *Reconciler {
	return &Reconciler{
		store:       store,
		client:      client,
		notifier:    notifier,
		gracePeriod: defaultGracePeriod,
		workers:     defaultWorkers,
	}
}

// ValidationResult is the outcome of validating one subscription against
// the provider.
type ValidationResult struct {
	// IsValid is true only when the provider reports active AND the
	// local record already agreed. A record that "matches" on overdue
	// is drift-free but still not valid.
	IsValid bool

	// ActualStatus is the mapped provider status (or the stored status
	// when the record has no external ID and cannot be verified).
	ActualStatus models.SubscriptionStatus

	// Updated reports whether a self-healing write happened.
	Updated bool

	Detail string
}

// BatchError records one subscription's failure inside a batch or sweep
// run without aborting it.
type BatchError struct {
	SubscriptionID int64  `json:"subscriptionId"`
	Error          string `json:"error"`
}

// BatchReport aggregates a bulk validation run.
type BatchReport struct {
	Checked int          `json:"checked"`
	Invalid int          `json:"invalid"`
	Updated int          `json:"updated"`
	Errors  []BatchError `json:"errors"`
}

// SweepReport aggregates an expiration sweep.
type SweepReport struct {
	Checked int          `json:"checked"`
	Expired int          `json:"expired"`
	Updated int          `json:"updated"`
	Errors  []BatchError `json:"errors"`
}

// ValidateOne compares one local subscription against the provider's
// current truth and heals any drift it finds.
//
// Records without an external subscription ID are the escape hatch for
// manually administered subscriptions: there is nothing to verify against,
// so the local status is trusted as-is.
func (r *Reconciler) ValidateOne(ctx context.Context, subscriptionID int64) (ValidationResult, error) {
	sub, err := r.store.GetByID(ctx, subscriptionID)
	if err != nil {
		return ValidationResult{}, err
	}

	if sub.ExternalSubscriptionID == nil {
		return ValidationResult{
			IsValid:      sub.Status == models.StatusActive,
			ActualStatus: sub.Status,
			Detail:       "no external subscription id, trusting local status",
		}, nil
	}

	snap, err := r.client.Retrieve(ctx, *sub.ExternalSubscriptionID)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("validate subscription %d: %w", subscriptionID, err)
	}

	mapped := MapProviderStatus(snap.Status)
	result := ValidationResult{
		// Valid means a match on active, nothing less.
		IsValid:      mapped == models.StatusActive && sub.Status == mapped,
		ActualStatus: mapped,
	}

	if sub.Status == mapped {
		result.Detail = "local status matches provider"
		return result, nil
	}

	// Drift: the provider's word wins. The status and end_date columns
	// move together in one statement, and the write is allowed to finish
	// even if the caller's context gets cancelled mid-flight.
	writeCtx := context.WithoutCancel(ctx)

	var endDate *time.Time
	if mapped.IsTerminal() {
		now := time.Now().UTC()
		endDate = &now
	}

	if err := r.store.UpdateStatus(writeCtx, sub.ID, mapped, endDate); err != nil {
		return result, fmt.Errorf("heal subscription %d: %w", sub.ID, err)
	}

	result.Updated = true
	result.Detail = fmt.Sprintf("status corrected from %s to %s", sub.Status, mapped)

	if mapped.IsTerminal() && !sub.Status.IsTerminal() {
		r.notifyCompany(writeCtx, sub.CompanyID, mapped)
	}

	return result, nil
}

// ValidateBatch runs ValidateOne over every active subscription that has an
// external ID, using a bounded worker pool for the network-bound checks.
// One poisoned record never aborts the run: its failure lands in the
// report's error list and the loop moves on.
func (r *Reconciler) ValidateBatch(ctx context.Context) (BatchReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return BatchReport{}, ErrRunInProgress
	}
	defer r.running.Store(false)

	var report BatchReport

	subs, err := r.store.ListActiveExternal(ctx)
	if err != nil {
		return report, err
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan *models.Subscription)

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range jobs {
				res, err := r.ValidateOne(ctx, sub.ID)

				mu.Lock()
				report.Checked++
				if err != nil {
					report.Errors = append(report.Errors, BatchError{
						SubscriptionID: sub.ID,
						Error:          err.Error(),
					})
				} else {
					if !res.IsValid {
						report.Invalid++
					}
					if res.Updated {
						report.Updated++
					}
				}
				mu.Unlock()
			}
		}()
	}

	// On cancellation, stop handing out new work. Whatever is already in
	// a worker's hands finishes its write.
dispatch:
	for _, sub := range subs {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- sub:
		}
	}
	close(jobs)
	wg.Wait()

	return report, nil
}

// SweepExpirations expires subscriptions whose due dates have lapsed. Two
// disjoint sets are processed:
//
// Set A — active subscriptions past their next due date. When the record
// has an external ID we ask the provider first: a locally stale due date on
// a subscription the provider still considers active is healed in place
// (the due date is refreshed, nothing expires). If the provider is
// unreachable, has no record, or confirms inactivity, the subscription is
// expired.
//
// Set B — overdue subscriptions whose due date is older than the grace
// period. These expire unconditionally, provider reachable or not. Past
// the grace window we fail toward restriction.
func (r *Reconciler) SweepExpirations(ctx context.Context, now time.Time) (SweepReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return SweepReport{}, ErrRunInProgress
	}
	defer r.running.Store(false)

	var report SweepReport

	// Set A: active and past due.
	due, err := r.store.ListActiveDueBefore(ctx, now)
	if err != nil {
		return report, err
	}

	for _, sub := range due {
		if ctx.Err() != nil {
			break
		}
		report.Checked++

		if sub.ExternalSubscriptionID != nil {
			snap, err := r.client.Retrieve(ctx, *sub.ExternalSubscriptionID)
			if err == nil &&
				MapProviderStatus(snap.Status) == models.StatusActive &&
				snap.CurrentPeriodEnd.After(now) {
				// The provider still says active with a future
				// renewal: our due date was stale, not the
				// subscription.
				if err := r.store.UpdateNextDueDate(context.WithoutCancel(ctx), sub.ID, snap.CurrentPeriodEnd); err != nil {
					report.Errors = append(report.Errors, BatchError{
						SubscriptionID: sub.ID,
						Error:          err.Error(),
					})
					continue
				}
				report.Updated++
				continue
			}
		}

		r.expire(ctx, sub, now, &report)
	}

	// Set B: overdue beyond the grace period.
	lapsed, err := r.store.ListOverdueDueBefore(ctx, now.Add(-r.gracePeriod))
	if err != nil {
		return report, err
	}

	for _, sub := range lapsed {
		if ctx.Err() != nil {
			break
		}
		report.Checked++
		r.expire(ctx, sub, now, &report)
	}

	return report, nil
}

// expire marks one subscription expired, stamping end_date in the same
// write, and notifies every user of the owning company.
func (r *Reconciler) expire(ctx context.Context, sub *models.Subscription, now time.Time, report *SweepReport) {
	endDate := now.UTC()
	if err := r.store.UpdateStatus(context.WithoutCancel(ctx), sub.ID, models.StatusExpired, &endDate); err != nil {
		report.Errors = append(report.Errors, BatchError{
			SubscriptionID: sub.ID,
			Error:          err.Error(),
		})
		return
	}

	report.Expired++
	report.Updated++
	r.notifyCompany(context.WithoutCancel(ctx), sub.CompanyID, models.StatusExpired)
}

// notifyCompany fans a status-change message out to every user of the
// company. Notification failures are logged and swallowed: the state
// change already happened and must not be rolled back or re-reported
// because a message could not be written.
func (r *Reconciler) notifyCompany(ctx context.Context, companyID int64, status models.SubscriptionStatus) {
	userIDs, err := r.store.ListCompanyUserIDs(ctx, companyID)
	if err != nil {
		log.Printf("WARNING: could not list users of company %d for notification: %v", companyID, err)
		return
	}

	var title, message string
	switch status {
	case models.StatusExpired:
		title = "Subscription expired"
		message = "Your company's subscription has expired. Renew it to regain access to your agents."
	case models.StatusCanceled:
		title = "Subscription canceled"
		message = "Your company's subscription has been canceled. Contact support if this was unexpected."
	default:
		return
	}

	for _, userID := range userIDs {
		if err := r.notifier.Notify(ctx, userID, title, message, SeverityWarning); err != nil {
			log.Printf("WARNING: failed to notify user %d about subscription %s: %v", userID, status, err)
		}
	}
}
