package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/agentdesk/agentdesk-golang/internal/models"
)

// AccessDecision is what every protected operation gets back from the gate.
// The gate never returns an error: internal failures come back as a denial
// with a retry-later reason, because failing open on a billing check is how
// free product happens.
type AccessDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// AccessGate decides whether a company's subscription currently permits
// access. It reads the local cache first and only pays for a provider
// round-trip on a sampled fraction of requests that actually need one.
type AccessGate struct {
	store      Store
	reconciler *Reconciler

	// sampleRate is the probability (0.0–1.0) that an active, externally
	// verifiable subscription is live-checked on this request. randFloat
	// is injectable so tests can pin either branch.
	sampleRate float64
	randFloat  func() float64
}

// NewAccessGate builds a gate. A nil randFloat falls back to math/rand.
func NewAccessGate(store Store, reconciler *Reconciler, sampleRate float64, randFloat func() float64) *AccessGate {
	if randFloat == nil {
		randFloat = rand.Float64
	}
	return &AccessGate{
		store:      store,
		reconciler: reconciler,
		sampleRate: sampleRate,
		randFloat:  randFloat,
	}
}

const reasonRetryLater = "subscription check temporarily unavailable, please try again"

// CheckAccess runs the decision ladder. First match wins:
//
//  1. company in trial with the end date in the future — allowed, no
//     remote call
//  2. no subscription record — denied
//  3. stored status is not active — denied on the cached status alone,
//     no remote call
//  4. active with an external ID — sampled live validation; unsampled
//     requests trust the cache
//  5. active without an external ID — allowed (manually managed)
func (g *AccessGate) CheckAccess(ctx context.Context, companyID int64) AccessDecision {
	company, err := g.store.GetCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, ErrCompanyNotFound) {
			return AccessDecision{Allowed: false, Reason: "company not found"}
		}
		log.Printf("WARNING: access check for company %d failed reading company: %v", companyID, err)
		return AccessDecision{Allowed: false, Reason: reasonRetryLater}
	}

	// 1. Trial grant. Independent of any subscription record.
	if company.InTrialAt(time.Now().UTC()) {
		return AccessDecision{Allowed: true}
	}

	sub, err := g.store.GetByCompany(ctx, companyID)
	if err != nil {
		// 2. Missing record is a clean denial, anything else fails
		// closed.
		if errors.Is(err, ErrSubscriptionNotFound) {
			return AccessDecision{Allowed: false, Reason: "no subscription"}
		}
		log.Printf("WARNING: access check for company %d failed reading subscription: %v", companyID, err)
		return AccessDecision{Allowed: false, Reason: reasonRetryLater}
	}

	// 3. A record the cache already says is not active is denied without
	// spending a provider call on it.
	if sub.Status != models.StatusActive {
		return AccessDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("subscription is %s", sub.Status),
		}
	}

	// 5. Active with no external ID: manually managed, trusted by design.
	if sub.ExternalSubscriptionID == nil {
		return AccessDecision{Allowed: true}
	}

	// 4. Active and verifiable. Only a sampled fraction of requests pays
	// for the provider round-trip; the rest trust the cache and let the
	// scheduled reconciliation catch drift.
	if g.sampleRate <= 0 || g.randFloat() >= g.sampleRate {
		return AccessDecision{Allowed: true}
	}

	result, err := g.reconciler.ValidateOne(ctx, sub.ID)
	if err != nil {
		log.Printf("WARNING: sampled validation for subscription %d failed: %v", sub.ID, err)
		return AccessDecision{Allowed: false, Reason: reasonRetryLater}
	}

	if !result.IsValid {
		return AccessDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("subscription is %s", result.ActualStatus),
		}
	}

	return AccessDecision{Allowed: true}
}
