package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentdesk/agentdesk-golang/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gate fixtures: rand pinned to 0 so sampleRate 1.0 always verifies and
// sampleRate 0.0 never does.
func newTestGate(sampleRate float64) (*AccessGate, *fakeStore, *fakeClient) {
	store := newFakeStore()
	client := newFakeClient()
	rec := NewReconciler(store, client, &fakeNotifier{})
	gate := NewAccessGate(store, rec, sampleRate, func() float64 { return 0 })
	return gate, store, client
}

func TestCheckAccessTrialGrantsWithoutSubscription(t *testing.T) {
	gate, store, client := newTestGate(1.0)

	// Trialing until tomorrow, and no subscription record at all.
	store.companies[10] = &models.Company{
		ID:           10,
		IsTrialing:   true,
		TrialEndDate: timePtr(time.Now().UTC().Add(24 * time.Hour)),
	}

	decision := gate.CheckAccess(context.Background(), 10)

	assert.True(t, decision.Allowed)
	assert.Equal(t, 0, client.callCount(), "trial access must not touch the provider")
}

func TestCheckAccessExpiredTrialFieldIsIgnored(t *testing.T) {
	gate, store, _ := newTestGate(0)

	// IsTrialing is off; the leftover future date means nothing.
	store.companies[10] = &models.Company{
		ID:           10,
		IsTrialing:   false,
		TrialEndDate: timePtr(time.Now().UTC().Add(24 * time.Hour)),
	}

	decision := gate.CheckAccess(context.Background(), 10)

	assert.False(t, decision.Allowed)
	assert.Equal(t, "no subscription", decision.Reason)
}

func TestCheckAccessNoSubscription(t *testing.T) {
	gate, store, _ := newTestGate(1.0)

	store.companies[10] = &models.Company{ID: 10}

	decision := gate.CheckAccess(context.Background(), 10)

	assert.False(t, decision.Allowed)
	assert.Equal(t, "no subscription", decision.Reason)
}

func TestCheckAccessDeniesOnCachedStatusWithoutRemoteCall(t *testing.T) {
	gate, store, client := newTestGate(1.0)

	store.companies[10] = &models.Company{ID: 10}
	store.putSubscription(&models.Subscription{
		ID:                     1,
		CompanyID:              10,
		Status:                 models.StatusOverdue,
		ExternalSubscriptionID: strPtr("sub_1"),
	})

	decision := gate.CheckAccess(context.Background(), 10)

	assert.False(t, decision.Allowed)
	assert.Equal(t, "subscription is overdue", decision.Reason)
	assert.Equal(t, 0, client.callCount(), "non-active cache entries are denied without verification")
}

func TestCheckAccessSampledValidationDenies(t *testing.T) {
	gate, store, client := newTestGate(1.0)

	store.companies[10] = &models.Company{ID: 10}
	store.putSubscription(&models.Subscription{
		ID:                     1,
		CompanyID:              10,
		Status:                 models.StatusActive,
		ExternalSubscriptionID: strPtr("sub_1"),
	})
	client.snapshots["sub_1"] = &ProviderSnapshot{Status: "past_due"}

	decision := gate.CheckAccess(context.Background(), 10)

	assert.False(t, decision.Allowed)
	assert.Equal(t, "subscription is overdue", decision.Reason)

	// The correction was persisted: the cache now holds the truth.
	assert.Equal(t, models.StatusOverdue, store.getSubscription(1).Status)
}

func TestCheckAccessSampledValidationAllows(t *testing.T) {
	gate, store, client := newTestGate(1.0)

	store.companies[10] = &models.Company{ID: 10}
	store.putSubscription(&models.Subscription{
		ID:                     1,
		CompanyID:              10,
		Status:                 models.StatusActive,
		ExternalSubscriptionID: strPtr("sub_1"),
	})
	client.snapshots["sub_1"] = &ProviderSnapshot{Status: "active"}

	decision := gate.CheckAccess(context.Background(), 10)

	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, client.callCount())
}

func TestCheckAccessUnsampledTrustsCache(t *testing.T) {
	gate, store, client := newTestGate(0)

	store.companies[10] = &models.Company{ID: 10}
	store.putSubscription(&models.Subscription{
		ID:                     1,
		CompanyID:              10,
		Status:                 models.StatusActive,
		ExternalSubscriptionID: strPtr("sub_1"),
	})

	decision := gate.CheckAccess(context.Background(), 10)

	assert.True(t, decision.Allowed)
	assert.Equal(t, 0, client.callCount())
}

func TestCheckAccessManualSubscriptionAllowed(t *testing.T) {
	gate, store, client := newTestGate(1.0)

	store.companies[10] = &models.Company{ID: 10}
	store.putSubscription(&models.Subscription{
		ID:        1,
		CompanyID: 10,
		Status:    models.StatusActive,
	})

	decision := gate.CheckAccess(context.Background(), 10)

	assert.True(t, decision.Allowed)
	assert.Equal(t, 0, client.callCount())
}

func TestCheckAccessUnknownCompany(t *testing.T) {
	gate, _, _ := newTestGate(0)

	decision := gate.CheckAccess(context.Background(), 999)

	assert.False(t, decision.Allowed)
	assert.Equal(t, "company not found", decision.Reason)
}

func TestCheckAccessFailsClosedOnStoreError(t *testing.T) {
	gate, store, _ := newTestGate(0)

	store.companies[10] = &models.Company{ID: 10}
	store.getByCompanyErr = errors.New("connection reset")

	decision := gate.CheckAccess(context.Background(), 10)

	assert.False(t, decision.Allowed)
	assert.Equal(t, reasonRetryLater, decision.Reason)
}

func TestCheckAccessFailsClosedOnProviderError(t *testing.T) {
	gate, store, client := newTestGate(1.0)

	store.companies[10] = &models.Company{ID: 10}
	store.putSubscription(&models.Subscription{
		ID:                     1,
		CompanyID:              10,
		Status:                 models.StatusActive,
		ExternalSubscriptionID: strPtr("sub_1"),
	})
	client.errs["sub_1"] = &TransientError{Err: errors.New("gateway timeout")}

	decision := gate.CheckAccess(context.Background(), 10)

	assert.False(t, decision.Allowed)
	assert.Equal(t, reasonRetryLater, decision.Reason)

	// Fail-closed must not corrupt the cache either.
	require.Equal(t, models.StatusActive, store.getSubscription(1).Status)
}
