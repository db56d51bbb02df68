package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"
)

// ErrProviderNotFound means the billing provider has no record for the
// external subscription ID we hold. That is a structural inconsistency
// (someone deleted the subscription on the provider side, or our ID is
// garbage), not a transient failure.
var ErrProviderNotFound = errors.New("billing: subscription not found at provider")

// TransientError wraps failures where the provider could not be reached or
// answered with a server error. Callers should treat it as retry-eligible
// and must not change local state because of it.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("billing: transient provider error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ProviderSnapshot is the provider's current view of one subscription.
// Status is the provider's own vocabulary; run it through MapProviderStatus
// before comparing to anything local. An inactive subscription is a normal
// snapshot with an inactive status, never an error.
type ProviderSnapshot struct {
	Status           string
	CurrentPeriodEnd time.Time
}

// ProviderClient is the read capability this core needs from the billing
// authority. Implementations must distinguish "no such record"
// (ErrProviderNotFound) from "could not reach the provider" (TransientError).
type ProviderClient interface {
	Retrieve(ctx context.Context, externalID string) (*ProviderSnapshot, error)
}

// StripeClient implements ProviderClient against the Stripe API.
type StripeClient struct {
	timeout time.Duration
}

// NewStripeClient sets the global Stripe API key and returns a client.
// Each Retrieve call is bounded by the given timeout; zero means 5 seconds.
func NewStripeClient(apiKey string, timeout time.Duration) *StripeClient {
	stripe.Key = apiKey
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StripeClient{timeout: timeout}
}

// Retrieve fetches the subscription from Stripe and reduces it to the
// snapshot shape the reconciler works with.
func (c *StripeClient) Retrieve(ctx context.Context, externalID string) (*ProviderSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(externalID, params)
	if err != nil {
		return nil, classifyStripeErr(err)
	}

	snap := &ProviderSnapshot{Status: string(sub.Status)}

	if sub.Items == nil {
		return snap, nil
	}

	// Stripe moved current_period_end onto the subscription items; take
	// the latest period end across items as the renewal date.
	for _, item := range sub.Items.Data {
		end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
		if end.After(snap.CurrentPeriodEnd) {
			snap.CurrentPeriodEnd = end
		}
	}

	return snap, nil
}

// classifyStripeErr maps a Stripe SDK error onto our three-way taxonomy.
// A 404 means the record is gone; everything else (timeouts, 5xx, rate
// limits, connection resets) is transient.
func classifyStripeErr(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound {
			return ErrProviderNotFound
		}
	}
	return &TransientError{Err: err}
}
