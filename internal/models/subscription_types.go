package models

import "time"

// SubscriptionStatus is the internal lifecycle state of a company subscription.
// It is stored as a plain string in the 'subscriptions' table.
type SubscriptionStatus string

const (
	// StatusPending covers brand-new subscriptions and any provider status
	// we do not recognise. Pending never grants access on its own.
	StatusPending SubscriptionStatus = "pending"
	// StatusActive is the only status the access gate will grant on.
	StatusActive SubscriptionStatus = "active"
	// StatusOverdue means a payment was missed but the subscription is
	// still inside the grace window.
	StatusOverdue SubscriptionStatus = "overdue"
	// StatusCanceled and StatusExpired are terminal. The row is kept for
	// audit; reactivation means creating a fresh subscription.
	StatusCanceled SubscriptionStatus = "canceled"
	StatusExpired  SubscriptionStatus = "expired"
)

// IsTerminal reports whether the status is one of the two end states.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == StatusCanceled || s == StatusExpired
}

// Subscription defines the model for the 'subscriptions' table.
// There is exactly one row per company; it is a local cache of whatever
// the billing provider believes, kept honest by the reconciler.
type Subscription struct {
	ID        int64              `json:"id" db:"id"`
	CompanyID int64              `json:"companyId" db:"company_id"`
	Status    SubscriptionStatus `json:"status" db:"status"`
	PlanID    int64              `json:"planId" db:"plan_id"`

	// BillingType is descriptive only (e.g. "monthly", "yearly").
	// Nothing in the reconciler interprets it.
	BillingType string `json:"billingType" db:"billing_type"`

	// ExternalSubscriptionID points into the billing provider.
	// Nil means the subscription is managed by hand and cannot be
	// verified remotely.
	ExternalSubscriptionID *string `json:"externalSubscriptionId,omitempty" db:"external_subscription_id"`

	// NextDueDate is only meaningful while the status is active or
	// overdue. EndDate is set if and only if the status is terminal.
	NextDueDate *time.Time `json:"nextDueDate,omitempty" db:"next_due_date"`
	EndDate     *time.Time `json:"endDate,omitempty" db:"end_date"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	// Populated by handlers for the billing view; not a DB column.
	PlanName string `json:"planName,omitempty" db:"-"`
}
