package billing

import "github.com/agentdesk/agentdesk-golang/internal/models"

// Provider status strings we recognise. These are the provider's canonical
// values and the comparison is case-sensitive on purpose: a provider that
// starts sending "Active" is a provider whose API changed under us, and we
// would rather park that record in pending than guess.
const (
	providerActive            = "active"
	providerPastDue           = "past_due"
	providerUnpaid            = "unpaid"
	providerCanceled          = "canceled"
	providerIncompleteExpired = "incomplete_expired"
)

// MapProviderStatus translates the billing provider's status vocabulary into
// our internal subscription status. It is a pure function and total: every
// input string maps to exactly one internal status.
//
// Unknown statuses (including new ones the provider may introduce, like
// "trialing" or "paused") map to pending, NOT active. Pending is the least
// privileged non-terminal state: it never grants access, but it also never
// permanently closes the subscription.
func MapProviderStatus(providerStatus string) models.SubscriptionStatus {
	switch providerStatus {
	case providerActive:
		return models.StatusActive
	case providerPastDue, providerUnpaid:
		return models.StatusOverdue
	case providerCanceled:
		return models.StatusCanceled
	case providerIncompleteExpired:
		return models.StatusExpired
	default:
		return models.StatusPending
	}
}
