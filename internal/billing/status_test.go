package billing

import (
	"testing"

	"github.com/agentdesk/agentdesk-golang/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		provider string
		want     models.SubscriptionStatus
	}{
		{"active", models.StatusActive},
		{"past_due", models.StatusOverdue},
		{"unpaid", models.StatusOverdue},
		{"canceled", models.StatusCanceled},
		{"incomplete_expired", models.StatusExpired},

		// Unknown vocabulary parks in pending, never active.
		{"trialing", models.StatusPending},
		{"paused", models.StatusPending},
		{"incomplete", models.StatusPending},
		{"", models.StatusPending},
		{"some_future_status", models.StatusPending},

		// Case-sensitive on the provider's canonical strings.
		{"Active", models.StatusPending},
		{"PAST_DUE", models.StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			assert.Equal(t, tt.want, MapProviderStatus(tt.provider))
		})
	}
}

func TestMapProviderStatusDeterministic(t *testing.T) {
	// Same input, same output, every time.
	for _, status := range []string{"active", "past_due", "garbage"} {
		first := MapProviderStatus(status)
		for i := 0; i < 100; i++ {
			assert.Equal(t, first, MapProviderStatus(status))
		}
	}
}
