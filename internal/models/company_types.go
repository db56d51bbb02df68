package models

import "time"

// Company defines the model for the 'companies' table.
// A company is the unit of billing: users belong to a company, and the
// company owns at most one subscription at a time.
type Company struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	// Trial fields. TrialEndDate only means anything while IsTrialing is
	// true; once the flag is off the date is ignored everywhere.
	IsTrialing   bool       `json:"isTrialing" db:"is_trialing"`
	TrialEndDate *time.Time `json:"trialEndDate,omitempty" db:"trial_end_date"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// InTrialAt reports whether the company's trial grant covers the given
// instant. The end date must be strictly in the future.
func (c *Company) InTrialAt(now time.Time) bool {
	if !c.IsTrialing || c.TrialEndDate == nil {
		return false
	}
	return c.TrialEndDate.After(now)
}
