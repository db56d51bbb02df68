package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agentdesk/agentdesk-golang/internal/models"
)

// Sentinel errors for missing rows. Handlers and the gate use errors.Is on
// these to tell "record does not exist" apart from real database failures.
var (
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
	ErrCompanyNotFound      = errors.New("billing: company not found")
)

// Store is the persistence capability of the reconciliation core. The
// reconciler and the access gate only ever talk to this interface; the
// MySQL implementation below is what production wires in.
type Store interface {
	GetByID(ctx context.Context, id int64) (*models.Subscription, error)
	GetByCompany(ctx context.Context, companyID int64) (*models.Subscription, error)

	// UpdateStatus writes status, end_date and updated_at in a single
	// statement. Passing a nil endDate clears the column, so the
	// "end_date set iff status is terminal" invariant is restored
	// atomically with every status change.
	UpdateStatus(ctx context.Context, id int64, status models.SubscriptionStatus, endDate *time.Time) error

	// UpdateNextDueDate refreshes the renewal date without touching the
	// status. Used by the sweep's self-heal path.
	UpdateNextDueDate(ctx context.Context, id int64, nextDueDate time.Time) error

	// ListActiveExternal returns every subscription currently marked
	// active that carries an external provider ID — the bulk
	// reconciliation working set.
	ListActiveExternal(ctx context.Context) ([]*models.Subscription, error)

	// ListActiveDueBefore returns active subscriptions whose next due
	// date is before the given instant.
	ListActiveDueBefore(ctx context.Context, cutoff time.Time) ([]*models.Subscription, error)

	// ListOverdueDueBefore returns overdue subscriptions whose next due
	// date is before the given instant (the grace-period cutoff).
	ListOverdueDueBefore(ctx context.Context, cutoff time.Time) ([]*models.Subscription, error)

	GetCompany(ctx context.Context, companyID int64) (*models.Company, error)
	ListCompanyUserIDs(ctx context.Context, companyID int64) ([]int64, error)
}

// MySQLStore implements Store on top of the shared *sql.DB pool.
type MySQLStore struct {
	DB *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{DB: db}
}

// subscriptionColumns is the SELECT list every subscription query shares,
// so the scan order can never drift between queries.
const subscriptionColumns = `
	id, company_id, status, plan_id, billing_type,
	external_subscription_id, next_due_date, end_date,
	created_at, updated_at`

// scanSubscription reads one row into a model, converting the three
// nullable columns to pointers.
func scanSubscription(row interface{ Scan(...any) error }) (*models.Subscription, error) {
	var sub models.Subscription
	var externalID sql.NullString
	var nextDue, endDate sql.NullTime

	err := row.Scan(
		&sub.ID,
		&sub.CompanyID,
		&sub.Status,
		&sub.PlanID,
		&sub.BillingType,
		&externalID,
		&nextDue,
		&endDate,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if externalID.Valid {
		sub.ExternalSubscriptionID = &externalID.String
	}
	if nextDue.Valid {
		t := nextDue.Time
		sub.NextDueDate = &t
	}
	if endDate.Valid {
		t := endDate.Time
		sub.EndDate = &t
	}

	return &sub, nil
}

func (s *MySQLStore) GetByID(ctx context.Context, id int64) (*models.Subscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE id = ?`

	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription %d: %w", id, err)
	}
	return sub, nil
}

func (s *MySQLStore) GetByCompany(ctx context.Context, companyID int64) (*models.Subscription, error) {
	// Companies hold at most one live subscription; if old terminal rows
	// exist alongside it we want the newest record.
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE company_id = ?
		ORDER BY created_at DESC
		LIMIT 1`

	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, companyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription for company %d: %w", companyID, err)
	}
	return sub, nil
}

func (s *MySQLStore) UpdateStatus(ctx context.Context, id int64, status models.SubscriptionStatus, endDate *time.Time) error {
	var nullEnd sql.NullTime
	if endDate != nil {
		nullEnd = sql.NullTime{Time: *endDate, Valid: true}
	}

	query := `
		UPDATE subscriptions
		SET status = ?, end_date = ?, updated_at = ?
		WHERE id = ?`

	result, err := s.DB.ExecContext(ctx, query, string(status), nullEnd, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update subscription %d status: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update subscription %d status: %w", id, err)
	}
	if rowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *MySQLStore) UpdateNextDueDate(ctx context.Context, id int64, nextDueDate time.Time) error {
	query := `
		UPDATE subscriptions
		SET next_due_date = ?, updated_at = ?
		WHERE id = ?`

	_, err := s.DB.ExecContext(ctx, query, nextDueDate.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update subscription %d due date: %w", id, err)
	}
	return nil
}

func (s *MySQLStore) ListActiveExternal(ctx context.Context) ([]*models.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'active' AND external_subscription_id IS NOT NULL`

	return s.list(ctx, query)
}

func (s *MySQLStore) ListActiveDueBefore(ctx context.Context, cutoff time.Time) ([]*models.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'active' AND next_due_date IS NOT NULL AND next_due_date < ?`

	return s.list(ctx, query, cutoff.UTC())
}

func (s *MySQLStore) ListOverdueDueBefore(ctx context.Context, cutoff time.Time) ([]*models.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'overdue' AND next_due_date IS NOT NULL AND next_due_date < ?`

	return s.list(ctx, query, cutoff.UTC())
}

func (s *MySQLStore) list(ctx context.Context, query string, args ...any) ([]*models.Subscription, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription row: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscription rows: %w", err)
	}
	return subs, nil
}

func (s *MySQLStore) GetCompany(ctx context.Context, companyID int64) (*models.Company, error) {
	query := `
		SELECT id, name, is_trialing, trial_end_date, created_at, updated_at
		FROM companies
		WHERE id = ?`

	var company models.Company
	var trialEnd sql.NullTime

	err := s.DB.QueryRowContext(ctx, query, companyID).Scan(
		&company.ID,
		&company.Name,
		&company.IsTrialing,
		&trialEnd,
		&company.CreatedAt,
		&company.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCompanyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get company %d: %w", companyID, err)
	}

	if trialEnd.Valid {
		t := trialEnd.Time
		company.TrialEndDate = &t
	}
	return &company, nil
}

func (s *MySQLStore) ListCompanyUserIDs(ctx context.Context, companyID int64) ([]int64, error) {
	query := `SELECT id FROM users WHERE company_id = ?`

	rows, err := s.DB.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("list users for company %d: %w", companyID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return ids, nil
}
