package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Notification severities. These end up in the 'notifications' table and
// drive styling on the frontend, nothing more.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Notifier is a fire-and-forget sink for user-facing status messages.
// The reconciler calls it on terminal transitions but never depends on it
// succeeding: a lost notification is an annoyance, a blocked sweep is an
// outage.
type Notifier interface {
	Notify(ctx context.Context, userID int64, title, message, severity string) error
}

// DBNotifier writes notifications straight into the 'notifications' table,
// where the frontend polls them from.
type DBNotifier struct {
	DB *sql.DB
}

func NewDBNotifier(db *sql.DB) *DBNotifier {
	return &DBNotifier{DB: db}
}

func (n *DBNotifier) Notify(ctx context.Context, userID int64, title, message, severity string) error {
	query := `
		INSERT INTO notifications
		(user_id, title, message, severity, is_read, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`

	_, err := n.DB.ExecContext(ctx, query, userID, title, message, severity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add notification: %w", err)
	}
	return nil
}
