package handlers

import (
	"database/sql"

	"github.com/agentdesk/agentdesk-golang/internal/agent"
	"github.com/agentdesk/agentdesk-golang/internal/billing"
)

// Handlers struct holds all dependencies for our handlers.
type Handlers struct {
	DB         *sql.DB
	Store      billing.Store
	Gate       *billing.AccessGate
	Reconciler *billing.Reconciler
	Agent      *agent.Service
}
