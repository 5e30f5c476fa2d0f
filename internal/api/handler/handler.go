package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/vaulty/internal/ledger"
)

// LedgerOpener opens named ledgers
type LedgerOpener interface {
	Open(ctx context.Context, name string) (ledger.Store, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Ledgers LedgerOpener
	// HealthCheck reports whether the ledger backend is reachable; nil means always healthy
	HealthCheck func(ctx context.Context) error
}

// LedgerHandler serves read-only ledger views
type LedgerHandler struct {
	logger  *slog.Logger
	ledgers LedgerOpener
}

// NewLedgerHandler creates a new LedgerHandler instance
func NewLedgerHandler(deps *Dependencies) *LedgerHandler {
	return &LedgerHandler{
		logger:  deps.Logger,
		ledgers: deps.Ledgers,
	}
}
