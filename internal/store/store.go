// Package store persists budgets, signals and run audit rows. Postgres is
// the production backend; the memory backend serves tests and ephemeral
// setups.
package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Elore26/assistant/internal/config"
	"github.com/Elore26/assistant/internal/guardrail"
	"github.com/Elore26/assistant/internal/react"
	"github.com/Elore26/assistant/internal/signal"
)

// Store is the combined persistence surface of the kernel.
type Store interface {
	guardrail.BudgetStore
	signal.SignalStore
	react.RunStore
	Close() error
}

// Open creates the store selected by configuration.
func Open(cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		return OpenPostgres(cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
