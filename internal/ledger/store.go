package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/model"
)

// State is the persisted ledger contents loaded at startup.
type State struct {
	Seeded bool // a budget row exists
	Cash   decimal.Decimal
	Longs  []model.Position
	Shorts []model.ShortPosition
}

// Change is one atomic ledger mutation. A Store must apply all of it or none.
type Change struct {
	Cash         decimal.Decimal
	PutLongs     []model.Position // insert or replace by ID
	DeleteLongs  []string
	PutShorts    []model.ShortPosition
	DeleteShorts []string
	Transactions []model.Transaction // appended in order
}

// Store persists ledger state. Implementations: MemoryStore, sqlite.LedgerStore,
// postgres.LedgerStore.
type Store interface {
	// Load reads the full ledger state.
	Load(ctx context.Context) (State, error)

	// Seed writes the initial budget row if none exists.
	Seed(ctx context.Context, cash decimal.Decimal) error

	// Commit applies a change in one transaction and returns the assigned
	// transaction IDs in the order of ch.Transactions.
	Commit(ctx context.Context, ch Change) ([]int64, error)

	// Transactions returns the newest transactions first. An empty ticker
	// matches all tickers; limit <= 0 means no limit.
	Transactions(ctx context.Context, ticker string, limit int) ([]model.Transaction, error)

	// Close releases underlying resources.
	Close() error
}
