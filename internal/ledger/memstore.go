package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/model"
)

// MemoryStore keeps ledger state in process memory. Used by the backtester
// and tests; contents are lost on exit.
type MemoryStore struct {
	mu     sync.Mutex
	seeded bool
	cash   decimal.Decimal
	longs  map[string]model.Position
	shorts map[string]model.ShortPosition
	order  []string // lot IDs in insertion order
	txs    []model.Transaction
	nextID int64

	// FailCommit, when set, is returned by the next Commit (tests).
	FailCommit error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		longs:  make(map[string]model.Position),
		shorts: make(map[string]model.ShortPosition),
		nextID: 1,
	}
}

func (m *MemoryStore) Load(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{Seeded: m.seeded, Cash: m.cash}
	for _, id := range m.order {
		if p, ok := m.longs[id]; ok {
			st.Longs = append(st.Longs, p)
		}
		if s, ok := m.shorts[id]; ok {
			st.Shorts = append(st.Shorts, s)
		}
	}
	return st, nil
}

func (m *MemoryStore) Seed(ctx context.Context, cash decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.seeded {
		m.seeded = true
		m.cash = cash
	}
	return nil
}

func (m *MemoryStore) Commit(ctx context.Context, ch Change) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailCommit; err != nil {
		m.FailCommit = nil
		return nil, err
	}
	m.cash = ch.Cash
	for _, p := range ch.PutLongs {
		if _, ok := m.longs[p.ID]; !ok {
			m.order = append(m.order, p.ID)
		}
		m.longs[p.ID] = p
	}
	for _, id := range ch.DeleteLongs {
		delete(m.longs, id)
	}
	for _, s := range ch.PutShorts {
		if _, ok := m.shorts[s.ID]; !ok {
			m.order = append(m.order, s.ID)
		}
		m.shorts[s.ID] = s
	}
	for _, id := range ch.DeleteShorts {
		delete(m.shorts, id)
	}
	ids := make([]int64, len(ch.Transactions))
	for i, tx := range ch.Transactions {
		tx.ID = m.nextID
		m.nextID++
		ids[i] = tx.ID
		m.txs = append(m.txs, tx)
	}
	return ids, nil
}

func (m *MemoryStore) Transactions(ctx context.Context, ticker string, limit int) ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Transaction
	for i := len(m.txs) - 1; i >= 0; i-- {
		if ticker != "" && m.txs[i].Ticker != ticker {
			continue
		}
		out = append(out, m.txs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
