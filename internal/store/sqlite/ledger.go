package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/ledger"
	"trading-advisorv1/internal/model"
)

const budgetRowID = 1

// LedgerStore implements ledger.Store on SQLite.
type LedgerStore struct {
	db *sql.DB
}

// NewLedgerStore opens the database at path.
func NewLedgerStore(path string) (*LedgerStore, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &LedgerStore{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (s *LedgerStore) DB() *sql.DB { return s.db }

func (s *LedgerStore) Load(ctx context.Context) (ledger.State, error) {
	var st ledger.State

	var amount string
	err := s.db.QueryRowContext(ctx, `SELECT amount FROM budget WHERE id = ?`, budgetRowID).Scan(&amount)
	switch {
	case err == sql.ErrNoRows:
		return st, nil
	case err != nil:
		return st, fmt.Errorf("sqlite read budget: %w", err)
	}
	if st.Cash, err = decimal.NewFromString(amount); err != nil {
		return st, fmt.Errorf("sqlite parse budget %q: %w", amount, err)
	}
	st.Seeded = true

	if st.Longs, err = s.loadLongs(ctx); err != nil {
		return st, err
	}
	if st.Shorts, err = s.loadShorts(ctx); err != nil {
		return st, err
	}
	return st, nil
}

func (s *LedgerStore) loadLongs(ctx context.Context) ([]model.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, quantity, bought_price, stop_loss, take_profit, leverage, opened_at
		FROM portfolio ORDER BY opened_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query portfolio: %w", err)
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var (
			p          model.Position
			qty, entry string
			sl, tp     string
			opened     int64
		)
		if err := rows.Scan(&p.ID, &p.Ticker, &qty, &entry, &sl, &tp, &p.Leverage, &opened); err != nil {
			return nil, fmt.Errorf("sqlite scan portfolio: %w", err)
		}
		if err := parseDecimals([]string{qty, entry, sl, tp}, &p.Quantity, &p.EntryPrice, &p.StopLoss, &p.TakeProfit); err != nil {
			return nil, fmt.Errorf("sqlite portfolio %s: %w", p.ID, err)
		}
		p.OpenedAt = time.Unix(0, opened).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *LedgerStore) loadShorts(ctx context.Context) ([]model.ShortPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, quantity, short_price, leverage, stop_loss, take_profit, opened_at
		FROM short_positions ORDER BY opened_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query short_positions: %w", err)
	}
	defer rows.Close()

	var out []model.ShortPosition
	for rows.Next() {
		var (
			p          model.ShortPosition
			qty, entry string
			sl, tp     string
			opened     int64
		)
		if err := rows.Scan(&p.ID, &p.Ticker, &qty, &entry, &p.Leverage, &sl, &tp, &opened); err != nil {
			return nil, fmt.Errorf("sqlite scan short_positions: %w", err)
		}
		if err := parseDecimals([]string{qty, entry, sl, tp}, &p.Quantity, &p.EntryPrice, &p.StopLoss, &p.TakeProfit); err != nil {
			return nil, fmt.Errorf("sqlite short %s: %w", p.ID, err)
		}
		p.OpenedAt = time.Unix(0, opened).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func parseDecimals(raw []string, dst ...*decimal.Decimal) error {
	for i, r := range raw {
		v, err := decimal.NewFromString(r)
		if err != nil {
			return fmt.Errorf("parse %q: %w", r, err)
		}
		*dst[i] = v
	}
	return nil
}

func (s *LedgerStore) Seed(ctx context.Context, cash decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO budget (id, amount) VALUES (?, ?)`, budgetRowID, cash.String())
	if err != nil {
		return fmt.Errorf("sqlite seed budget: %w", err)
	}
	return nil
}

// Commit applies the change in one transaction.
func (s *LedgerStore) Commit(ctx context.Context, ch ledger.Change) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite begin: %w", err)
	}
	ids, err := applyChange(ctx, tx, ch)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite commit: %w", err)
	}
	return ids, nil
}

func applyChange(ctx context.Context, tx *sql.Tx, ch ledger.Change) ([]int64, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE budget SET amount = ? WHERE id = ?`, ch.Cash.String(), budgetRowID); err != nil {
		return nil, fmt.Errorf("sqlite update budget: %w", err)
	}
	for _, p := range ch.PutLongs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO portfolio (id, ticker, quantity, bought_price, stop_loss, take_profit, leverage, opened_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Ticker, p.Quantity.String(), p.EntryPrice.String(), p.StopLoss.String(), p.TakeProfit.String(),
			p.Leverage, p.OpenedAt.UnixNano()); err != nil {
			return nil, fmt.Errorf("sqlite put portfolio %s: %w", p.ID, err)
		}
	}
	for _, id := range ch.DeleteLongs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM portfolio WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("sqlite delete portfolio %s: %w", id, err)
		}
	}
	for _, p := range ch.PutShorts {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO short_positions (id, ticker, quantity, short_price, leverage, stop_loss, take_profit, opened_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Ticker, p.Quantity.String(), p.EntryPrice.String(), p.Leverage, p.StopLoss.String(), p.TakeProfit.String(),
			p.OpenedAt.UnixNano()); err != nil {
			return nil, fmt.Errorf("sqlite put short %s: %w", p.ID, err)
		}
	}
	for _, id := range ch.DeleteShorts {
		if _, err := tx.ExecContext(ctx, `DELETE FROM short_positions WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("sqlite delete short %s: %w", id, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (ticker, quantity, price, type, timestamp, leverage, gain, lot_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("sqlite prepare transactions: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(ch.Transactions))
	for i, t := range ch.Transactions {
		res, err := stmt.ExecContext(ctx, t.Ticker, t.Quantity.String(), t.Price.String(), string(t.Type),
			t.Timestamp.UnixNano(), t.Leverage, t.Gain.String(), t.LotID)
		if err != nil {
			return nil, fmt.Errorf("sqlite insert transaction: %w", err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("sqlite transaction id: %w", err)
		}
	}
	return ids, nil
}

func (s *LedgerStore) Transactions(ctx context.Context, ticker string, limit int) ([]model.Transaction, error) {
	query := `SELECT id, ticker, quantity, price, type, timestamp, leverage, gain, lot_id FROM transactions`
	var args []any
	if ticker != "" {
		query += ` WHERE ticker = ?`
		args = append(args, ticker)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var (
			t                model.Transaction
			qty, price, gain string
			typ              string
			ts               int64
		)
		if err := rows.Scan(&t.ID, &t.Ticker, &qty, &price, &typ, &ts, &t.Leverage, &gain, &t.LotID); err != nil {
			return nil, fmt.Errorf("sqlite scan transaction: %w", err)
		}
		if err := parseDecimals([]string{qty, price, gain}, &t.Quantity, &t.Price, &t.Gain); err != nil {
			return nil, fmt.Errorf("sqlite transaction %d: %w", t.ID, err)
		}
		t.Type = model.TxType(typ)
		t.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *LedgerStore) Close() error {
	return s.db.Close()
}
