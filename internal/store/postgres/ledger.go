// Package postgres implements the ledger store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/ledger"
	"trading-advisorv1/internal/model"
)

const budgetRowID = 1

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS budget (
		id     INTEGER PRIMARY KEY,
		amount TEXT    NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS portfolio (
		id           TEXT        PRIMARY KEY,
		ticker       TEXT        NOT NULL,
		quantity     TEXT        NOT NULL,
		bought_price TEXT        NOT NULL,
		stop_loss    TEXT        NOT NULL DEFAULT '0',
		take_profit  TEXT        NOT NULL DEFAULT '0',
		leverage     INTEGER     NOT NULL DEFAULT 1,
		opened_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS short_positions (
		id          TEXT        PRIMARY KEY,
		ticker      TEXT        NOT NULL,
		quantity    TEXT        NOT NULL,
		short_price TEXT        NOT NULL,
		leverage    INTEGER     NOT NULL DEFAULT 1,
		stop_loss   TEXT        NOT NULL DEFAULT '0',
		take_profit TEXT        NOT NULL DEFAULT '0',
		opened_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id        BIGSERIAL   PRIMARY KEY,
		ticker    TEXT        NOT NULL,
		quantity  TEXT        NOT NULL,
		price     TEXT        NOT NULL,
		type      TEXT        NOT NULL CHECK (type IN ('buy', 'sell', 'short', 'cover')),
		timestamp TIMESTAMPTZ NOT NULL,
		leverage  INTEGER     NOT NULL DEFAULT 1,
		gain      TEXT        NOT NULL DEFAULT '0',
		lot_id    TEXT        NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_ticker ON transactions (ticker, id)`,
}

// LedgerStore implements ledger.Store on a pgx connection pool.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore connects to dsn, pings and runs migrations.
func NewLedgerStore(ctx context.Context, dsn string) (*LedgerStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres parse config: %w", err)
	}
	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	for _, m := range migrations {
		if _, err := pool.Exec(connectCtx, m); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
	}
	log.Printf("[postgres] connected to %s", poolConfig.ConnConfig.Database)
	return &LedgerStore{pool: pool}, nil
}

// Ping checks connectivity for health reporting.
func (s *LedgerStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *LedgerStore) Load(ctx context.Context) (ledger.State, error) {
	var st ledger.State
	var amount string
	err := s.pool.QueryRow(ctx, `SELECT amount FROM budget WHERE id = $1`, budgetRowID).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("postgres read budget: %w", err)
	}
	if st.Cash, err = decimal.NewFromString(amount); err != nil {
		return st, fmt.Errorf("postgres parse budget %q: %w", amount, err)
	}
	st.Seeded = true

	rows, err := s.pool.Query(ctx, `
		SELECT id, ticker, quantity, bought_price, stop_loss, take_profit, leverage, opened_at
		FROM portfolio ORDER BY opened_at, id`)
	if err != nil {
		return st, fmt.Errorf("postgres query portfolio: %w", err)
	}
	for rows.Next() {
		var (
			p                  model.Position
			qty, entry, sl, tp string
		)
		if err := rows.Scan(&p.ID, &p.Ticker, &qty, &entry, &sl, &tp, &p.Leverage, &p.OpenedAt); err != nil {
			rows.Close()
			return st, fmt.Errorf("postgres scan portfolio: %w", err)
		}
		if err := parseDecimals([]string{qty, entry, sl, tp}, &p.Quantity, &p.EntryPrice, &p.StopLoss, &p.TakeProfit); err != nil {
			rows.Close()
			return st, fmt.Errorf("postgres portfolio %s: %w", p.ID, err)
		}
		p.OpenedAt = p.OpenedAt.UTC()
		st.Longs = append(st.Longs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("postgres portfolio rows: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT id, ticker, quantity, short_price, leverage, stop_loss, take_profit, opened_at
		FROM short_positions ORDER BY opened_at, id`)
	if err != nil {
		return st, fmt.Errorf("postgres query short_positions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p                  model.ShortPosition
			qty, entry, sl, tp string
		)
		if err := rows.Scan(&p.ID, &p.Ticker, &qty, &entry, &p.Leverage, &sl, &tp, &p.OpenedAt); err != nil {
			return st, fmt.Errorf("postgres scan short_positions: %w", err)
		}
		if err := parseDecimals([]string{qty, entry, sl, tp}, &p.Quantity, &p.EntryPrice, &p.StopLoss, &p.TakeProfit); err != nil {
			return st, fmt.Errorf("postgres short %s: %w", p.ID, err)
		}
		p.OpenedAt = p.OpenedAt.UTC()
		st.Shorts = append(st.Shorts, p)
	}
	return st, rows.Err()
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
	_, err := s.pool.Exec(ctx, `INSERT INTO budget (id, amount) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, budgetRowID, cash.String())
	if err != nil {
		return fmt.Errorf("postgres seed budget: %w", err)
	}
	return nil
}

// Commit applies the change inside pgx.BeginFunc, which rolls back on error.
func (s *LedgerStore) Commit(ctx context.Context, ch ledger.Change) ([]int64, error) {
	ids := make([]int64, len(ch.Transactions))
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE budget SET amount = $1 WHERE id = $2`, ch.Cash.String(), budgetRowID); err != nil {
			return fmt.Errorf("update budget: %w", err)
		}
		for _, p := range ch.PutLongs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO portfolio (id, ticker, quantity, bought_price, stop_loss, take_profit, leverage, opened_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET quantity = EXCLUDED.quantity`,
				p.ID, p.Ticker, p.Quantity.String(), p.EntryPrice.String(), p.StopLoss.String(), p.TakeProfit.String(),
				p.Leverage, p.OpenedAt); err != nil {
				return fmt.Errorf("put portfolio %s: %w", p.ID, err)
			}
		}
		for _, id := range ch.DeleteLongs {
			if _, err := tx.Exec(ctx, `DELETE FROM portfolio WHERE id = $1`, id); err != nil {
				return fmt.Errorf("delete portfolio %s: %w", id, err)
			}
		}
		for _, p := range ch.PutShorts {
			if _, err := tx.Exec(ctx, `
				INSERT INTO short_positions (id, ticker, quantity, short_price, leverage, stop_loss, take_profit, opened_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET quantity = EXCLUDED.quantity`,
				p.ID, p.Ticker, p.Quantity.String(), p.EntryPrice.String(), p.Leverage, p.StopLoss.String(), p.TakeProfit.String(),
				p.OpenedAt); err != nil {
				return fmt.Errorf("put short %s: %w", p.ID, err)
			}
		}
		for _, id := range ch.DeleteShorts {
			if _, err := tx.Exec(ctx, `DELETE FROM short_positions WHERE id = $1`, id); err != nil {
				return fmt.Errorf("delete short %s: %w", id, err)
			}
		}
		for i, t := range ch.Transactions {
			err := tx.QueryRow(ctx, `
				INSERT INTO transactions (ticker, quantity, price, type, timestamp, leverage, gain, lot_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
				t.Ticker, t.Quantity.String(), t.Price.String(), string(t.Type), t.Timestamp, t.Leverage, t.Gain.String(), t.LotID,
			).Scan(&ids[i])
			if err != nil {
				return fmt.Errorf("insert transaction: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres commit: %w", err)
	}
	return ids, nil
}

func (s *LedgerStore) Transactions(ctx context.Context, ticker string, limit int) ([]model.Transaction, error) {
	query := `SELECT id, ticker, quantity, price, type, timestamp, leverage, gain, lot_id FROM transactions`
	var args []any
	if ticker != "" {
		args = append(args, ticker)
		query += fmt.Sprintf(` WHERE ticker = $%d`, len(args))
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres query transactions: %w", err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var (
			t                     model.Transaction
			qty, price, typ, gain string
		)
		if err := rows.Scan(&t.ID, &t.Ticker, &qty, &price, &typ, &t.Timestamp, &t.Leverage, &gain, &t.LotID); err != nil {
			return nil, fmt.Errorf("postgres scan transaction: %w", err)
		}
		if err := parseDecimals([]string{qty, price, gain}, &t.Quantity, &t.Price, &t.Gain); err != nil {
			return nil, fmt.Errorf("postgres transaction %d: %w", t.ID, err)
		}
		t.Type = model.TxType(typ)
		t.Timestamp = t.Timestamp.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *LedgerStore) Close() error {
	s.pool.Close()
	return nil
}
