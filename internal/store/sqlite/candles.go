package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"trading-advisorv1/internal/model"
)

// CandleArchive stores fetched bars for offline replay and backtests.
type CandleArchive struct {
	db *sql.DB
}

// NewCandleArchive opens the database at path.
func NewCandleArchive(path string) (*CandleArchive, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &CandleArchive{db: db}, nil
}

// SaveSeries upserts every bar in one transaction.
func (a *CandleArchive) SaveSeries(ctx context.Context, s model.Series) error {
	if s.Len() == 0 {
		return nil
	}
	start := time.Now()
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (ticker, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare candles: %w", err)
	}
	defer stmt.Close()

	for _, c := range s.Candles {
		if _, err := stmt.ExecContext(ctx, s.Ticker, s.Interval, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert candle: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit candles: %w", err)
	}
	log.Printf("[sqlite] archived %d %s/%s bars in %v", s.Len(), s.Ticker, s.Interval, time.Since(start))
	return nil
}

// ReadSeries returns archived bars in [from, to), ascending. A zero to
// means no upper bound.
func (a *CandleArchive) ReadSeries(ctx context.Context, ticker, interval string, from, to time.Time) (model.Series, error) {
	upper := int64(1<<63 - 1)
	if !to.IsZero() {
		upper = to.Unix()
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, COALESCE(volume, 0)
		FROM candles
		WHERE ticker = ? AND interval = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, ticker, interval, from.Unix(), upper)
	if err != nil {
		return model.Series{}, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	s := model.Series{Ticker: ticker, Interval: interval}
	for rows.Next() {
		c := model.Candle{Ticker: ticker}
		var ts int64
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return model.Series{}, fmt.Errorf("sqlite scan candle: %w", err)
		}
		c.TS = time.Unix(ts, 0).UTC()
		s.Candles = append(s.Candles, c)
	}
	return s, rows.Err()
}

func (a *CandleArchive) Close() error {
	return a.db.Close()
}
