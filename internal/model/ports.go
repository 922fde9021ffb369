package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the trading cycle from concrete data sources
// (Yahoo, Redis cache, SQLite archive).

// CandleProvider fetches a candle series for a ticker.
// period is a lookback such as "1d" or "1y"; interval a bar size such as "1m".
type CandleProvider interface {
	Candles(ctx context.Context, ticker, period, interval string) (Series, error)
}

// CandleArchive persists fetched series for later replay.
type CandleArchive interface {
	// SaveSeries upserts every bar of the series.
	SaveSeries(ctx context.Context, s Series) error

	// ReadSeries returns bars for ticker/interval in [from, to).
	ReadSeries(ctx context.Context, ticker, interval string, from, to time.Time) (Series, error)

	// Close releases underlying resources.
	Close() error
}
