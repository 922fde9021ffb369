// Package marketdata supplies candle series to the trading cycle: live
// from Yahoo Finance, or replayed from the local candle archive.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"trading-advisorv1/internal/model"
)

// ErrDataUnavailable is returned when no usable bars could be fetched.
var ErrDataUnavailable = errors.New("market data unavailable")

// Supported lookback periods.
var periods = map[string]func(time.Time) time.Time{
	"1d":  func(t time.Time) time.Time { return t.AddDate(0, 0, -1) },
	"5d":  func(t time.Time) time.Time { return t.AddDate(0, 0, -5) },
	"1mo": func(t time.Time) time.Time { return t.AddDate(0, -1, 0) },
	"3mo": func(t time.Time) time.Time { return t.AddDate(0, -3, 0) },
	"6mo": func(t time.Time) time.Time { return t.AddDate(0, -6, 0) },
	"1y":  func(t time.Time) time.Time { return t.AddDate(-1, 0, 0) },
	"2y":  func(t time.Time) time.Time { return t.AddDate(-2, 0, 0) },
	"5y":  func(t time.Time) time.Time { return t.AddDate(-5, 0, 0) },
}

// PeriodStart returns the start of a lookback period ending at end.
func PeriodStart(period string, end time.Time) (time.Time, error) {
	f, ok := periods[period]
	if !ok {
		return time.Time{}, fmt.Errorf("unsupported period %q", period)
	}
	return f(end), nil
}

// intervals lists the bar sizes the chart API serves.
var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"2m":  2 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"60m": time.Hour,
	"90m": 90 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
	"5d":  5 * 24 * time.Hour,
	"1wk": 7 * 24 * time.Hour,
	"1mo": 30 * 24 * time.Hour,
}

// IntervalDuration returns the nominal length of one bar.
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervals[interval]
	if !ok {
		return 0, fmt.Errorf("unsupported interval %q", interval)
	}
	return d, nil
}

// ArchivingProvider saves every series fetched from the wrapped provider to
// the candle archive. Archive failures are logged, never returned.
type ArchivingProvider struct {
	next    model.CandleProvider
	archive model.CandleArchive
}

// NewArchivingProvider wraps next.
func NewArchivingProvider(next model.CandleProvider, archive model.CandleArchive) *ArchivingProvider {
	return &ArchivingProvider{next: next, archive: archive}
}

func (a *ArchivingProvider) Candles(ctx context.Context, ticker, period, interval string) (model.Series, error) {
	s, err := a.next.Candles(ctx, ticker, period, interval)
	if err != nil {
		return s, err
	}
	if err := a.archive.SaveSeries(ctx, s); err != nil {
		log.Printf("[marketdata] archive %s %s failed: %v", ticker, interval, err)
	}
	return s, nil
}
