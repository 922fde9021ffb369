package marketdata

import (
	"context"
	"fmt"
	"time"

	"trading-advisorv1/internal/model"
)

// ArchiveProvider serves series from the local candle archive, so advice
// and backtests can run offline against previously fetched bars.
type ArchiveProvider struct {
	archive model.CandleArchive
	now     func() time.Time
}

// NewArchiveProvider creates a provider over archive. Lookback periods are
// measured back from asOf; a zero asOf means the wall clock.
func NewArchiveProvider(archive model.CandleArchive, asOf time.Time) *ArchiveProvider {
	now := func() time.Time { return time.Now().UTC() }
	if !asOf.IsZero() {
		now = func() time.Time { return asOf }
	}
	return &ArchiveProvider{archive: archive, now: now}
}

func (a *ArchiveProvider) Candles(ctx context.Context, ticker, period, interval string) (model.Series, error) {
	end := a.now()
	start, err := PeriodStart(period, end)
	if err != nil {
		return model.Series{Ticker: ticker, Interval: interval}, err
	}
	return a.Range(ctx, ticker, interval, start, end)
}

// Range returns archived bars in [from, to). A zero to is unbounded.
func (a *ArchiveProvider) Range(ctx context.Context, ticker, interval string, from, to time.Time) (model.Series, error) {
	s, err := a.archive.ReadSeries(ctx, ticker, interval, from, to)
	if err != nil {
		return s, fmt.Errorf("archive %s %s: %v: %w", ticker, interval, err, ErrDataUnavailable)
	}
	if s.Len() == 0 {
		return s, fmt.Errorf("archive %s %s: no bars: %w", ticker, interval, ErrDataUnavailable)
	}
	return s, nil
}
