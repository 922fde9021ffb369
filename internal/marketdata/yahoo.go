package marketdata

import (
	"context"
	"fmt"
	"log"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"trading-advisorv1/internal/model"
)

// barIter is the subset of *chart.Iter the provider consumes.
type barIter interface {
	Next() bool
	Bar() *finance.ChartBar
	Err() error
}

// YahooProvider fetches bars from the Yahoo Finance chart API.
type YahooProvider struct {
	now   func() time.Time
	chart func(*chart.Params) barIter
}

// NewYahooProvider creates a provider backed by finance-go.
func NewYahooProvider() *YahooProvider {
	return &YahooProvider{
		now:   func() time.Time { return time.Now().UTC() },
		chart: func(p *chart.Params) barIter { return chart.Get(p) },
	}
}

// Candles returns period worth of interval bars ending now. Bars with a
// zero close (Yahoo's placeholder for a missing print) and bars that do not
// advance the timestamp are dropped. No usable bars ⇒ ErrDataUnavailable.
func (y *YahooProvider) Candles(ctx context.Context, ticker, period, interval string) (model.Series, error) {
	series := model.Series{Ticker: ticker, Interval: interval}
	if _, err := IntervalDuration(interval); err != nil {
		return series, err
	}
	end := y.now()
	start, err := PeriodStart(period, end)
	if err != nil {
		return series, err
	}
	if err := ctx.Err(); err != nil {
		return series, err
	}

	iter := y.chart(&chart.Params{
		Symbol:   ticker,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.Interval(interval),
	})

	var last time.Time
	for iter.Next() {
		bar := iter.Bar()
		if bar == nil || bar.Close.IsZero() {
			continue
		}
		ts := time.Unix(int64(bar.Timestamp), 0).UTC()
		if !last.IsZero() && !ts.After(last) {
			continue
		}
		last = ts
		open, _ := bar.Open.Float64()
		high, _ := bar.High.Float64()
		low, _ := bar.Low.Float64()
		closePx, _ := bar.Close.Float64()
		series.Candles = append(series.Candles, model.Candle{
			Ticker: ticker, TS: ts,
			Open: open, High: high, Low: low, Close: closePx,
			Volume: float64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return series, fmt.Errorf("yahoo %s %s/%s: %v: %w", ticker, period, interval, err, ErrDataUnavailable)
	}
	if len(series.Candles) == 0 {
		return series, fmt.Errorf("yahoo %s %s/%s: no bars: %w", ticker, period, interval, ErrDataUnavailable)
	}
	log.Printf("[yahoo] fetched %d bars for %s (%s/%s)", len(series.Candles), ticker, period, interval)
	return series, nil
}
