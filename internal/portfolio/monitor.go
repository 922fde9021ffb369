package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/ledger"
	"trading-advisorv1/internal/model"
	"trading-advisorv1/internal/notification"
)

// ExitReason says why the monitor closed a lot.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
)

// Closure records one lot closed by a sweep.
type Closure struct {
	LotID  string          `json:"lot_id"`
	Ticker string          `json:"ticker"`
	Side   model.Side      `json:"side"`
	Reason ExitReason      `json:"reason"`
	Price  decimal.Decimal `json:"price"`
	Gain   decimal.Decimal `json:"gain"`
}

// Monitor closes lots whose stop-loss or take-profit has been crossed.
type Monitor struct {
	ledger   *ledger.Ledger
	notifier notification.Notifier
}

// NewMonitor creates a Monitor over l. notifier may be nil.
func NewMonitor(l *ledger.Ledger, notifier notification.Notifier) *Monitor {
	return &Monitor{ledger: l, notifier: notifier}
}

// longExit reports whether a long lot must close at price. Zero thresholds
// are disabled.
func longExit(p model.Position, price decimal.Decimal) (ExitReason, bool) {
	switch {
	case p.StopLoss.IsPositive() && price.LessThanOrEqual(p.StopLoss):
		return ExitStopLoss, true
	case p.TakeProfit.IsPositive() && price.GreaterThanOrEqual(p.TakeProfit):
		return ExitTakeProfit, true
	}
	return "", false
}

// shortExit is the mirror of longExit.
func shortExit(s model.ShortPosition, price decimal.Decimal) (ExitReason, bool) {
	switch {
	case s.StopLoss.IsPositive() && price.GreaterThanOrEqual(s.StopLoss):
		return ExitStopLoss, true
	case s.TakeProfit.IsPositive() && price.LessThanOrEqual(s.TakeProfit):
		return ExitTakeProfit, true
	}
	return "", false
}

// Sweep checks every open lot against prices once. The lot set is
// snapshotted up front so a lot closed during the sweep is never revisited
// and nothing opened concurrently is touched. Lots without a price are
// skipped. A failure to close one lot does not stop the others; all
// failures are returned joined. Surviving lots move to Monitoring.
func (m *Monitor) Sweep(ctx context.Context, prices map[string]decimal.Decimal) ([]Closure, error) {
	snap := m.ledger.Snapshot()
	var (
		closures []Closure
		errs     []error
		seen     []string
	)

	for _, p := range snap.Longs {
		price, ok := prices[p.Ticker]
		if !ok {
			continue
		}
		seen = append(seen, p.ID)
		reason, hit := longExit(p, price)
		if !hit {
			continue
		}
		rc, err := m.ledger.SellLot(ctx, p.ID, price)
		if err != nil {
			errs = append(errs, fmt.Errorf("auto-close long %s (%s): %w", p.ID, p.Ticker, err))
			continue
		}
		closures = append(closures, Closure{
			LotID: p.ID, Ticker: p.Ticker, Side: model.SideLong, Reason: reason, Price: price, Gain: rc.Gain,
		})
	}

	for _, s := range snap.Shorts {
		price, ok := prices[s.Ticker]
		if !ok {
			continue
		}
		seen = append(seen, s.ID)
		reason, hit := shortExit(s, price)
		if !hit {
			continue
		}
		rc, err := m.ledger.CoverLot(ctx, s.ID, price)
		if err != nil {
			errs = append(errs, fmt.Errorf("auto-close short %s (%s): %w", s.ID, s.Ticker, err))
			continue
		}
		closures = append(closures, Closure{
			LotID: s.ID, Ticker: s.Ticker, Side: model.SideShort, Reason: reason, Price: price, Gain: rc.Gain,
		})
	}

	m.ledger.MarkMonitoring(seen...)

	for _, c := range closures {
		slog.Info("position auto-closed",
			"ticker", c.Ticker, "lot", c.LotID, "side", c.Side, "reason", c.Reason,
			"price", c.Price.String(), "gain", c.Gain.StringFixed(2))
		m.notify(ctx, c)
	}
	for _, err := range errs {
		slog.Error("auto-close failed", "err", err)
	}
	return closures, errors.Join(errs...)
}

func (m *Monitor) notify(ctx context.Context, c Closure) {
	if m.notifier == nil {
		return
	}
	level := notification.AlertInfo
	title := "Take profit hit"
	if c.Reason == ExitStopLoss {
		level = notification.AlertWarning
		title = "Stop loss hit"
	}
	alert := notification.Alert{
		Level:  level,
		Title:  title,
		Ticker: c.Ticker,
		Message: fmt.Sprintf("%s %s lot %s closed at %s, gain %s",
			c.Side, c.Ticker, c.LotID, c.Price.String(), c.Gain.StringFixed(2)),
	}
	if err := m.notifier.Send(ctx, alert); err != nil {
		slog.Warn("alert delivery failed", "ticker", c.Ticker, "err", err)
	}
}
