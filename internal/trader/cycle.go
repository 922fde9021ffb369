// Package trader runs the trading cycle: fetch and advise every ticker,
// sweep stop-loss and take-profit levels, size and execute orders, then
// publish the cycle report.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"trading-advisorv1/config"
	"trading-advisorv1/internal/execution"
	"trading-advisorv1/internal/gateway"
	"trading-advisorv1/internal/ledger"
	"trading-advisorv1/internal/logger"
	"trading-advisorv1/internal/metrics"
	"trading-advisorv1/internal/model"
	"trading-advisorv1/internal/notification"
	"trading-advisorv1/internal/portfolio"
	"trading-advisorv1/internal/report"
	"trading-advisorv1/internal/strategy"
)

// Publisher stores and fans out advice and cycle reports.
type Publisher interface {
	PublishAdvice(ctx context.Context, ticker string, advice any) error
	PublishCycle(ctx context.Context, report any) error
}

// Deps are the collaborators of a Trader. Ledger, Provider, Advisor, Sizer,
// Monitor and Executor are required; the rest may be nil.
type Deps struct {
	Ledger   *ledger.Ledger
	Provider model.CandleProvider
	Advisor  *strategy.Advisor
	Sizer    *portfolio.Sizer
	Monitor  *portfolio.Monitor
	Risk     *portfolio.RiskManager
	Executor execution.Executor

	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	Publisher Publisher
	Hub       *gateway.Hub
	Notifier  notification.Notifier

	// IsOpen gates a ticker on its trading session; nil means always open.
	IsOpen func(ticker string, t time.Time) bool
	Now    func() time.Time
}

// Options select what a Trader trades.
type Options struct {
	Tickers     []string
	Term        config.Term
	Concurrency int
}

// Trader runs cycles and keeps the latest report and prices for readers.
type Trader struct {
	deps Deps
	opts Options

	mu     sync.RWMutex
	latest *report.CycleReport
	prices map[string]decimal.Decimal
}

// New validates deps and creates a Trader.
func New(deps Deps, opts Options) (*Trader, error) {
	switch {
	case deps.Ledger == nil, deps.Provider == nil, deps.Advisor == nil,
		deps.Sizer == nil, deps.Monitor == nil, deps.Executor == nil:
		return nil, fmt.Errorf("%w: trader requires ledger, provider, advisor, sizer, monitor and executor",
			config.ErrInvalidConfiguration)
	case len(opts.Tickers) == 0:
		return nil, fmt.Errorf("%w: no tickers", config.ErrInvalidConfiguration)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.IsOpen == nil {
		deps.IsOpen = func(string, time.Time) bool { return true }
	}
	return &Trader{deps: deps, opts: opts, prices: make(map[string]decimal.Decimal)}, nil
}

type outcome struct {
	ticker  string
	advice  strategy.Advice
	err     error
	skipped bool
}

// RunCycle executes one complete cycle. Per-ticker failures are recorded in
// the report and never abort the cycle; the returned error covers only the
// risk sweep, unexpected execution failures and cancellation.
func (t *Trader) RunCycle(ctx context.Context) (*report.CycleReport, error) {
	start := t.deps.Now()
	cycleID := logger.NewCycleID()
	ctx = logger.WithTraceID(ctx, cycleID)
	rep := &report.CycleReport{
		ID:        cycleID,
		Term:      t.opts.Term.Name,
		StartedAt: start,
		Trades:    []report.Trade{},
		Closures:  []portfolio.Closure{},
	}

	outcomes := t.adviseAll(ctx, cycleID, start)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fresh := make(map[string]decimal.Decimal, len(outcomes))
	for _, o := range outcomes {
		if o.err == nil && !o.skipped && o.advice.Price > 0 {
			fresh[o.ticker] = decimal.NewFromFloat(o.advice.Price)
		}
	}

	var cycleErrs []error
	closures, err := t.deps.Monitor.Sweep(ctx, fresh)
	if err != nil {
		cycleErrs = append(cycleErrs, err)
		rep.Errors = append(rep.Errors, err.Error())
	}
	rep.Closures = append(rep.Closures, closures...)
	if m := t.deps.Metrics; m != nil {
		for _, c := range closures {
			m.AutoCloses.WithLabelValues(string(c.Side), string(c.Reason)).Inc()
		}
	}

	for _, o := range outcomes {
		switch {
		case o.skipped:
			rep.Skipped = append(rep.Skipped, o.ticker)
			continue
		case o.err != nil:
			tr := report.Failed(o.ticker, t.opts.Term.Name, o.err)
			if o.advice.Ticker != "" {
				tr = report.FromAdvice(t.opts.Term.Name, o.advice)
				tr.Error = o.err.Error()
			}
			rep.Tickers = append(rep.Tickers, tr)
			continue
		}
		rep.Tickers = append(rep.Tickers, report.FromAdvice(t.opts.Term.Name, o.advice))
		if err := t.trade(ctx, rep, o, fresh[o.ticker]); err != nil {
			cycleErrs = append(cycleErrs, err)
			rep.Errors = append(rep.Errors, err.Error())
		}
	}

	t.mu.Lock()
	for k, v := range fresh {
		t.prices[k] = v
	}
	marks := make(map[string]decimal.Decimal, len(t.prices))
	for k, v := range t.prices {
		marks[k] = v
	}
	t.mu.Unlock()

	snap := t.deps.Ledger.Snapshot()
	rep.Cash = snap.Cash
	rep.TotalValue = snap.TotalValue(marks)
	rep.OpenLongs, rep.OpenShorts = len(snap.Longs), len(snap.Shorts)
	if t.deps.Risk != nil {
		t.deps.Risk.RecordEquity(rep.TotalValue)
		rep.DrawdownPct = t.deps.Risk.Status().DrawdownPct
	}
	rep.FinishedAt = t.deps.Now()

	cycleErr := errors.Join(cycleErrs...)
	t.record(rep)
	t.publish(ctx, rep)
	if h := t.deps.Health; h != nil {
		h.RecordCycle(rep.FinishedAt, cycleErr)
	}
	if cycleErr != nil {
		t.alert(ctx, notification.Alert{
			Level:   notification.AlertCritical,
			Title:   "Cycle errors",
			Message: fmt.Sprintf("cycle %s: %v", cycleID, cycleErr),
		})
	}

	t.mu.Lock()
	t.latest = rep
	t.mu.Unlock()

	slog.Info("cycle complete",
		"cycle", cycleID,
		"tickers", len(rep.Tickers),
		"skipped", len(rep.Skipped),
		"trades", len(rep.Trades),
		"auto_closed", len(rep.Closures),
		"total_value", rep.TotalValue.StringFixed(2),
		"duration", rep.Duration())
	return rep, cycleErr
}

// adviseAll fetches and advises every open ticker with bounded concurrency.
// Results keep the configured ticker order.
func (t *Trader) adviseAll(ctx context.Context, cycleID string, now time.Time) []outcome {
	outcomes := make([]outcome, len(t.opts.Tickers))
	g := new(errgroup.Group)
	g.SetLimit(t.opts.Concurrency)
	for i, ticker := range t.opts.Tickers {
		if !t.deps.IsOpen(ticker, now) {
			outcomes[i] = outcome{ticker: ticker, skipped: true}
			if m := t.deps.Metrics; m != nil {
				m.TickersSkipped.WithLabelValues("market_closed").Inc()
			}
			continue
		}
		g.Go(func() error {
			tctx := logger.WithTraceID(ctx, logger.TickerTraceID(cycleID, ticker))
			outcomes[i] = t.adviseOne(tctx, ticker)
			return nil
		})
	}
	g.Wait()
	return outcomes
}

func (t *Trader) adviseOne(ctx context.Context, ticker string) outcome {
	m := t.deps.Metrics
	series, err := t.deps.Provider.Candles(ctx, ticker, t.opts.Term.Period, t.opts.Term.Interval)
	if err != nil {
		if m != nil {
			m.FetchFailures.WithLabelValues(ticker).Inc()
		}
		slog.Warn("fetch failed", append(logger.LogWithTrace(ctx), "ticker", ticker, "err", err)...)
		return outcome{ticker: ticker, err: err}
	}

	adv, err := t.deps.Advisor.Advise(series)
	if m != nil {
		for _, name := range adv.Undefined {
			m.UndefinedIndicators.WithLabelValues(name).Inc()
		}
	}
	if err != nil {
		if m != nil && errors.Is(err, strategy.ErrNoSignals) {
			m.TickersSkipped.WithLabelValues("no_signals").Inc()
		}
		slog.Warn("advise failed", append(logger.LogWithTrace(ctx), "ticker", ticker, "err", err)...)
		return outcome{ticker: ticker, advice: adv, err: err}
	}
	if m != nil {
		m.Decisions.WithLabelValues(adv.Decision.Call.String()).Inc()
	}
	slog.Debug("advice", append(logger.LogWithTrace(ctx),
		"ticker", ticker, "call", adv.Decision.Call.String(), "confidence", adv.Decision.Confidence)...)
	return outcome{ticker: ticker, advice: adv}
}

// trade sizes, limit-checks and executes the order for one advised ticker.
// Rejections are recorded on rep; only unexpected failures are returned.
func (t *Trader) trade(ctx context.Context, rep *report.CycleReport, o outcome, price decimal.Decimal) error {
	if !price.IsPositive() {
		return nil
	}
	order, err := t.deps.Sizer.Size(o.ticker, o.advice.Decision, t.deps.Ledger.Cash(), price)
	if err != nil {
		return fmt.Errorf("size %s: %w", o.ticker, err)
	}
	if order == nil {
		return nil
	}

	if t.deps.Risk != nil {
		longs, shorts := t.deps.Ledger.OpenLots()
		if ok, reason := t.deps.Risk.CanTrade(order, longs+shorts); !ok {
			t.reject(ctx, rep, order, reason)
			return nil
		}
	}

	fill, err := t.deps.Executor.Execute(ctx, order)
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		slog.Warn("order rejected", "ticker", o.ticker, "side", order.Side, "err", err)
		t.reject(ctx, rep, order, "insufficient funds")
		return nil
	case err != nil:
		return fmt.Errorf("execute %s %s: %w", order.Side, o.ticker, err)
	}

	rep.Trades = append(rep.Trades, report.TradeFromFill(fill))
	if m := t.deps.Metrics; m != nil {
		m.Orders.WithLabelValues(string(order.Side)).Inc()
	}
	slog.Info("order filled",
		"ticker", o.ticker,
		"side", order.Side,
		"qty", order.Quantity.String(),
		"fill_price", fill.FillPrice.String(),
		"leverage", order.Leverage)
	return nil
}

func (t *Trader) reject(ctx context.Context, rep *report.CycleReport, order *model.Order, reason string) {
	rep.Rejections = append(rep.Rejections, report.Rejection{
		Ticker: order.Ticker, Side: string(order.Side), Reason: reason,
	})
	if m := t.deps.Metrics; m != nil {
		m.Rejections.WithLabelValues(strings.ReplaceAll(reason, " ", "_")).Inc()
	}
	t.alert(ctx, notification.Alert{
		Level:   notification.AlertWarning,
		Title:   "Order rejected",
		Ticker:  order.Ticker,
		Message: fmt.Sprintf("%s %s %s: %s", order.Side, order.Quantity.String(), order.Ticker, reason),
	})
}

func (t *Trader) alert(ctx context.Context, a notification.Alert) {
	if t.deps.Notifier == nil {
		return
	}
	if err := t.deps.Notifier.Send(ctx, a); err != nil {
		slog.Warn("alert delivery failed", "title", a.Title, "err", err)
	}
}

func (t *Trader) record(rep *report.CycleReport) {
	m := t.deps.Metrics
	if m == nil {
		return
	}
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(rep.Duration().Seconds())
	cash, _ := rep.Cash.Float64()
	total, _ := rep.TotalValue.Float64()
	m.Cash.Set(cash)
	m.TotalValue.Set(total)
	m.OpenLots.WithLabelValues(string(model.SideLong)).Set(float64(rep.OpenLongs))
	m.OpenLots.WithLabelValues(string(model.SideShort)).Set(float64(rep.OpenShorts))
}

// publish sends advice and the report to Redis and the websocket hub.
// Delivery failures are logged; they never fail the cycle.
func (t *Trader) publish(ctx context.Context, rep *report.CycleReport) {
	for _, tr := range rep.Tickers {
		if tr.Error != "" {
			continue
		}
		if p := t.deps.Publisher; p != nil {
			if err := p.PublishAdvice(ctx, tr.Ticker, tr); err != nil {
				slog.Warn("publish advice failed", "ticker", tr.Ticker, "err", err)
			}
		}
		if h := t.deps.Hub; h != nil {
			h.Publish(gateway.AdviceChannel(tr.Ticker), tr)
		}
	}
	if p := t.deps.Publisher; p != nil {
		if err := p.PublishCycle(ctx, rep); err != nil {
			slog.Warn("publish cycle failed", "cycle", rep.ID, "err", err)
		}
	}
	if h := t.deps.Hub; h != nil {
		h.Publish(gateway.CycleChannel, rep)
	}
}

// Advise fetches and advises a single ticker without trading.
func (t *Trader) Advise(ctx context.Context, ticker string) (report.TickerReport, error) {
	o := t.adviseOne(ctx, ticker)
	if o.err != nil {
		tr := report.Failed(ticker, t.opts.Term.Name, o.err)
		if o.advice.Ticker != "" {
			tr = report.FromAdvice(t.opts.Term.Name, o.advice)
			tr.Error = o.err.Error()
		}
		return tr, o.err
	}
	return report.FromAdvice(t.opts.Term.Name, o.advice), nil
}

// Cycle adapts RunCycle to the scheduler.
func (t *Trader) Cycle(ctx context.Context) error {
	_, err := t.RunCycle(ctx)
	return err
}

// LatestReport returns the most recent cycle report.
func (t *Trader) LatestReport() (*report.CycleReport, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest, t.latest != nil
}

// LatestPrices returns the last known price of every ticker seen so far.
func (t *Trader) LatestPrices() map[string]decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(t.prices))
	for k, v := range t.prices {
		out[k] = v
	}
	return out
}

// Snapshot returns the ledger's cash and open lots.
func (t *Trader) Snapshot() ledger.Snapshot { return t.deps.Ledger.Snapshot() }

// Transactions returns ledger transactions, newest first.
func (t *Trader) Transactions(ctx context.Context, ticker string, limit int) ([]model.Transaction, error) {
	return t.deps.Ledger.Transactions(ctx, ticker, limit)
}

// RiskStatus returns the current drawdown state.
func (t *Trader) RiskStatus() portfolio.RiskStatus {
	if t.deps.Risk == nil {
		return portfolio.RiskStatus{}
	}
	return t.deps.Risk.Status()
}
