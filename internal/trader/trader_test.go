package trader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"trading-advisorv1/config"
	"trading-advisorv1/internal/execution"
	"trading-advisorv1/internal/gateway"
	"trading-advisorv1/internal/indicator"
	"trading-advisorv1/internal/ledger"
	"trading-advisorv1/internal/marketdata"
	"trading-advisorv1/internal/metrics"
	"trading-advisorv1/internal/model"
	"trading-advisorv1/internal/portfolio"
	"trading-advisorv1/internal/scheduler"
	"trading-advisorv1/internal/strategy"
)

type fakeProvider struct {
	mu     sync.Mutex
	prices map[string]float64
	delay  time.Duration

	inflight atomic.Int32
	peak     atomic.Int32
}

func (p *fakeProvider) setPrice(ticker string, price float64) {
	p.mu.Lock()
	p.prices[ticker] = price
	p.mu.Unlock()
}

func (p *fakeProvider) Candles(ctx context.Context, ticker, period, interval string) (model.Series, error) {
	n := p.inflight.Add(1)
	defer p.inflight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	price, ok := p.prices[ticker]
	p.mu.Unlock()
	if !ok {
		return model.Series{}, fmt.Errorf("candles %s: %w", ticker, marketdata.ErrDataUnavailable)
	}
	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	s := model.Series{Ticker: ticker, Interval: interval}
	for i := 0; i < 3; i++ {
		s.Candles = append(s.Candles, model.Candle{
			Ticker: ticker, TS: start.Add(time.Duration(i) * time.Minute),
			Open: price, High: price, Low: price, Close: price, Volume: 100,
		})
	}
	return s, nil
}

// stubIndicator votes a fixed call per ticker.
type stubIndicator struct {
	mu    sync.Mutex
	calls map[string]indicator.Call
}

func (s *stubIndicator) set(ticker string, c indicator.Call) {
	s.mu.Lock()
	s.calls[ticker] = c
	s.mu.Unlock()
}

func (s *stubIndicator) Name() string { return "Stub" }
func (s *stubIndicator) Kind() indicator.Kind { return indicator.KindMovingAverage }
func (s *stubIndicator) Warmup() int { return 1 }
func (s *stubIndicator) Calculate(ser model.Series) (indicator.Frame, error) {
	return indicator.Frame{Series: ser}, nil
}

func (s *stubIndicator) Analyze(f indicator.Frame) (indicator.Result, error) {
	s.mu.Lock()
	c := s.calls[f.Series.Ticker]
	s.mu.Unlock()
	return indicator.Result{
		Name: "Stub", Kind: indicator.KindMovingAverage, Call: c,
		Score: 50 + 10*float64(c), TS: f.Series.Last().TS,
	}, nil
}

type failingExecutor struct{ err error }

func (f failingExecutor) Execute(ctx context.Context, order *model.Order) (execution.Fill, error) {
	return execution.Fill{Order: *order}, f.err
}

type recordingPublisher struct {
	mu      sync.Mutex
	advice  []string
	cycles  int
	failAll bool
}

func (p *recordingPublisher) PublishAdvice(ctx context.Context, ticker string, advice any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advice = append(p.advice, ticker)
	if p.failAll {
		return errors.New("redis down")
	}
	return nil
}

func (p *recordingPublisher) PublishCycle(ctx context.Context, report any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cycles++
	if p.failAll {
		return errors.New("redis down")
	}
	return nil
}

type fixture struct {
	trader   *Trader
	ledger   *ledger.Ledger
	provider *fakeProvider
	ind      *stubIndicator
	reg      *prometheus.Registry
}

func newFixture(t *testing.T, tickers []string, mutate func(*Deps, *Options)) *fixture {
	t.Helper()
	ctx := context.Background()
	l, err := ledger.Open(ctx, ledger.NewMemoryStore(), decimal.NewFromInt(10000))
	if err != nil {
		t.Fatal(err)
	}
	sizer, err := portfolio.NewSizer(portfolio.DefaultSizerConfig())
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		ledger:   l,
		provider: &fakeProvider{prices: map[string]float64{"AAPL": 100, "MSFT": 50}},
		ind:      &stubIndicator{calls: map[string]indicator.Call{"AAPL": indicator.Buy, "MSFT": indicator.Sell}},
		reg:      prometheus.NewRegistry(),
	}
	deps := Deps{
		Ledger:   l,
		Provider: f.provider,
		Advisor:  strategy.NewAdvisor([]indicator.Indicator{f.ind}, strategy.CategoricalAggregator{}),
		Sizer:    sizer,
		Monitor:  portfolio.NewMonitor(l, nil),
		Risk:     portfolio.NewRiskManager(portfolio.DefaultRiskLimits(), decimal.NewFromInt(10000)),
		Executor: execution.NewPaperExecutor(l, 0),
		Metrics:  metrics.NewMetrics(f.reg),
		Health:   metrics.NewHealthStatus(),
	}
	opts := Options{
		Tickers:     tickers,
		Term:        config.Term{Name: "test", Period: "1d", Interval: "1m"},
		Concurrency: 2,
	}
	if mutate != nil {
		mutate(&deps, &opts)
	}
	f.trader, err = New(deps, opts)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{}, Options{Tickers: []string{"AAPL"}}); !errors.Is(err, config.ErrInvalidConfiguration) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunCycle_BuysAndShorts(t *testing.T) {
	f := newFixture(t, []string{"AAPL", "MSFT"}, nil)

	rep, err := f.trader.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Tickers) != 2 || rep.Tickers[0].Ticker != "AAPL" || rep.Tickers[1].Ticker != "MSFT" {
		t.Fatalf("tickers out of order: %+v", rep.Tickers)
	}
	if len(rep.Trades) != 2 {
		t.Fatalf("trades = %+v", rep.Trades)
	}

	// AAPL: 1% of 10000 at 100 is one share. MSFT: 1% of the remaining
	// 9900 at 50 is 1.98 shares shorted for 99 of proceeds.
	buy, short := rep.Trades[0], rep.Trades[1]
	if buy.Side != string(model.SideLong) || !buy.Quantity.Equal(dec("1")) || buy.Leverage != 1 {
		t.Fatalf("buy = %+v", buy)
	}
	if short.Side != string(model.SideShort) || !short.Quantity.Equal(dec("1.98")) {
		t.Fatalf("short = %+v", short)
	}
	if !rep.Cash.Equal(dec("9999")) {
		t.Fatalf("cash = %s, want 9999", rep.Cash)
	}
	if !rep.TotalValue.Equal(dec("10000")) {
		t.Fatalf("total value = %s, want 10000", rep.TotalValue)
	}
	if rep.OpenLongs != 1 || rep.OpenShorts != 1 {
		t.Fatalf("open lots = %d/%d", rep.OpenLongs, rep.OpenShorts)
	}

	longs := f.ledger.Positions()
	if !longs[0].StopLoss.Equal(dec("99.8")) || !longs[0].TakeProfit.Equal(dec("100.5")) {
		t.Fatalf("long levels = %s/%s", longs[0].StopLoss, longs[0].TakeProfit)
	}
	if got := counterValue(t, f.reg, "tradebot_orders_total"); got != 2 {
		t.Fatalf("orders metric = %v", got)
	}
	if got := counterValue(t, f.reg, "tradebot_cycles_total"); got != 1 {
		t.Fatalf("cycles metric = %v", got)
	}
}

func TestRunCycle_StopLossClosesBeforeTrading(t *testing.T) {
	f := newFixture(t, []string{"AAPL"}, nil)
	ctx := context.Background()
	if _, err := f.trader.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	f.provider.setPrice("AAPL", 99)
	f.ind.set("AAPL", indicator.Hold)
	rep, err := f.trader.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Closures) != 1 {
		t.Fatalf("closures = %+v", rep.Closures)
	}
	c := rep.Closures[0]
	if c.Ticker != "AAPL" || c.Reason != portfolio.ExitStopLoss || !c.Gain.Equal(dec("-1")) {
		t.Fatalf("closure = %+v", c)
	}
	if len(rep.Trades) != 0 {
		t.Fatalf("hold should not trade: %+v", rep.Trades)
	}
	if !rep.Cash.Equal(dec("9999")) || rep.OpenLongs != 0 {
		t.Fatalf("cash = %s, longs = %d", rep.Cash, rep.OpenLongs)
	}
	if got := counterValue(t, f.reg, "tradebot_auto_closes_total"); got != 1 {
		t.Fatalf("auto closes metric = %v", got)
	}
}

func TestRunCycle_SkipsClosedMarkets(t *testing.T) {
	f := newFixture(t, []string{"AAPL", "MSFT"}, func(d *Deps, _ *Options) {
		d.IsOpen = func(ticker string, _ time.Time) bool { return ticker != "AAPL" }
	})
	rep, err := f.trader.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Skipped) != 1 || rep.Skipped[0] != "AAPL" {
		t.Fatalf("skipped = %v", rep.Skipped)
	}
	if len(rep.Tickers) != 1 || rep.Tickers[0].Ticker != "MSFT" {
		t.Fatalf("tickers = %+v", rep.Tickers)
	}
	if got := counterValue(t, f.reg, "tradebot_tickers_skipped_total"); got != 1 {
		t.Fatalf("skipped metric = %v", got)
	}
}

func TestRunCycle_FetchFailureIsReported(t *testing.T) {
	f := newFixture(t, []string{"ZZZZ", "AAPL"}, nil)
	rep, err := f.trader.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("a failed ticker must not fail the cycle: %v", err)
	}
	if rep.Tickers[0].Ticker != "ZZZZ" || rep.Tickers[0].Error == "" {
		t.Fatalf("failed ticker report = %+v", rep.Tickers[0])
	}
	if len(rep.Trades) != 1 || rep.Trades[0].Ticker != "AAPL" {
		t.Fatalf("trades = %+v", rep.Trades)
	}
	if got := counterValue(t, f.reg, "tradebot_fetch_failures_total"); got != 1 {
		t.Fatalf("fetch failure metric = %v", got)
	}
}

func TestRunCycle_InsufficientFundsIsRejection(t *testing.T) {
	f := newFixture(t, []string{"AAPL"}, func(d *Deps, _ *Options) {
		d.Executor = failingExecutor{err: fmt.Errorf("open: %w", ledger.ErrInsufficientFunds)}
	})
	rep, err := f.trader.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Rejections) != 1 || rep.Rejections[0].Reason != "insufficient funds" {
		t.Fatalf("rejections = %+v", rep.Rejections)
	}
	if len(rep.Trades) != 0 {
		t.Fatalf("trades = %+v", rep.Trades)
	}
}

func TestRunCycle_UnexpectedExecutionErrorFailsCycle(t *testing.T) {
	f := newFixture(t, []string{"AAPL"}, func(d *Deps, _ *Options) {
		d.Executor = failingExecutor{err: errors.New("disk full")}
	})
	rep, err := f.trader.RunCycle(context.Background())
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if len(rep.Errors) != 1 {
		t.Fatalf("errors = %v", rep.Errors)
	}
}

func TestRunCycle_MaxOpenLots(t *testing.T) {
	f := newFixture(t, []string{"AAPL", "MSFT"}, func(d *Deps, _ *Options) {
		d.Risk = portfolio.NewRiskManager(portfolio.RiskLimits{MaxOpenLots: 1}, decimal.NewFromInt(10000))
	})
	rep, err := f.trader.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Trades) != 1 || rep.Trades[0].Ticker != "AAPL" {
		t.Fatalf("trades = %+v", rep.Trades)
	}
	if len(rep.Rejections) != 1 || rep.Rejections[0].Ticker != "MSFT" || rep.Rejections[0].Reason != "max open lots reached" {
		t.Fatalf("rejections = %+v", rep.Rejections)
	}
}

func TestRunCycle_PublishesToHubAndPublisher(t *testing.T) {
	hub := gateway.NewHub(nil)
	pub := &recordingPublisher{}
	f := newFixture(t, []string{"AAPL"}, func(d *Deps, _ *Options) {
		d.Hub = hub
		d.Publisher = pub
	})
	if _, err := f.trader.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	latest := hub.GetLatestAll()
	if _, ok := latest[gateway.AdviceChannel("AAPL")]; !ok {
		t.Fatalf("advice channel missing: %v", latest)
	}
	if _, ok := latest[gateway.CycleChannel]; !ok {
		t.Fatalf("cycle channel missing: %v", latest)
	}
	if len(pub.advice) != 1 || pub.advice[0] != "AAPL" || pub.cycles != 1 {
		t.Fatalf("publisher saw %v / %d", pub.advice, pub.cycles)
	}
}

func TestRunCycle_PublishFailureDoesNotFailCycle(t *testing.T) {
	pub := &recordingPublisher{failAll: true}
	f := newFixture(t, []string{"AAPL"}, func(d *Deps, _ *Options) { d.Publisher = pub })
	if _, err := f.trader.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle failed on publish error: %v", err)
	}
	if pub.cycles != 1 {
		t.Fatalf("cycles published = %d", pub.cycles)
	}
}

func TestRunCycle_BoundedConcurrency(t *testing.T) {
	tickers := []string{"A", "B", "C", "D", "E", "F"}
	f := newFixture(t, tickers, func(_ *Deps, o *Options) { o.Concurrency = 2 })
	f.provider.delay = 20 * time.Millisecond
	for _, tk := range tickers {
		f.provider.setPrice(tk, 10)
		f.ind.set(tk, indicator.Hold)
	}
	rep, err := f.trader.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Tickers) != len(tickers) {
		t.Fatalf("tickers = %d", len(rep.Tickers))
	}
	if peak := f.provider.peak.Load(); peak > 2 {
		t.Fatalf("peak concurrent fetches = %d, limit 2", peak)
	}
}

func TestTrader_LatestReportAndPrices(t *testing.T) {
	f := newFixture(t, []string{"AAPL", "MSFT"}, nil)
	if _, ok := f.trader.LatestReport(); ok {
		t.Fatal("latest report before any cycle")
	}
	rep, err := f.trader.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	latest, ok := f.trader.LatestReport()
	if !ok || latest.ID != rep.ID {
		t.Fatalf("latest = %v", latest)
	}
	prices := f.trader.LatestPrices()
	if !prices["AAPL"].Equal(dec("100")) || !prices["MSFT"].Equal(dec("50")) {
		t.Fatalf("prices = %v", prices)
	}
	txs, err := f.trader.Transactions(context.Background(), "AAPL", 0)
	if err != nil || len(txs) != 1 {
		t.Fatalf("transactions = %v, %v", txs, err)
	}
}

func TestTrader_AdviseDoesNotTrade(t *testing.T) {
	f := newFixture(t, []string{"AAPL"}, nil)
	tr, err := f.trader.Advise(context.Background(), "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Decision.Call != indicator.Buy {
		t.Fatalf("call = %v", tr.Decision.Call)
	}
	if !f.ledger.Cash().Equal(dec("10000")) {
		t.Fatalf("advise moved cash: %s", f.ledger.Cash())
	}
}

func TestNewService_MemoryLedger(t *testing.T) {
	t.Setenv("LEDGER_DRIVER", "memory")
	t.Setenv("TICKERS", "AAPL,MSFT")
	t.Setenv("INITIAL_BUDGET", "5000")
	t.Setenv("REDIS_ADDR", "")
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	svc, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	if !svc.Ledger.Cash().Equal(dec("5000")) {
		t.Fatalf("cash = %s", svc.Ledger.Cash())
	}
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}

	var d *scheduler.Driver
	d = scheduler.NewDriver(time.Hour, func(ctx context.Context) error {
		d.Stop()
		return nil
	})
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	order := &model.Order{Ticker: "AAPL", Side: model.SideLong, Quantity: dec("1"), Price: dec("100"), Leverage: 1}
	if _, err := svc.executor.Execute(context.Background(), order); err != nil {
		t.Fatal(err)
	}
	if got := svc.summary(d); got != "1 cycles, 1 fills" {
		t.Fatalf("summary = %q", got)
	}
}
