package portfolio

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trading-advisorv1/config"
	"trading-advisorv1/internal/indicator"
	"trading-advisorv1/internal/ledger"
	"trading-advisorv1/internal/model"
	"trading-advisorv1/internal/notification"
	"trading-advisorv1/internal/strategy"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, label string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Errorf("%s: got %s, want %s", label, got, want)
	}
}

func newLedger(t *testing.T, budget string) (*ledger.Ledger, *ledger.MemoryStore) {
	t.Helper()
	store := ledger.NewMemoryStore()
	seq := 0
	clock := time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)
	l, err := ledger.Open(context.Background(), store, d(budget),
		ledger.WithClock(func() time.Time { clock = clock.Add(time.Second); return clock }),
		ledger.WithIDGenerator(func() string { seq++; return fmt.Sprintf("lot-%d", seq) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	return l, store
}

// ── Sizer ──

func TestSizer_LongOrder(t *testing.T) {
	s, err := NewSizer(DefaultSizerConfig())
	if err != nil {
		t.Fatal(err)
	}
	o, err := s.Size("AAPL", strategy.Decision{Call: indicator.Buy, Confidence: 0.5}, d("100000"), d("150"))
	if err != nil || o == nil {
		t.Fatalf("order=%v err=%v", o, err)
	}
	if o.Side != model.SideLong || o.Leverage != 1 {
		t.Fatalf("side=%s leverage=%d", o.Side, o.Leverage)
	}
	// 100000 × 0.01 / 150, truncated
	assertDec(t, "quantity", o.Quantity, d("6.66666666"))
	assertDec(t, "stop loss", o.StopLoss, d("149.7"))
	assertDec(t, "take profit", o.TakeProfit, d("150.75"))
	if o.Call != "Buy" {
		t.Errorf("call = %q", o.Call)
	}
}

func TestSizer_ShortOrderInvertsStops(t *testing.T) {
	s, _ := NewSizer(DefaultSizerConfig())
	o, err := s.Size("TSLA", strategy.Decision{Call: indicator.StrongSell, Confidence: 0.8}, d("100000"), d("200"))
	if err != nil || o == nil {
		t.Fatalf("order=%v err=%v", o, err)
	}
	if o.Side != model.SideShort || o.Leverage != 2 {
		t.Fatalf("side=%s leverage=%d", o.Side, o.Leverage)
	}
	assertDec(t, "quantity", o.Quantity, d("20"))
	assertDec(t, "stop loss", o.StopLoss, d("200.4"))
	assertDec(t, "take profit", o.TakeProfit, d("199"))
}

func TestSizer_StrongerCallsGetMoreExposure(t *testing.T) {
	s, _ := NewSizer(DefaultSizerConfig())
	var prevQty decimal.Decimal
	prevLev := 0
	for _, c := range []indicator.Call{indicator.Buy, indicator.StrongBuy, indicator.VeryStrongBuy} {
		o, err := s.Size("X", strategy.Decision{Call: c, Confidence: 1}, d("10000"), d("10"))
		if err != nil {
			t.Fatal(err)
		}
		if o.Quantity.LessThan(prevQty) || o.Leverage < prevLev {
			t.Errorf("%s: qty %s lev %d below previous tier", c, o.Quantity, o.Leverage)
		}
		prevQty, prevLev = o.Quantity, o.Leverage
	}
}

func TestSizer_NoOrder(t *testing.T) {
	cfg := DefaultSizerConfig()
	cfg.MinConfidence = 0.3
	s, err := NewSizer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		dec  strategy.Decision
	}{
		{"hold", strategy.Decision{Call: indicator.Hold, Confidence: 1}},
		{"low confidence", strategy.Decision{Call: indicator.Buy, Confidence: 1.0 / 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := s.Size("X", tt.dec, d("1000"), d("10"))
			if err != nil || o != nil {
				t.Fatalf("order=%v err=%v, want none", o, err)
			}
		})
	}
}

func TestSizer_ZeroFractionFlattensOnly(t *testing.T) {
	cfg := DefaultSizerConfig()
	cfg.Tiers[indicator.Sell] = Tier{Fraction: decimal.Zero, Leverage: 1}
	s, err := NewSizer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	o, err := s.Size("X", strategy.Decision{Call: indicator.Sell, Confidence: 0.5}, d("1000"), d("10"))
	if err != nil || o == nil {
		t.Fatalf("order=%v err=%v", o, err)
	}
	if !o.Quantity.IsZero() || o.Side != model.SideShort {
		t.Fatalf("want flatten-only short, got %+v", o)
	}
}

func TestSizer_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SizerConfig)
	}{
		{"non-monotone fraction", func(c *SizerConfig) {
			c.Tiers[indicator.StrongBuy] = Tier{Fraction: d("0.005"), Leverage: 2}
		}},
		{"non-monotone leverage", func(c *SizerConfig) {
			c.Tiers[indicator.VeryStrongSell] = Tier{Fraction: d("0.06"), Leverage: 1}
		}},
		{"missing tier", func(c *SizerConfig) { delete(c.Tiers, indicator.Sell) }},
		{"leverage below one", func(c *SizerConfig) { c.Tiers[indicator.Buy] = Tier{Fraction: d("0.01")} }},
		{"fraction above one", func(c *SizerConfig) {
			c.Tiers[indicator.VeryStrongBuy] = Tier{Fraction: d("1.5"), Leverage: 3}
		}},
		{"negative stop", func(c *SizerConfig) { c.StopLossPct = d("-0.01") }},
		{"confidence above one", func(c *SizerConfig) { c.MinConfidence = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSizerConfig()
			tt.mutate(&cfg)
			if _, err := NewSizer(cfg); !errors.Is(err, config.ErrInvalidConfiguration) {
				t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}

func TestSizer_RejectsNonPositivePrice(t *testing.T) {
	s, _ := NewSizer(DefaultSizerConfig())
	if _, err := s.Size("X", strategy.Decision{Call: indicator.Buy, Confidence: 1}, d("1000"), decimal.Zero); err == nil {
		t.Fatal("expected error")
	}
}

// ── Monitor ──

type recorder struct{ alerts []notification.Alert }

func (r *recorder) Send(ctx context.Context, a notification.Alert) error {
	r.alerts = append(r.alerts, a)
	return nil
}

func TestSweep_LongTakeProfit(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, "1000")
	lot, _, err := l.Buy(ctx, ledger.OpenRequest{
		Ticker: "AAPL", Quantity: d("5"), Price: d("100"),
		StopLoss: d("99.8"), TakeProfit: d("100.5"), Leverage: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	closures, err := NewMonitor(l, rec).Sweep(ctx, map[string]decimal.Decimal{"AAPL": d("100.6")})
	if err != nil {
		t.Fatal(err)
	}
	if len(closures) != 1 {
		t.Fatalf("closures = %d, want 1", len(closures))
	}
	c := closures[0]
	if c.LotID != lot.ID || c.Reason != ExitTakeProfit || c.Side != model.SideLong {
		t.Fatalf("closure = %+v", c)
	}
	// (100.6 − 100) × 5 × 2
	assertDec(t, "gain", c.Gain, d("6"))
	assertDec(t, "cash", l.Cash(), d("1006"))
	if len(l.Positions()) != 0 {
		t.Fatal("position still open")
	}
	if len(rec.alerts) != 1 || rec.alerts[0].Ticker != "AAPL" {
		t.Fatalf("alerts = %+v", rec.alerts)
	}
}

func TestSweep_ShortTakeProfit(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, "1000")
	if _, _, err := l.Short(ctx, ledger.OpenRequest{
		Ticker: "TSLA", Quantity: d("4"), Price: d("100"),
		StopLoss: d("100.2"), TakeProfit: d("99.5"), Leverage: 3,
	}); err != nil {
		t.Fatal(err)
	}
	closures, err := NewMonitor(l, nil).Sweep(ctx, map[string]decimal.Decimal{"TSLA": d("99.4")})
	if err != nil {
		t.Fatal(err)
	}
	if len(closures) != 1 || closures[0].Side != model.SideShort || closures[0].Reason != ExitTakeProfit {
		t.Fatalf("closures = %+v", closures)
	}
	// (100 − 99.4) × 4 × 3
	assertDec(t, "gain", closures[0].Gain, d("7.2"))
	// 1000 + 400 − (400 − 7.2)
	assertDec(t, "cash", l.Cash(), d("1007.2"))
}

func TestSweep_StopLosses(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, "10000")
	l.Buy(ctx, ledger.OpenRequest{Ticker: "L", Quantity: d("1"), Price: d("100"), StopLoss: d("99.8"), TakeProfit: d("100.5")})
	l.Short(ctx, ledger.OpenRequest{Ticker: "S", Quantity: d("1"), Price: d("100"), StopLoss: d("100.2"), TakeProfit: d("99.5")})

	closures, err := NewMonitor(l, nil).Sweep(ctx, map[string]decimal.Decimal{"L": d("99.8"), "S": d("100.2")})
	if err != nil {
		t.Fatal(err)
	}
	if len(closures) != 2 {
		t.Fatalf("closures = %d, want 2", len(closures))
	}
	for _, c := range closures {
		if c.Reason != ExitStopLoss || !c.Gain.Equal(d("-0.2")) {
			t.Errorf("closure = %+v", c)
		}
	}
}

func TestSweep_EachLotAtMostOnce(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t, "10000")
	for i := 0; i < 3; i++ {
		l.Buy(ctx, ledger.OpenRequest{Ticker: "BTC-EUR", Quantity: d("1"), Price: d("100"), TakeProfit: d("101")})
	}
	closures, err := NewMonitor(l, nil).Sweep(ctx, map[string]decimal.Decimal{"BTC-EUR": d("102")})
	if err != nil {
		t.Fatal(err)
	}
	if len(closures) != 3 {
		t.Fatalf("closures = %d, want 3", len(closures))
	}
	ids := map[string]bool{}
	for _, c := range closures {
		if ids[c.LotID] {
			t.Fatalf("lot %s closed twice", c.LotID)
		}
		ids[c.LotID] = true
	}
	txs, _ := store.Transactions(ctx, "BTC-EUR", 0)
	sells := 0
	for _, tx := range txs {
		if tx.Type == model.TxSell {
			sells++
		}
	}
	if sells != 3 {
		t.Fatalf("sell transactions = %d, want 3", sells)
	}
}

func TestSweep_UntriggeredLotsMoveToMonitoring(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, "10000")
	l.Buy(ctx, ledger.OpenRequest{Ticker: "PRICED", Quantity: d("1"), Price: d("100"), StopLoss: d("90"), TakeProfit: d("110")})
	l.Buy(ctx, ledger.OpenRequest{Ticker: "UNPRICED", Quantity: d("1"), Price: d("100"), StopLoss: d("90"), TakeProfit: d("110")})

	closures, err := NewMonitor(l, nil).Sweep(ctx, map[string]decimal.Decimal{"PRICED": d("100")})
	if err != nil || len(closures) != 0 {
		t.Fatalf("closures=%v err=%v", closures, err)
	}
	for _, p := range l.Positions() {
		want := model.LotMonitoring
		if p.Ticker == "UNPRICED" {
			want = model.LotOpen
		}
		if p.State != want {
			t.Errorf("%s state = %s, want %s", p.Ticker, p.State, want)
		}
	}
}

func TestSweep_FailureIsolatedPerLot(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t, "10000")
	l.Buy(ctx, ledger.OpenRequest{Ticker: "A", Quantity: d("1"), Price: d("100"), TakeProfit: d("101")})
	l.Short(ctx, ledger.OpenRequest{Ticker: "B", Quantity: d("1"), Price: d("100"), TakeProfit: d("99")})

	boom := errors.New("disk full")
	store.FailCommit = boom
	m := NewMonitor(l, nil)
	prices := map[string]decimal.Decimal{"A": d("102"), "B": d("98")}
	closures, err := m.Sweep(ctx, prices)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(closures) != 1 || closures[0].Ticker != "B" {
		t.Fatalf("closures = %+v", closures)
	}

	closures, err = m.Sweep(ctx, prices)
	if err != nil || len(closures) != 1 || closures[0].Ticker != "A" {
		t.Fatalf("retry closures=%+v err=%v", closures, err)
	}
}

func TestSweep_ZeroThresholdsDisabled(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, "10000")
	l.Buy(ctx, ledger.OpenRequest{Ticker: "X", Quantity: d("1"), Price: d("100")})
	closures, err := NewMonitor(l, nil).Sweep(ctx, map[string]decimal.Decimal{"X": d("1")})
	if err != nil || len(closures) != 0 {
		t.Fatalf("closures=%v err=%v", closures, err)
	}
}

// ── Risk limits ──

func TestRiskManager_Limits(t *testing.T) {
	rm := NewRiskManager(RiskLimits{MaxOpenLots: 2, MaxDrawdownPct: 20}, d("1000"))
	order := &model.Order{Ticker: "X", Side: model.SideLong, Quantity: d("1"), Price: d("10")}

	if ok, reason := rm.CanTrade(order, 1); !ok {
		t.Fatalf("rejected: %s", reason)
	}
	if ok, reason := rm.CanTrade(order, 2); ok || reason != "max open lots reached" {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}

	rm.RecordEquity(d("1200"))
	rm.RecordEquity(d("900"))
	st := rm.Status()
	assertDec(t, "peak", st.PeakEquity, d("1200"))
	if st.DrawdownPct != 25 {
		t.Fatalf("drawdown = %v, want 25", st.DrawdownPct)
	}
	if ok, reason := rm.CanTrade(order, 0); ok || reason != "max drawdown exceeded" {
		t.Fatalf("ok=%v reason=%q", ok, reason)
	}

	flatten := &model.Order{Ticker: "X", Side: model.SideShort, Quantity: decimal.Zero}
	if ok, _ := rm.CanTrade(flatten, 10); !ok {
		t.Fatal("flatten-only order rejected")
	}
}

func TestRiskManager_ZeroLimitsDisabled(t *testing.T) {
	rm := NewRiskManager(RiskLimits{}, d("1000"))
	rm.RecordEquity(d("1"))
	if ok, reason := rm.CanTrade(&model.Order{Quantity: d("1")}, 1000); !ok {
		t.Fatalf("rejected: %s", reason)
	}
}

// ── P&L ──

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, "10000")
	l.Buy(ctx, ledger.OpenRequest{Ticker: "L", Quantity: d("10"), Price: d("100")})
	if _, err := l.Sell(ctx, "L", d("5"), d("110")); err != nil {
		t.Fatal(err)
	}
	l.Short(ctx, ledger.OpenRequest{Ticker: "S", Quantity: d("2"), Price: d("50")})
	if _, err := l.Cover(ctx, "S", d("2"), d("60")); err != nil {
		t.Fatal(err)
	}

	txs, err := l.Transactions(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	s := Summarize(txs, l.Snapshot(), map[string]decimal.Decimal{"L": d("120")})
	assertDec(t, "realized", s.RealizedPnL, d("30"))
	assertDec(t, "unrealized", s.UnrealizedPnL, d("100"))
	assertDec(t, "total", s.TotalPnL, d("130"))
	if s.TotalTrades != 4 || s.ClosingTrades != 2 || s.Wins != 1 || s.Losses != 1 || s.OpenPositions != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if s.WinRate() != 0.5 {
		t.Fatalf("win rate = %v", s.WinRate())
	}
	assertDec(t, "cash", l.Cash(), d("9530"))
}
