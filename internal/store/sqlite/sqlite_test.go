package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/ledger"
	"trading-advisorv1/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	store, err := NewLedgerStore(path)
	if err != nil {
		t.Fatal(err)
	}
	l, err := ledger.Open(ctx, store, ledger.DefaultBudget)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.Buy(ctx, ledger.OpenRequest{Ticker: "AAPL", Quantity: d("10"), Price: d("150"),
		StopLoss: d("149.7"), TakeProfit: d("150.75"), Leverage: 1}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.Short(ctx, ledger.OpenRequest{Ticker: "TSLA", Quantity: d("2"), Price: d("250.5"), Leverage: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Sell(ctx, "AAPL", d("4"), d("151")); err != nil {
		t.Fatal(err)
	}
	l.Close()

	store2, err := NewLedgerStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store2.Close()
	l2, err := ledger.Open(ctx, store2, decimal.NewFromInt(1))
	if err != nil {
		t.Fatal(err)
	}
	// 100000 - 1500 + 501 + 604 = 99605
	if !l2.Cash().Equal(d("99605")) {
		t.Fatalf("cash = %s, want 99605", l2.Cash())
	}
	longs := l2.Positions()
	if len(longs) != 1 || !longs[0].Quantity.Equal(d("6")) || !longs[0].StopLoss.Equal(d("149.7")) {
		t.Fatalf("longs = %+v", longs)
	}
	shorts := l2.ShortPositions()
	if len(shorts) != 1 || !shorts[0].EntryPrice.Equal(d("250.5")) || shorts[0].Leverage != 2 {
		t.Fatalf("shorts = %+v", shorts)
	}

	txs, err := l2.Transactions(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 3 || txs[0].Type != model.TxSell || !txs[0].Gain.Equal(d("4")) {
		t.Fatalf("transactions = %+v", txs)
	}
	aapl, _ := l2.Transactions(ctx, "AAPL", 1)
	if len(aapl) != 1 || aapl[0].ID != 3 {
		t.Fatalf("filtered = %+v", aapl)
	}
}

func TestLedgerStore_RollbackOnFailure(t *testing.T) {
	ctx := context.Background()
	store, err := NewLedgerStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.Seed(ctx, d("100")); err != nil {
		t.Fatal(err)
	}
	// invalid type violates the CHECK constraint after the budget update
	_, err = store.Commit(ctx, ledger.Change{
		Cash:         d("50"),
		Transactions: []model.Transaction{{Ticker: "X", Quantity: d("1"), Price: d("1"), Type: "gift"}},
	})
	if err == nil {
		t.Fatal("expected constraint error")
	}
	st, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Cash.Equal(d("100")) {
		t.Fatalf("cash = %s, budget update should roll back", st.Cash)
	}
}

func TestLedgerStore_InsufficientFundsNotPersisted(t *testing.T) {
	ctx := context.Background()
	store, _ := NewLedgerStore(filepath.Join(t.TempDir(), "ledger.db"))
	defer store.Close()
	l, _ := ledger.Open(ctx, store, d("10"))
	_, _, err := l.Buy(ctx, ledger.OpenRequest{Ticker: "X", Quantity: d("1"), Price: d("11")})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v", err)
	}
	txs, _ := store.Transactions(ctx, "", 0)
	if len(txs) != 0 {
		t.Fatalf("transactions = %d, want 0", len(txs))
	}
}

func TestCandleArchive_RoundTrip(t *testing.T) {
	ctx := context.Background()
	a, err := NewCandleArchive(filepath.Join(t.TempDir(), "candles.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	base := time.Date(2026, 2, 2, 14, 30, 0, 0, time.UTC)
	s := model.Series{Ticker: "ETH-EUR", Interval: "1m"}
	for i := 0; i < 5; i++ {
		p := 2000 + float64(i)
		s.Candles = append(s.Candles, model.Candle{Ticker: "ETH-EUR", TS: base.Add(time.Duration(i) * time.Minute),
			Open: p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 3})
	}
	if err := a.SaveSeries(ctx, s); err != nil {
		t.Fatal(err)
	}
	// re-saving overlapping bars must not duplicate them
	if err := a.SaveSeries(ctx, s.Window(3)); err != nil {
		t.Fatal(err)
	}

	got, err := a.ReadSeries(ctx, "ETH-EUR", "1m", base.Add(time.Minute), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 4 || got.Candles[0].Close != 2001.5 {
		t.Fatalf("series = %+v", got)
	}
	if err := got.Validate(); err != nil {
		t.Fatal(err)
	}
}
