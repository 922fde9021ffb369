package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/ledger"
)

// Runs only against a disposable database: POSTGRES_TEST_DSN=postgres://...
func TestLedgerStore_Postgres(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	store, err := NewLedgerStore(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	for _, tbl := range []string{"transactions", "portfolio", "short_positions", "budget"} {
		if _, err := store.pool.Exec(ctx, "DELETE FROM "+tbl); err != nil {
			t.Fatal(err)
		}
	}

	l, err := ledger.Open(ctx, store, decimal.NewFromInt(1000))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.Buy(ctx, ledger.OpenRequest{Ticker: "JPM", Quantity: decimal.NewFromInt(2), Price: decimal.NewFromInt(200)}); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Sell(ctx, "JPM", decimal.NewFromInt(1), decimal.NewFromInt(210)); err != nil {
		t.Fatal(err)
	}

	again, err := ledger.Open(ctx, store, decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	// 1000 - 400 + 210
	if !again.Cash().Equal(decimal.NewFromInt(810)) {
		t.Fatalf("cash = %s", again.Cash())
	}
	if pos := again.Positions(); len(pos) != 1 || !pos[0].Quantity.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("positions = %+v", pos)
	}
	txs, err := again.Transactions(ctx, "JPM", 0)
	if err != nil || len(txs) != 2 {
		t.Fatalf("transactions = %v, %v", txs, err)
	}
}
