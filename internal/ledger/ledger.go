// Package ledger is the durable record of cash, open long and short lots,
// and the append-only transaction log.
//
// All mutations run under one mutex and are persisted as a single store
// transaction before the in-memory view changes, so cash and quantities are
// never observed half-updated. Cash never goes negative: a leveraged loss
// larger than a lot's margin liquidates the lot at zero.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/model"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrNoOpenShort        = errors.New("no open short position")
	ErrInvalidQuantity    = errors.New("invalid quantity or price")
	ErrUnknownLot         = errors.New("unknown lot")
)

// DefaultBudget is the cash a fresh ledger starts with.
var DefaultBudget = decimal.NewFromInt(100000)

// Ledger owns cash, lots and the transaction log.
type Ledger struct {
	mu     sync.Mutex
	store  Store
	cash   decimal.Decimal
	longs  []model.Position // FIFO by open time
	shorts []model.ShortPosition
	now    func() time.Time
	newID  func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the transaction timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides lot ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

// Open loads the ledger from store, seeding it with initialBudget on first use.
func Open(ctx context.Context, store Store, initialBudget decimal.Decimal, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(l)
	}

	st, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger load: %w", err)
	}
	if !st.Seeded {
		if initialBudget.IsNegative() {
			return nil, fmt.Errorf("ledger seed: negative budget %s", initialBudget)
		}
		if err := store.Seed(ctx, initialBudget); err != nil {
			return nil, fmt.Errorf("ledger seed: %w", err)
		}
		st.Cash = initialBudget
	}

	l.cash = st.Cash
	l.longs = st.Longs
	l.shorts = st.Shorts
	// lots that survived a restart have already been through a sweep
	for i := range l.longs {
		l.longs[i].State = model.LotMonitoring
	}
	for i := range l.shorts {
		l.shorts[i].State = model.LotMonitoring
	}
	sort.SliceStable(l.longs, func(i, j int) bool { return l.longs[i].OpenedAt.Before(l.longs[j].OpenedAt) })
	sort.SliceStable(l.shorts, func(i, j int) bool { return l.shorts[i].OpenedAt.Before(l.shorts[j].OpenedAt) })
	return l, nil
}

// Close closes the underlying store.
func (l *Ledger) Close() error {
	return l.store.Close()
}

// OpenRequest describes a new long or short lot.
// StopLoss and TakeProfit are absolute prices; zero disables that exit.
type OpenRequest struct {
	Ticker     string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Leverage   int
}

func (r *OpenRequest) validate() error {
	if r.Ticker == "" || !r.Quantity.IsPositive() || !r.Price.IsPositive() {
		return fmt.Errorf("%w: %s qty=%s price=%s", ErrInvalidQuantity, r.Ticker, r.Quantity, r.Price)
	}
	if r.Leverage < 1 {
		r.Leverage = 1
	}
	return nil
}

// Receipt summarises the lots touched by a sell or cover.
type Receipt struct {
	Transactions []model.Transaction `json:"transactions"`
	Gain         decimal.Decimal     `json:"gain"`
	CashDelta    decimal.Decimal     `json:"cash_delta"`
	Closed       []string            `json:"closed"` // lot IDs fully closed
}

// Buy debits quantity×price and opens a long lot.
func (l *Ledger) Buy(ctx context.Context, req OpenRequest) (model.Position, model.Transaction, error) {
	if err := req.validate(); err != nil {
		return model.Position{}, model.Transaction{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cost := req.Price.Mul(req.Quantity)
	if cost.GreaterThan(l.cash) {
		return model.Position{}, model.Transaction{}, fmt.Errorf("buy %s %s @ %s costs %s, cash %s: %w",
			req.Ticker, req.Quantity, req.Price, cost.StringFixed(2), l.cash.StringFixed(2), ErrInsufficientFunds)
	}

	now := l.now()
	lot := model.Position{
		ID: l.newID(), Ticker: req.Ticker, Quantity: req.Quantity, EntryPrice: req.Price,
		StopLoss: req.StopLoss, TakeProfit: req.TakeProfit, Leverage: req.Leverage,
		OpenedAt: now, State: model.LotOpen,
	}
	tx := model.Transaction{
		Ticker: req.Ticker, Quantity: req.Quantity, Price: req.Price, Type: model.TxBuy,
		Timestamp: now, Leverage: req.Leverage, Gain: decimal.Zero, LotID: lot.ID,
	}
	newCash := l.cash.Sub(cost)
	ids, err := l.store.Commit(ctx, Change{Cash: newCash, PutLongs: []model.Position{lot}, Transactions: []model.Transaction{tx}})
	if err != nil {
		return model.Position{}, model.Transaction{}, fmt.Errorf("buy %s: %w", req.Ticker, err)
	}
	tx.ID = ids[0]
	l.cash = newCash
	l.longs = append(l.longs, lot)
	return lot, tx, nil
}

// Short credits quantity×price as collateral proceeds and opens a short lot.
// The proceeds may not exceed current cash.
func (l *Ledger) Short(ctx context.Context, req OpenRequest) (model.ShortPosition, model.Transaction, error) {
	if err := req.validate(); err != nil {
		return model.ShortPosition{}, model.Transaction{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	proceeds := req.Price.Mul(req.Quantity)
	if proceeds.GreaterThan(l.cash) {
		return model.ShortPosition{}, model.Transaction{}, fmt.Errorf("short %s %s @ %s needs %s collateral, cash %s: %w",
			req.Ticker, req.Quantity, req.Price, proceeds.StringFixed(2), l.cash.StringFixed(2), ErrInsufficientFunds)
	}

	now := l.now()
	lot := model.ShortPosition{
		ID: l.newID(), Ticker: req.Ticker, Quantity: req.Quantity, EntryPrice: req.Price,
		StopLoss: req.StopLoss, TakeProfit: req.TakeProfit, Leverage: req.Leverage,
		OpenedAt: now, State: model.LotOpen,
	}
	tx := model.Transaction{
		Ticker: req.Ticker, Quantity: req.Quantity, Price: req.Price, Type: model.TxShort,
		Timestamp: now, Leverage: req.Leverage, Gain: decimal.Zero, LotID: lot.ID,
	}
	newCash := l.cash.Add(proceeds)
	ids, err := l.store.Commit(ctx, Change{Cash: newCash, PutShorts: []model.ShortPosition{lot}, Transactions: []model.Transaction{tx}})
	if err != nil {
		return model.ShortPosition{}, model.Transaction{}, fmt.Errorf("short %s: %w", req.Ticker, err)
	}
	tx.ID = ids[0]
	l.cash = newCash
	l.shorts = append(l.shorts, lot)
	return lot, tx, nil
}

// Sell closes quantity of ticker's long lots FIFO at price. It fails with
// ErrInsufficientShares unless the full quantity is open.
func (l *Ledger) Sell(ctx context.Context, ticker string, qty, price decimal.Decimal) (Receipt, error) {
	if !qty.IsPositive() || !price.IsPositive() {
		return Receipt{}, fmt.Errorf("%w: sell %s qty=%s price=%s", ErrInvalidQuantity, ticker, qty, price)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	open := decimal.Zero
	for _, p := range l.longs {
		if p.Ticker == ticker {
			open = open.Add(p.Quantity)
		}
	}
	if open.LessThan(qty) {
		return Receipt{}, fmt.Errorf("sell %s %s, open %s: %w", ticker, qty, open, ErrInsufficientShares)
	}
	return l.closeLongs(ctx, func(p model.Position) bool { return p.Ticker == ticker }, qty, price)
}

// SellAll closes every long lot of ticker.
func (l *Ledger) SellAll(ctx context.Context, ticker string, price decimal.Decimal) (Receipt, error) {
	long, _ := l.OpenQuantity(ticker)
	if long.IsZero() {
		return Receipt{}, fmt.Errorf("sell all %s: %w", ticker, ErrInsufficientShares)
	}
	return l.Sell(ctx, ticker, long, price)
}

// SellLot closes one long lot in full.
func (l *Ledger) SellLot(ctx context.Context, lotID string, price decimal.Decimal) (Receipt, error) {
	if !price.IsPositive() {
		return Receipt{}, fmt.Errorf("%w: sell lot %s price=%s", ErrInvalidQuantity, lotID, price)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range l.longs {
		if p.ID == lotID {
			return l.closeLongs(ctx, func(c model.Position) bool { return c.ID == lotID }, p.Quantity, price)
		}
	}
	return Receipt{}, fmt.Errorf("sell lot %s: %w", lotID, ErrUnknownLot)
}

// closeLongs consumes matching lots in FIFO order. Caller holds l.mu and has
// checked that enough quantity is open.
func (l *Ledger) closeLongs(ctx context.Context, match func(model.Position) bool, qty, price decimal.Decimal) (Receipt, error) {
	now := l.now()
	newCash := l.cash
	remaining := qty
	var (
		ch      Change
		rc      Receipt
		updated = make([]model.Position, 0, len(l.longs))
	)
	for _, p := range l.longs {
		if remaining.IsZero() || !match(p) {
			updated = append(updated, p)
			continue
		}
		take := decimal.Min(remaining, p.Quantity)
		remaining = remaining.Sub(take)

		margin := p.EntryPrice.Mul(take)
		gain := price.Sub(p.EntryPrice).Mul(take).Mul(decimal.NewFromInt(int64(p.Leverage)))
		credit := margin.Add(gain)
		if credit.IsNegative() {
			credit = decimal.Zero
			gain = margin.Neg()
		}
		newCash = newCash.Add(credit)
		rc.Gain = rc.Gain.Add(gain)
		rc.CashDelta = rc.CashDelta.Add(credit)

		ch.Transactions = append(ch.Transactions, model.Transaction{
			Ticker: p.Ticker, Quantity: take, Price: price, Type: model.TxSell,
			Timestamp: now, Leverage: p.Leverage, Gain: gain, LotID: p.ID,
		})
		if take.Equal(p.Quantity) {
			ch.DeleteLongs = append(ch.DeleteLongs, p.ID)
			rc.Closed = append(rc.Closed, p.ID)
			continue
		}
		p.Quantity = p.Quantity.Sub(take)
		ch.PutLongs = append(ch.PutLongs, p)
		updated = append(updated, p)
	}
	ch.Cash = newCash

	ids, err := l.store.Commit(ctx, ch)
	if err != nil {
		return Receipt{}, fmt.Errorf("sell: %w", err)
	}
	for i := range ch.Transactions {
		ch.Transactions[i].ID = ids[i]
	}
	rc.Transactions = ch.Transactions
	l.cash = newCash
	l.longs = updated
	return rc, nil
}

// Cover buys back quantity of ticker's short lots FIFO at price. It fails
// with ErrNoOpenShort unless the full quantity is open short.
func (l *Ledger) Cover(ctx context.Context, ticker string, qty, price decimal.Decimal) (Receipt, error) {
	if !qty.IsPositive() || !price.IsPositive() {
		return Receipt{}, fmt.Errorf("%w: cover %s qty=%s price=%s", ErrInvalidQuantity, ticker, qty, price)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	open := decimal.Zero
	for _, s := range l.shorts {
		if s.Ticker == ticker {
			open = open.Add(s.Quantity)
		}
	}
	if open.IsZero() {
		return Receipt{}, fmt.Errorf("cover %s: %w", ticker, ErrNoOpenShort)
	}
	if open.LessThan(qty) {
		return Receipt{}, fmt.Errorf("cover %s %s, open short %s: %w", ticker, qty, open, ErrNoOpenShort)
	}
	return l.closeShorts(ctx, func(s model.ShortPosition) bool { return s.Ticker == ticker }, qty, price)
}

// CoverAll buys back every short lot of ticker.
func (l *Ledger) CoverAll(ctx context.Context, ticker string, price decimal.Decimal) (Receipt, error) {
	_, short := l.OpenQuantity(ticker)
	if short.IsZero() {
		return Receipt{}, fmt.Errorf("cover all %s: %w", ticker, ErrNoOpenShort)
	}
	return l.Cover(ctx, ticker, short, price)
}

// CoverLot buys back one short lot in full.
func (l *Ledger) CoverLot(ctx context.Context, lotID string, price decimal.Decimal) (Receipt, error) {
	if !price.IsPositive() {
		return Receipt{}, fmt.Errorf("%w: cover lot %s price=%s", ErrInvalidQuantity, lotID, price)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range l.shorts {
		if s.ID == lotID {
			return l.closeShorts(ctx, func(c model.ShortPosition) bool { return c.ID == lotID }, s.Quantity, price)
		}
	}
	return Receipt{}, fmt.Errorf("cover lot %s: %w", lotID, ErrUnknownLot)
}

// closeShorts mirrors closeLongs. The debit is capped at available cash.
func (l *Ledger) closeShorts(ctx context.Context, match func(model.ShortPosition) bool, qty, price decimal.Decimal) (Receipt, error) {
	now := l.now()
	newCash := l.cash
	remaining := qty
	var (
		ch      Change
		rc      Receipt
		updated = make([]model.ShortPosition, 0, len(l.shorts))
	)
	for _, s := range l.shorts {
		if remaining.IsZero() || !match(s) {
			updated = append(updated, s)
			continue
		}
		take := decimal.Min(remaining, s.Quantity)
		remaining = remaining.Sub(take)

		collateral := s.EntryPrice.Mul(take)
		gain := s.EntryPrice.Sub(price).Mul(take).Mul(decimal.NewFromInt(int64(s.Leverage)))
		debit := collateral.Sub(gain)
		if debit.GreaterThan(newCash) {
			debit = newCash
			gain = collateral.Sub(debit)
		}
		newCash = newCash.Sub(debit)
		rc.Gain = rc.Gain.Add(gain)
		rc.CashDelta = rc.CashDelta.Sub(debit)

		ch.Transactions = append(ch.Transactions, model.Transaction{
			Ticker: s.Ticker, Quantity: take, Price: price, Type: model.TxCover,
			Timestamp: now, Leverage: s.Leverage, Gain: gain, LotID: s.ID,
		})
		if take.Equal(s.Quantity) {
			ch.DeleteShorts = append(ch.DeleteShorts, s.ID)
			rc.Closed = append(rc.Closed, s.ID)
			continue
		}
		s.Quantity = s.Quantity.Sub(take)
		ch.PutShorts = append(ch.PutShorts, s)
		updated = append(updated, s)
	}
	ch.Cash = newCash

	ids, err := l.store.Commit(ctx, ch)
	if err != nil {
		return Receipt{}, fmt.Errorf("cover: %w", err)
	}
	for i := range ch.Transactions {
		ch.Transactions[i].ID = ids[i]
	}
	rc.Transactions = ch.Transactions
	l.cash = newCash
	l.shorts = updated
	return rc, nil
}
