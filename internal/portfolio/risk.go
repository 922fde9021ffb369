package portfolio

import (
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/model"
)

// RiskLimits defines pre-trade thresholds. Zero disables a limit.
type RiskLimits struct {
	MaxOpenLots    int     `json:"max_open_lots"`    // long + short lots held at once
	MaxDrawdownPct float64 `json:"max_drawdown_pct"` // from peak equity, 0-100
}

// DefaultRiskLimits returns conservative default limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxOpenLots:    50,
		MaxDrawdownPct: 20.0,
	}
}

// RiskManager gates new orders against RiskLimits and tracks equity.
type RiskManager struct {
	mu     sync.RWMutex
	limits RiskLimits

	equity     decimal.Decimal
	peakEquity decimal.Decimal
}

// NewRiskManager creates a RiskManager with the given limits and starting equity.
func NewRiskManager(limits RiskLimits, initialEquity decimal.Decimal) *RiskManager {
	return &RiskManager{
		limits:     limits,
		equity:     initialEquity,
		peakEquity: initialEquity,
	}
}

// CanTrade checks whether order may open a new lot while openLots are held.
// Flatten-only orders (zero quantity) only reduce exposure and always pass.
// Returns false with a reason if a limit would be violated.
func (rm *RiskManager) CanTrade(order *model.Order, openLots int) (bool, string) {
	if order == nil || order.Quantity.IsZero() {
		return true, ""
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if rm.limits.MaxOpenLots > 0 && openLots >= rm.limits.MaxOpenLots {
		return false, "max open lots reached"
	}
	if rm.limits.MaxDrawdownPct > 0 && rm.drawdownPct() > rm.limits.MaxDrawdownPct {
		return false, "max drawdown exceeded"
	}
	return true, ""
}

// RecordEquity updates the marked-to-market equity and its running peak.
func (rm *RiskManager) RecordEquity(equity decimal.Decimal) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.equity = equity
	if equity.GreaterThan(rm.peakEquity) {
		rm.peakEquity = equity
	}

	log.Printf("[risk] equity: %s, peak: %s, drawdown: %.2f%%",
		rm.equity.StringFixed(2), rm.peakEquity.StringFixed(2), rm.drawdownPct())
}

func (rm *RiskManager) drawdownPct() float64 {
	if !rm.peakEquity.IsPositive() {
		return 0
	}
	dd, _ := rm.peakEquity.Sub(rm.equity).Div(rm.peakEquity).Mul(decimal.NewFromInt(100)).Float64()
	return dd
}

// RiskStatus is a point-in-time view of the risk state.
type RiskStatus struct {
	Equity      decimal.Decimal `json:"equity"`
	PeakEquity  decimal.Decimal `json:"peak_equity"`
	DrawdownPct float64         `json:"drawdown_pct"`
	Limits      RiskLimits      `json:"limits"`
}

// Status returns current risk status.
func (rm *RiskManager) Status() RiskStatus {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return RiskStatus{
		Equity:      rm.equity,
		PeakEquity:  rm.peakEquity,
		DrawdownPct: rm.drawdownPct(),
		Limits:      rm.limits,
	}
}
