// Package execution fills sized orders against the ledger.
//
// Only paper execution exists: fills happen immediately at the quoted
// price adjusted by simulated slippage. Any broker-backed executor must
// satisfy the same Executor interface.
package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"trading-advisorv1/internal/ledger"
	"trading-advisorv1/internal/model"
)

// Fill is the outcome of executing one order.
type Fill struct {
	Order     model.Order        `json:"order"`
	FillPrice decimal.Decimal    `json:"fill_price"`
	Slippage  decimal.Decimal    `json:"slippage"` // per unit
	Flattened *ledger.Receipt    `json:"flattened,omitempty"`
	Opened    *model.Transaction `json:"opened,omitempty"`
	LotID     string             `json:"lot_id,omitempty"`
	FilledAt  time.Time          `json:"filled_at"`
}

// Executor places orders.
type Executor interface {
	Execute(ctx context.Context, order *model.Order) (Fill, error)
}
