package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxType is the kind of ledger transaction.
type TxType string

const (
	TxBuy   TxType = "buy"
	TxSell  TxType = "sell"
	TxShort TxType = "short"
	TxCover TxType = "cover"
)

// Transaction is an append-only ledger record. ID is assigned by the store.
type Transaction struct {
	ID        int64           `json:"id"`
	Ticker    string          `json:"ticker"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Type      TxType          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Leverage  int             `json:"leverage"`
	Gain      decimal.Decimal `json:"gain"` // realised P&L, zero for opening trades
	LotID     string          `json:"lot_id"`
}
