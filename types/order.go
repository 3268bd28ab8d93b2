package types

import "github.com/shopspring/decimal"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether the side is BUY or SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderIntent is what a strategy emits: a direction and a quantity. The
// orchestrator turns intents into Orders by assigning identity and sequence.
type OrderIntent struct {
	Side     Side
	Quantity decimal.Decimal
}

// Order is the intent to trade a symbol, stamped with the step key it was
// created at and a globally monotonic sequence number. Orders are consumed
// exactly once by the execution simulator.
type Order struct {
	ID                 string          `json:"id"`
	Symbol             string          `json:"symbol"`
	Strategy           string          `json:"strategy"`
	Side               Side            `json:"side"`
	Quantity           decimal.Decimal `json:"quantity"`
	CreatedSnapshotKey string          `json:"created_snapshot_key"`
	Sequence           int64           `json:"sequence"`
}

// Fill is the realized execution of an Order. Immutable once created; an
// order fills atomically for its entire quantity or not at all.
type Fill struct {
	OrderID     string          `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	FillPrice   decimal.Decimal `json:"fill_price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Commission  decimal.Decimal `json:"commission"`
	SnapshotKey string          `json:"snapshot_key"`
}
