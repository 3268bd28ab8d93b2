package types

import "github.com/shopspring/decimal"

// Position is the per-symbol aggregate owned by the execution simulator.
// AvgPrice is the weighted average entry price of the remaining quantity and
// resets to zero when the position is fully closed.
type Position struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}
