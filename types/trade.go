package types

import "github.com/shopspring/decimal"

// Trade is a closed round-trip derived from fills. It is created when a
// position-reducing fill fully or partially closes an open position and is
// immutable thereafter. RealizedPnL is net of the closing fill's commission.
type Trade struct {
	ID              string          `json:"trade_id"`
	Symbol          string          `json:"symbol"`
	Quantity        decimal.Decimal `json:"quantity"`
	EntryAvgPrice   decimal.Decimal `json:"entry_avg_price"`
	ExitPrice       decimal.Decimal `json:"exit_price"`
	ExitSnapshotKey string          `json:"exit_ts"`
	RealizedPnL     decimal.Decimal `json:"pnl"`
}
