package types

import "github.com/shopspring/decimal"

// EquityPoint is one mark-to-market sample of the portfolio, taken once per
// processed step after all fills for that step are committed.
type EquityPoint struct {
	SnapshotKey string          `json:"timestamp"`
	Equity      decimal.Decimal `json:"equity"`
}
