package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotKeyLayout is the canonical key format for a snapshot step. Keys are
// fixed-width UTC timestamps so lexicographic order equals chronological order.
const SnapshotKeyLayout = "2006-01-02T15:04:05Z"

// Bar is a single time-bucketed snapshot row for a (symbol, timeframe)
// partition. Open/High/Low/Close/Price/Volume are nullable because a snapshot
// may carry plain quote rows ("price") instead of full OHLCV bars.
type Bar struct {
	Symbol    string              `json:"symbol"`
	Timeframe Timeframe           `json:"timeframe"`
	Timestamp time.Time           `json:"timestamp"`
	Open      decimal.NullDecimal `json:"open"`
	High      decimal.NullDecimal `json:"high"`
	Low       decimal.NullDecimal `json:"low"`
	Close     decimal.NullDecimal `json:"close"`
	Price     decimal.NullDecimal `json:"price"`
	Volume    decimal.NullDecimal `json:"volume"`
}

// SnapshotKey returns the canonical step key of the bar.
func (b Bar) SnapshotKey() string {
	return b.Timestamp.UTC().Format(SnapshotKeyLayout)
}
