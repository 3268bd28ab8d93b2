package types

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// FillTiming selects when an order becomes eligible for execution.
type FillTiming string

const (
	// FillNextSnapshot fills an order no earlier than the step after its
	// creation step. This is the default and the only no-lookahead mode.
	FillNextSnapshot FillTiming = "next_snapshot"
	// FillSameSnapshot allows filling on the creation step itself.
	FillSameSnapshot FillTiming = "same_snapshot"
)

// EngineConfig carries the execution parameters of a backtest run.
type EngineConfig struct {
	LookbackDays       int             `json:"lookback_days" validate:"required,gt=0"`
	MarketType         string          `json:"market_type" validate:"required,oneof=stock crypto"`
	DataSource         string          `json:"data_source" validate:"required"`
	InitialCash        decimal.Decimal `json:"initial_cash"`
	SlippageBps        int             `json:"slippage_bps" validate:"gte=0"`
	CommissionPerOrder decimal.Decimal `json:"commission_per_order"`
	PriceScale         int32           `json:"price_scale" default:"8" validate:"gte=0"`
	MoneyScale         int32           `json:"money_scale" default:"2" validate:"gte=0"`
	QuantityScale      int32           `json:"quantity_scale" default:"8" validate:"gte=0"`
	FillTiming         FillTiming      `json:"fill_timing" default:"next_snapshot" validate:"oneof=next_snapshot same_snapshot"`
}

// BacktestRequest is the immutable input of a run as delivered by the caller.
// The engine revalidates every semantic invariant regardless of any
// transport-level validation already performed upstream.
type BacktestRequest struct {
	SchemaVersion   string                     `json:"schema_version" validate:"required,semver"`
	SnapshotID      string                     `json:"snapshot_id" validate:"required"`
	IngestionRunID  string                     `json:"ingestion_run_id" validate:"required"`
	Symbols         []string                   `json:"symbols" validate:"required,min=1,dive,required"`
	Timeframe       Timeframe                  `json:"timeframe" validate:"required"`
	Strategies      []string                   `json:"strategies" validate:"required,min=1,dive,required"`
	StrategyConfigs map[string]json.RawMessage `json:"strategy_configs,omitempty"`
	EngineConfig    EngineConfig               `json:"engine_config" validate:"required"`

	// CreatedAt is informational only and never feeds any computation.
	CreatedAt string `json:"created_at,omitempty"`
}
