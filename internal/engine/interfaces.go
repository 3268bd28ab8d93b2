package engine

import (
	"encoding/json"

	"backtestkit/types"
)

// StepContext is what a strategy sees on one invocation: the bar being
// processed and the full history of its (symbol, timeframe) partition up to
// and including that bar. No future bars are ever visible.
type StepContext struct {
	Symbol      string
	Timeframe   types.Timeframe
	SnapshotKey string
	Bar         types.Bar
	History     []types.Bar
}

// Strategy is the pluggable signal generator consumed by the orchestrator.
// Implementations must be deterministic: same StepContext sequence, same
// orders. They may hold internal state across invocations but never touch
// engine-owned state.
type Strategy interface {
	// Init receives the raw per-strategy config from the request. A nil
	// config means "use defaults".
	Init(config json.RawMessage) error
	// OnBar returns zero or more order intents for the current step.
	OnBar(ctx StepContext) ([]types.OrderIntent, error)
}

// StrategyFactory builds a fresh strategy instance for one run. Factories
// are registered once in a closed registry; there is no dynamic discovery.
type StrategyFactory func() Strategy
