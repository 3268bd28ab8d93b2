package engine

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"backtestkit/types"
)

type runState int

const (
	stateNotStarted runState = iota
	stateIterating
	stateFinalized
)

// Summary carries the boundary equity values the evaluator anchors
// total_return on.
type Summary struct {
	StartEquity decimal.NullDecimal
	EndEquity   decimal.NullDecimal
}

// RunResult is everything one completed forward pass produced. All slices
// are in their canonical producer order and are never re-sorted afterwards.
type RunResult struct {
	Request       CanonicalRequest
	Orders        []types.Order
	Fills         []types.Fill
	Positions     []types.Position
	Trades        []types.Trade
	EquityCurve   []types.EquityPoint
	InvocationLog []string
	Summary       Summary
	StepCount     int
}

// ProgressFunc is invoked once per processed step. It must not influence
// any engine state.
type ProgressFunc func(done, total int)

// orchestrator drives one deterministic forward pass: strategy invocation,
// order simulation and equity sampling for a step happen strictly in
// sequence, and no step begins before the previous step's side effects are
// fully committed. One orchestrator serves exactly one run.
type orchestrator struct {
	req        CanonicalRequest
	view       *SnapshotView
	sim        *simulator
	strategies []boundStrategy
	log        zerolog.Logger
	progress   ProgressFunc

	state    runState
	sequence int64
	orders   []types.Order
	equity   []types.EquityPoint
	invLog   []string
	marks    map[string]decimal.Decimal
}

type boundStrategy struct {
	key  string
	impl Strategy
}

func newOrchestrator(req CanonicalRequest, view *SnapshotView, registry *Registry, log zerolog.Logger, progress ProgressFunc) (*orchestrator, error) {
	// Strategies are resolved once, by key only, in canonical sorted order.
	strategies := make([]boundStrategy, 0, len(req.Strategies))
	for _, key := range req.Strategies {
		impl, err := registry.Resolve(key)
		if err != nil {
			return nil, err
		}
		if err := impl.Init(req.StrategyConfigs[key]); err != nil {
			return nil, fmt.Errorf("%w: strategy %s config: %v", ErrInputInvalid, key, err)
		}
		strategies = append(strategies, boundStrategy{key: key, impl: impl})
	}
	return &orchestrator{
		req:        req,
		view:       view,
		sim:        newSimulator(req.EngineConfig),
		strategies: strategies,
		log:        log,
		progress:   progress,
		state:      stateNotStarted,
		marks:      make(map[string]decimal.Decimal),
	}, nil
}

// run performs the single forward pass. Re-entry is an error.
func (o *orchestrator) run() (RunResult, error) {
	if o.state != stateNotStarted {
		return RunResult{}, ErrRunAlreadyDone
	}
	o.state = stateIterating
	o.invLog = append(o.invLog, "on_run_start")

	steps := o.view.StepKeys()
	for i, stepKey := range steps {
		if err := o.processStep(stepKey); err != nil {
			return RunResult{}, err
		}
		if o.progress != nil {
			o.progress(i+1, len(steps))
		}
	}

	o.invLog = append(o.invLog, "on_run_end")
	o.state = stateFinalized
	return o.finalize(), nil
}

// processStep runs one step end to end: invoke every strategy over every
// symbol that has a bar at this step, execute eligible fills, then sample
// one equity point. The step either commits completely or the run fails.
func (o *orchestrator) processStep(stepKey string) error {
	stepBars := make(map[string]types.Bar)
	for _, symbol := range o.view.Symbols() {
		bar, ok := o.view.BarAt(symbol, stepKey)
		if !ok {
			continue
		}
		stepBars[symbol] = bar
		if mark, ok := markPrice(bar); ok {
			o.marks[symbol] = mark
		}
	}

	// Invocation order: canonical strategy order, then lexicographic symbol
	// order within each strategy. This ordering is load-bearing for the
	// global sequence counter.
	for _, strat := range o.strategies {
		for _, symbol := range o.view.Symbols() {
			bar, ok := stepBars[symbol]
			if !ok {
				continue
			}
			if err := o.invoke(strat, symbol, bar, stepKey); err != nil {
				return err
			}
		}
	}

	fills, err := o.sim.executeStep(stepKey, stepBars)
	if err != nil {
		return fmt.Errorf("step %s: %w", stepKey, err)
	}
	for _, fill := range fills {
		o.invLog = append(o.invLog, fmt.Sprintf("fill:%s:%s", fill.OrderID, stepKey))
	}

	o.equity = append(o.equity, types.EquityPoint{
		SnapshotKey: stepKey,
		Equity:      o.sim.equity(o.marks),
	})
	return nil
}

func (o *orchestrator) invoke(strat boundStrategy, symbol string, bar types.Bar, stepKey string) error {
	ctx := StepContext{
		Symbol:      symbol,
		Timeframe:   o.req.Timeframe,
		SnapshotKey: stepKey,
		Bar:         bar,
		History:     o.view.HistoryThrough(symbol, stepKey),
	}
	intents, err := strat.impl.OnBar(ctx)
	if err != nil {
		// Fail fast: a raising strategy is never retried and none of this
		// step's side effects are committed.
		return fmt.Errorf("strategy %s at %s: %w", strat.key, stepKey, err)
	}
	o.invLog = append(o.invLog, fmt.Sprintf("on_bar:%s:%s:%s", strat.key, symbol, stepKey))

	// Multiple intents for one symbol in one step are independent orders
	// processed in emission order, never merged.
	for _, intent := range intents {
		if !intent.Side.Valid() {
			return fmt.Errorf("strategy %s at %s: %w", strat.key, stepKey, ErrUnknownSide)
		}
		o.sequence++
		order := types.Order{
			ID:                 fmt.Sprintf("ord-%06d", o.sequence),
			Symbol:             symbol,
			Strategy:           strat.key,
			Side:               intent.Side,
			Quantity:           intent.Quantity,
			CreatedSnapshotKey: stepKey,
			Sequence:           o.sequence,
		}
		if err := o.sim.queue(order); err != nil {
			return fmt.Errorf("strategy %s at %s: %w", strat.key, stepKey, err)
		}
		o.orders = append(o.orders, order)
		o.log.Debug().
			Str("order_id", order.ID).
			Str("strategy", strat.key).
			Str("symbol", symbol).
			Str("side", string(intent.Side)).
			Str("step", stepKey).
			Msg("order queued")
	}
	return nil
}

func (o *orchestrator) finalize() RunResult {
	summary := Summary{}
	if len(o.equity) > 0 {
		summary.StartEquity = decimal.NewNullDecimal(o.equity[0].Equity)
		summary.EndEquity = decimal.NewNullDecimal(o.equity[len(o.equity)-1].Equity)
	}
	return RunResult{
		Request:       o.req,
		Orders:        o.orders,
		Fills:         o.sim.fills,
		Positions:     o.sim.positionList(),
		Trades:        o.sim.trades,
		EquityCurve:   o.equity,
		InvocationLog: o.invLog,
		Summary:       summary,
		StepCount:     len(o.view.StepKeys()),
	}
}

// markPrice selects the mark-to-market price of a bar: close, else price,
// else open. Fills use the stricter open-else-price rule instead.
func markPrice(bar types.Bar) (decimal.Decimal, bool) {
	switch {
	case bar.Close.Valid:
		return bar.Close.Decimal, true
	case bar.Price.Valid:
		return bar.Price.Decimal, true
	case bar.Open.Valid:
		return bar.Open.Decimal, true
	}
	return decimal.Zero, false
}
