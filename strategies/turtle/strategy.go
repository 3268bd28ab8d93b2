// Package turtle implements the classic breakout strategy: enter when the
// close breaks above the highest high of the entry lookback window, exit when
// it falls below the lowest low of the exit lookback window. Both windows end
// at the bar before the current one.
package turtle

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"backtestkit/internal/engine"
	"backtestkit/types"
)

// Config tunes the breakout windows.
type Config struct {
	EntryLookback int             `json:"breakout_lookback"`
	ExitLookback  int             `json:"exit_lookback"`
	Quantity      decimal.Decimal `json:"quantity"`
}

// Strategy holds per-run, per-symbol position state.
type Strategy struct {
	cfg     Config
	holding map[string]bool
}

// New returns an uninitialized strategy instance.
func New() *Strategy {
	return &Strategy{holding: make(map[string]bool)}
}

// Init applies config defaults and overrides from the request.
func (s *Strategy) Init(raw json.RawMessage) error {
	s.cfg = Config{
		EntryLookback: 20,
		ExitLookback:  10,
		Quantity:      decimal.NewFromInt(1),
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.cfg); err != nil {
			return fmt.Errorf("turtle config: %w", err)
		}
	}
	if s.cfg.EntryLookback < 1 || s.cfg.ExitLookback < 1 {
		return errors.New("turtle config: lookbacks must be at least 1")
	}
	if !s.cfg.Quantity.IsPositive() {
		return errors.New("turtle config: quantity must be positive")
	}
	return nil
}

// OnBar compares the current close against breakout levels built from the
// bars strictly before it, so the level never contains the bar being traded.
func (s *Strategy) OnBar(ctx engine.StepContext) ([]types.OrderIntent, error) {
	if len(ctx.History) < 2 {
		return nil, nil
	}
	prior := ctx.History[:len(ctx.History)-1]
	lastClose, err := closeOf(ctx.Bar)
	if err != nil {
		return nil, err
	}

	if !s.holding[ctx.Symbol] {
		if len(prior) < s.cfg.EntryLookback {
			return nil, nil
		}
		level, err := highestHigh(prior[len(prior)-s.cfg.EntryLookback:])
		if err != nil {
			return nil, err
		}
		if lastClose.GreaterThan(level) {
			s.holding[ctx.Symbol] = true
			return []types.OrderIntent{{Side: types.SideBuy, Quantity: s.cfg.Quantity}}, nil
		}
		return nil, nil
	}

	window := s.cfg.ExitLookback
	if len(prior) < window {
		window = len(prior)
	}
	level, err := lowestLow(prior[len(prior)-window:])
	if err != nil {
		return nil, err
	}
	if lastClose.LessThan(level) {
		s.holding[ctx.Symbol] = false
		return []types.OrderIntent{{Side: types.SideSell, Quantity: s.cfg.Quantity}}, nil
	}
	return nil, nil
}

func highestHigh(bars []types.Bar) (decimal.Decimal, error) {
	var best decimal.Decimal
	for i, bar := range bars {
		v, err := highOf(bar)
		if err != nil {
			return decimal.Zero, err
		}
		if i == 0 || v.GreaterThan(best) {
			best = v
		}
	}
	return best, nil
}

func lowestLow(bars []types.Bar) (decimal.Decimal, error) {
	var best decimal.Decimal
	for i, bar := range bars {
		v, err := lowOf(bar)
		if err != nil {
			return decimal.Zero, err
		}
		if i == 0 || v.LessThan(best) {
			best = v
		}
	}
	return best, nil
}

func highOf(bar types.Bar) (decimal.Decimal, error) {
	if bar.High.Valid {
		return bar.High.Decimal, nil
	}
	return closeOf(bar)
}

func lowOf(bar types.Bar) (decimal.Decimal, error) {
	if bar.Low.Valid {
		return bar.Low.Decimal, nil
	}
	return closeOf(bar)
}

func closeOf(bar types.Bar) (decimal.Decimal, error) {
	switch {
	case bar.Close.Valid:
		return bar.Close.Decimal, nil
	case bar.Price.Valid:
		return bar.Price.Decimal, nil
	}
	return decimal.Zero, fmt.Errorf("turtle: bar %s %s has no close or price", bar.Symbol, bar.SnapshotKey())
}
