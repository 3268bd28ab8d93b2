// Package rsi2 implements the short-period RSI rebound strategy. A position
// is opened when the Wilder RSI drops below the oversold threshold and closed
// when it recovers above the exit threshold.
package rsi2

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"backtestkit/internal/engine"
	"backtestkit/types"
)

var hundred = decimal.NewFromInt(100)

// Config tunes the strategy. Thresholds are RSI levels on the 0..100 scale.
type Config struct {
	RsiPeriod         int             `json:"rsi_period"`
	OversoldThreshold decimal.Decimal `json:"oversold_threshold"`
	ExitThreshold     decimal.Decimal `json:"exit_threshold"`
	Quantity          decimal.Decimal `json:"quantity"`
}

// Strategy holds per-run state: whether a position is currently open per
// symbol. Instances are never shared across runs.
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
		RsiPeriod:         2,
		OversoldThreshold: decimal.NewFromInt(10),
		ExitThreshold:     decimal.NewFromInt(70),
		Quantity:          decimal.NewFromInt(1),
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.cfg); err != nil {
			return fmt.Errorf("rsi2 config: %w", err)
		}
	}
	if s.cfg.RsiPeriod < 1 {
		return errors.New("rsi2 config: rsi_period must be at least 1")
	}
	if !s.cfg.Quantity.IsPositive() {
		return errors.New("rsi2 config: quantity must be positive")
	}
	return nil
}

// OnBar evaluates the RSI on the partition history up to the current bar.
func (s *Strategy) OnBar(ctx engine.StepContext) ([]types.OrderIntent, error) {
	closes, err := closeSeries(ctx.History)
	if err != nil {
		return nil, err
	}
	if len(closes) < s.cfg.RsiPeriod+1 {
		return nil, nil
	}
	rsi := wilderRSI(closes, s.cfg.RsiPeriod)

	switch {
	case !s.holding[ctx.Symbol] && rsi.LessThan(s.cfg.OversoldThreshold):
		s.holding[ctx.Symbol] = true
		return []types.OrderIntent{{Side: types.SideBuy, Quantity: s.cfg.Quantity}}, nil
	case s.holding[ctx.Symbol] && rsi.GreaterThan(s.cfg.ExitThreshold):
		s.holding[ctx.Symbol] = false
		return []types.OrderIntent{{Side: types.SideSell, Quantity: s.cfg.Quantity}}, nil
	}
	return nil, nil
}

// wilderRSI computes the RSI of the final value with Wilder smoothing over
// the whole series. Pure decimal arithmetic; no float involved.
func wilderRSI(closes []decimal.Decimal, period int) decimal.Decimal {
	periodDec := decimal.NewFromInt(int64(period))
	var avgGain, avgLoss decimal.Decimal

	for i := 1; i < len(closes); i++ {
		diff := closes[i].Sub(closes[i-1])
		gain, loss := decimal.Zero, decimal.Zero
		if diff.IsPositive() {
			gain = diff
		} else {
			loss = diff.Neg()
		}
		if i <= period {
			avgGain = avgGain.Add(gain)
			avgLoss = avgLoss.Add(loss)
			if i == period {
				avgGain = avgGain.Div(periodDec)
				avgLoss = avgLoss.Div(periodDec)
			}
			continue
		}
		avgGain = avgGain.Mul(periodDec.Sub(decimal.New(1, 0))).Add(gain).Div(periodDec)
		avgLoss = avgLoss.Mul(periodDec.Sub(decimal.New(1, 0))).Add(loss).Div(periodDec)
	}

	if avgLoss.IsZero() {
		return hundred
	}
	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(decimal.New(1, 0).Add(rs)))
}

func closeSeries(history []types.Bar) ([]decimal.Decimal, error) {
	closes := make([]decimal.Decimal, 0, len(history))
	for _, bar := range history {
		switch {
		case bar.Close.Valid:
			closes = append(closes, bar.Close.Decimal)
		case bar.Price.Valid:
			closes = append(closes, bar.Price.Decimal)
		default:
			return nil, fmt.Errorf("rsi2: bar %s %s has no close or price", bar.Symbol, bar.SnapshotKey())
		}
	}
	return closes, nil
}
