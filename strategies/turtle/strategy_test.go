package turtle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"backtestkit/internal/engine"
	"backtestkit/types"
)

func rangeBar(day int, closePx string) types.Bar {
	c := decimal.RequireFromString(closePx)
	one := decimal.NewFromInt(1)
	return types.Bar{
		Symbol:    "AAPL",
		Timeframe: types.TimeframeD1,
		Timestamp: time.Date(2024, 1, 1+day, 0, 0, 0, 0, time.UTC),
		High:      decimal.NewNullDecimal(c.Add(one)),
		Low:       decimal.NewNullDecimal(c.Sub(one)),
		Close:     decimal.NewNullDecimal(c),
	}
}

func stepCtx(history []types.Bar) engine.StepContext {
	last := history[len(history)-1]
	return engine.StepContext{
		Symbol:      last.Symbol,
		Timeframe:   types.TimeframeD1,
		SnapshotKey: last.SnapshotKey(),
		Bar:         last,
		History:     history,
	}
}

func TestInitDefaultsAndValidation(t *testing.T) {
	s := New()
	require.NoError(t, s.Init(nil))
	require.Equal(t, 20, s.cfg.EntryLookback)
	require.Equal(t, 10, s.cfg.ExitLookback)

	s = New()
	require.NoError(t, s.Init([]byte(`{"breakout_lookback":3,"exit_lookback":2,"quantity":"2"}`)))
	require.Equal(t, 3, s.cfg.EntryLookback)
	require.Equal(t, 2, s.cfg.ExitLookback)

	s = New()
	require.Error(t, s.Init([]byte(`{"breakout_lookback":0}`)))
	s = New()
	require.Error(t, s.Init([]byte(`{"quantity":"-1"}`)))
}

func TestOnBarBreakoutEntryAndExit(t *testing.T) {
	s := New()
	require.NoError(t, s.Init([]byte(`{"breakout_lookback":3,"exit_lookback":2,"quantity":"2"}`)))

	// Prior highs top out at 103; a close of 105 breaks out.
	history := []types.Bar{
		rangeBar(0, "100"),
		rangeBar(1, "101"),
		rangeBar(2, "102"),
		rangeBar(3, "105"),
	}
	intents, err := s.OnBar(stepCtx(history))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	require.Equal(t, types.SideBuy, intents[0].Side)
	require.Equal(t, "2", intents[0].Quantity.String())

	// Still above the exit level: hold.
	history = append(history, rangeBar(4, "104"))
	intents, err = s.OnBar(stepCtx(history))
	require.NoError(t, err)
	require.Nil(t, intents)

	// Lowest low of the last two prior bars is 103; a close of 97 exits.
	history = append(history, rangeBar(5, "97"))
	intents, err = s.OnBar(stepCtx(history))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	require.Equal(t, types.SideSell, intents[0].Side)
}

func TestOnBarNoEntryWithoutEnoughHistory(t *testing.T) {
	s := New()
	require.NoError(t, s.Init([]byte(`{"breakout_lookback":3,"exit_lookback":2}`)))

	history := []types.Bar{rangeBar(0, "100"), rangeBar(1, "200")}
	intents, err := s.OnBar(stepCtx(history))
	require.NoError(t, err)
	require.Nil(t, intents)
}

func TestOnBarFallsBackToCloseWithoutHighLow(t *testing.T) {
	s := New()
	require.NoError(t, s.Init([]byte(`{"breakout_lookback":2,"exit_lookback":2}`)))

	flat := func(day int, closePx string) types.Bar {
		b := rangeBar(day, closePx)
		b.High = decimal.NullDecimal{}
		b.Low = decimal.NullDecimal{}
		return b
	}
	history := []types.Bar{flat(0, "100"), flat(1, "101"), flat(2, "102")}
	intents, err := s.OnBar(stepCtx(history))
	require.NoError(t, err)
	require.Len(t, intents, 1)
	require.Equal(t, types.SideBuy, intents[0].Side)
}
