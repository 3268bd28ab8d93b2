package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"backtestkit/types"
)

func rampStore(symbols []string, days int) *fakeStore {
	partitions := make(map[string][]types.Bar, len(symbols))
	for _, symbol := range symbols {
		bars := make([]types.Bar, 0, days)
		for d := 0; d < days; d++ {
			open := fmt.Sprintf("%d", 100+2*d)
			closePx := fmt.Sprintf("%d", 101+2*d)
			bars = append(bars, dayBar(symbol, d, open, closePx))
		}
		partitions[symbol] = bars
	}
	return &fakeStore{snapshotID: "snap-1", ingestionRunID: "ing-1", partitions: partitions}
}

func TestEngineRunEndToEnd(t *testing.T) {
	store := rampStore([]string{"AAPL"}, 4)
	strat := &scriptStrategy{script: map[string][]types.OrderIntent{
		"AAPL@" + dayKey(0): {buyIntent("10")},
		"AAPL@" + dayKey(2): {sellIntent("10")},
	}}
	eng := New(store, scriptRegistry("SCRIPT", strat))

	req := testRequest([]string{"AAPL"}, []string{"SCRIPT"})
	artifact, err := eng.Run(context.Background(), req)
	require.NoError(t, err)
	result := artifact.Result

	// Buy created at day 0 fills at day 1's open; sell created at day 2
	// fills at day 3's open.
	require.Len(t, result.Orders, 2)
	require.Equal(t, "ord-000001", result.Orders[0].ID)
	require.Equal(t, "ord-000002", result.Orders[1].ID)
	require.Len(t, result.Fills, 2)
	require.Equal(t, dayKey(1), result.Fills[0].SnapshotKey)
	require.Equal(t, "102", result.Fills[0].FillPrice.String())
	require.Equal(t, dayKey(3), result.Fills[1].SnapshotKey)
	require.Equal(t, "106", result.Fills[1].FillPrice.String())

	require.Len(t, result.Trades, 1)
	require.Equal(t, "40", result.Trades[0].RealizedPnL.String())
	require.Equal(t, dayKey(3), result.Trades[0].ExitSnapshotKey)

	// One equity point per step, marked at each day's close.
	require.Len(t, result.EquityCurve, 4)
	require.Equal(t, "10000", result.EquityCurve[0].Equity.String())
	require.Equal(t, "10010", result.EquityCurve[1].Equity.String()) // 8980 + 10*103
	require.Equal(t, "10030", result.EquityCurve[2].Equity.String()) // 8980 + 10*105
	require.Equal(t, "10040", result.EquityCurve[3].Equity.String())

	require.Equal(t, "10000", result.Summary.StartEquity.Decimal.String())
	require.Equal(t, "10040", result.Summary.EndEquity.Decimal.String())

	require.Equal(t, []string{
		"on_run_start",
		"on_bar:SCRIPT:AAPL:" + dayKey(0),
		"on_bar:SCRIPT:AAPL:" + dayKey(1),
		"fill:ord-000001:" + dayKey(1),
		"on_bar:SCRIPT:AAPL:" + dayKey(2),
		"on_bar:SCRIPT:AAPL:" + dayKey(3),
		"fill:ord-000002:" + dayKey(3),
		"on_run_end",
	}, result.InvocationLog)
}

func TestEngineInvocationOrderStrategyThenSymbol(t *testing.T) {
	store := rampStore([]string{"MSFT", "AAPL"}, 2)

	alpha := &scriptStrategy{script: map[string][]types.OrderIntent{
		"MSFT@" + dayKey(0): {buyIntent("1")},
	}}
	beta := &scriptStrategy{script: map[string][]types.OrderIntent{
		"AAPL@" + dayKey(0): {buyIntent("2")},
	}}
	registry := NewRegistry()
	require.NoError(t, registry.Register("BETA", func() Strategy { return beta }))
	require.NoError(t, registry.Register("ALPHA", func() Strategy { return alpha }))

	eng := New(store, registry)
	req := testRequest([]string{"MSFT", "AAPL"}, []string{"BETA", "ALPHA"})
	artifact, err := eng.Run(context.Background(), req)
	require.NoError(t, err)

	// Canonical strategy order first, sorted symbols within each strategy.
	require.Equal(t, []string{
		"AAPL@" + dayKey(0), "MSFT@" + dayKey(0),
		"AAPL@" + dayKey(1), "MSFT@" + dayKey(1),
	}, alpha.calls)
	require.Equal(t, alpha.calls, beta.calls)

	// The sequence counter spans strategies: ALPHA runs first in canonical
	// order, so its MSFT order takes sequence 1 ahead of BETA's AAPL order.
	orders := artifact.Result.Orders
	require.Len(t, orders, 2)
	require.Equal(t, "ord-000001", orders[0].ID)
	require.Equal(t, "ALPHA", orders[0].Strategy)
	require.Equal(t, "MSFT", orders[0].Symbol)
	require.Equal(t, "ord-000002", orders[1].ID)
	require.Equal(t, "BETA", orders[1].Strategy)
	require.Equal(t, "AAPL", orders[1].Symbol)
}

func TestEngineUnknownStrategy(t *testing.T) {
	store := rampStore([]string{"AAPL"}, 2)
	eng := New(store, NewRegistry())

	_, err := eng.Run(context.Background(), testRequest([]string{"AAPL"}, []string{"nope"}))
	require.Error(t, err)
	require.True(t, IsUnknownStrategy(err))
	require.Contains(t, err.Error(), "backtest_strategy_unknown:NOPE")
}

type failingStrategy struct {
	failAt string
}

func (s *failingStrategy) Init(_ json.RawMessage) error { return nil }

func (s *failingStrategy) OnBar(ctx StepContext) ([]types.OrderIntent, error) {
	if ctx.SnapshotKey == s.failAt {
		return nil, errors.New("indicator blew up")
	}
	return nil, nil
}

func TestEngineStrategyErrorFailsRun(t *testing.T) {
	store := rampStore([]string{"AAPL"}, 3)
	eng := New(store, scriptRegistry("BOOM", &failingStrategy{failAt: dayKey(1)}))

	_, err := eng.Run(context.Background(), testRequest([]string{"AAPL"}, []string{"BOOM"}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "BOOM")
	require.Contains(t, err.Error(), "indicator blew up")
}

func TestEngineRunsAreByteIdentical(t *testing.T) {
	store := rampStore([]string{"MSFT", "AAPL"}, 6)
	strat := &scriptStrategy{script: map[string][]types.OrderIntent{
		"AAPL@" + dayKey(0): {buyIntent("5")},
		"MSFT@" + dayKey(1): {buyIntent("3")},
		"AAPL@" + dayKey(3): {sellIntent("5")},
	}}
	req := testRequest([]string{"AAPL", "MSFT"}, []string{"SCRIPT"})

	var firstRaw []byte
	var firstSHA string
	for i := 0; i < 3; i++ {
		eng := New(store, scriptRegistry("SCRIPT", strat))
		artifact, err := eng.Run(context.Background(), req)
		require.NoError(t, err)
		if i == 0 {
			firstRaw = artifact.Raw
			firstSHA = artifact.SHA256
			continue
		}
		require.Equal(t, firstRaw, artifact.Raw)
		require.Equal(t, firstSHA, artifact.SHA256)
	}
	require.Equal(t, HashArtifact(firstRaw), firstSHA)
}

func TestEngineRunVerified(t *testing.T) {
	store := rampStore([]string{"AAPL"}, 4)
	strat := &scriptStrategy{script: map[string][]types.OrderIntent{
		"AAPL@" + dayKey(0): {buyIntent("1")},
	}}
	eng := New(store, scriptRegistry("SCRIPT", strat))

	artifact, err := eng.RunVerified(context.Background(), testRequest([]string{"AAPL"}, []string{"SCRIPT"}), 3)
	require.NoError(t, err)
	require.NotEmpty(t, artifact.SHA256)
}

func TestEngineOversellFailsRun(t *testing.T) {
	store := rampStore([]string{"AAPL"}, 3)
	strat := &scriptStrategy{script: map[string][]types.OrderIntent{
		"AAPL@" + dayKey(0): {sellIntent("1")},
	}}
	eng := New(store, scriptRegistry("SCRIPT", strat))

	_, err := eng.Run(context.Background(), testRequest([]string{"AAPL"}, []string{"SCRIPT"}))
	require.True(t, errors.Is(err, ErrOversell))
}
