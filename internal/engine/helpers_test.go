package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"backtestkit/types"
)

// fakeStore is an in-memory SnapshotStore for engine tests.
type fakeStore struct {
	snapshotID     string
	ingestionRunID string
	partitions     map[string][]types.Bar
}

func (f *fakeStore) SnapshotExists(_ context.Context, snapshotID, ingestionRunID string) (bool, error) {
	return snapshotID == f.snapshotID && ingestionRunID == f.ingestionRunID, nil
}

func (f *fakeStore) GetBars(_ context.Context, _, _, symbol string, _ types.Timeframe) ([]types.Bar, error) {
	return f.partitions[symbol], nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ndec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func dayBar(symbol string, day int, open, closePx string) types.Bar {
	return types.Bar{
		Symbol:    symbol,
		Timeframe: types.TimeframeD1,
		Timestamp: time.Date(2024, 1, 1+day, 0, 0, 0, 0, time.UTC),
		Open:      ndec(open),
		High:      decimal.NewNullDecimal(dec(closePx).Add(dec("1"))),
		Low:       decimal.NewNullDecimal(dec(open).Sub(dec("1"))),
		Close:     ndec(closePx),
		Volume:    ndec("1000"),
	}
}

func dayKey(day int) string {
	return time.Date(2024, 1, 1+day, 0, 0, 0, 0, time.UTC).Format(types.SnapshotKeyLayout)
}

func testEngineConfig() types.EngineConfig {
	return types.EngineConfig{
		LookbackDays:       200,
		MarketType:         "stock",
		DataSource:         "yahoo",
		InitialCash:        dec("10000"),
		SlippageBps:        0,
		CommissionPerOrder: decimal.Zero,
		PriceScale:         8,
		MoneyScale:         2,
		QuantityScale:      8,
		FillTiming:         types.FillNextSnapshot,
	}
}

func testRequest(symbols, strategyKeys []string) types.BacktestRequest {
	return types.BacktestRequest{
		SchemaVersion:  "1.0.0",
		SnapshotID:     "snap-1",
		IngestionRunID: "ing-1",
		Symbols:        symbols,
		Timeframe:      types.TimeframeD1,
		Strategies:     strategyKeys,
		EngineConfig:   testEngineConfig(),
	}
}

// scriptStrategy emits fixed intents keyed by "SYMBOL@stepKey". It is the
// test stand-in for real strategies.
type scriptStrategy struct {
	script map[string][]types.OrderIntent
	calls  []string
}

func (s *scriptStrategy) Init(_ json.RawMessage) error { return nil }

func (s *scriptStrategy) OnBar(ctx StepContext) ([]types.OrderIntent, error) {
	key := ctx.Symbol + "@" + ctx.SnapshotKey
	s.calls = append(s.calls, key)
	return s.script[key], nil
}

func scriptRegistry(key string, strat Strategy) *Registry {
	r := NewRegistry()
	_ = r.Register(key, func() Strategy { return strat })
	return r
}

func buyIntent(qty string) types.OrderIntent {
	return types.OrderIntent{Side: types.SideBuy, Quantity: dec(qty)}
}

func sellIntent(qty string) types.OrderIntent {
	return types.OrderIntent{Side: types.SideSell, Quantity: dec(qty)}
}
