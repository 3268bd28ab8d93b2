package engine

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"backtestkit/types"
)

func TestNormalizeSortsSymbolsAndStrategies(t *testing.T) {
	req := testRequest([]string{"MSFT", "AAPL", "GOOG", "AAPL"}, []string{"turtle", "RSI2"})

	canonical, err := Normalize(req)
	require.NoError(t, err)

	require.Equal(t, []string{"AAPL", "GOOG", "MSFT"}, canonical.Symbols)
	require.Equal(t, []string{"RSI2", "TURTLE"}, canonical.Strategies)
	// Input must be left untouched.
	require.Equal(t, []string{"MSFT", "AAPL", "GOOG", "AAPL"}, req.Symbols)
}

func TestNormalizeRunIDStableAcrossInputOrder(t *testing.T) {
	a, err := Normalize(testRequest([]string{"MSFT", "AAPL"}, []string{"TURTLE", "RSI2"}))
	require.NoError(t, err)
	b, err := Normalize(testRequest([]string{"AAPL", "MSFT"}, []string{"RSI2", "TURTLE"}))
	require.NoError(t, err)

	require.Equal(t, a.RunID, b.RunID)
	require.NotEmpty(t, a.RunID)
}

func TestNormalizeRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.BacktestRequest)
		wantErr error
	}{
		{
			name:    "missing snapshot id",
			mutate:  func(r *types.BacktestRequest) { r.SnapshotID = "" },
			wantErr: ErrInputInvalid,
		},
		{
			name:    "missing ingestion run id",
			mutate:  func(r *types.BacktestRequest) { r.IngestionRunID = "" },
			wantErr: ErrInputInvalid,
		},
		{
			name:    "empty symbols",
			mutate:  func(r *types.BacktestRequest) { r.Symbols = nil },
			wantErr: ErrInputInvalid,
		},
		{
			name:    "empty strategies",
			mutate:  func(r *types.BacktestRequest) { r.Strategies = nil },
			wantErr: ErrInputInvalid,
		},
		{
			name:    "non-semver schema version",
			mutate:  func(r *types.BacktestRequest) { r.SchemaVersion = "v1" },
			wantErr: ErrSchemaInvalid,
		},
		{
			name:    "missing lookback days",
			mutate:  func(r *types.BacktestRequest) { r.EngineConfig.LookbackDays = 0 },
			wantErr: ErrInputInvalid,
		},
		{
			name:    "bad market type",
			mutate:  func(r *types.BacktestRequest) { r.EngineConfig.MarketType = "forex" },
			wantErr: ErrInputInvalid,
		},
		{
			name:    "missing data source",
			mutate:  func(r *types.BacktestRequest) { r.EngineConfig.DataSource = "" },
			wantErr: ErrInputInvalid,
		},
		{
			name:    "unsupported timeframe",
			mutate:  func(r *types.BacktestRequest) { r.Timeframe = "W9" },
			wantErr: ErrInputInvalid,
		},
		{
			name:    "negative initial cash",
			mutate:  func(r *types.BacktestRequest) { r.EngineConfig.InitialCash = dec("-1") },
			wantErr: ErrInputInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest([]string{"AAPL"}, []string{"RSI2"})
			tt.mutate(&req)
			_, err := Normalize(req)
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	req := testRequest([]string{"AAPL"}, []string{"RSI2"})
	req.EngineConfig.InitialCash = decimal.Zero
	req.EngineConfig.PriceScale = 0
	req.EngineConfig.MoneyScale = 0
	req.EngineConfig.QuantityScale = 0
	req.EngineConfig.FillTiming = ""

	canonical, err := Normalize(req)
	require.NoError(t, err)

	require.True(t, canonical.EngineConfig.InitialCash.Equal(DefaultInitialCash))
	require.Equal(t, int32(8), canonical.EngineConfig.PriceScale)
	require.Equal(t, int32(2), canonical.EngineConfig.MoneyScale)
	require.Equal(t, int32(8), canonical.EngineConfig.QuantityScale)
	require.Equal(t, types.FillNextSnapshot, canonical.EngineConfig.FillTiming)
}
