package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"backtestkit/types"
)

const (
	// ArtifactVersion tags the canonical artifact layout.
	ArtifactVersion = "1"
	// EngineName and EngineVersion identify the producer inside artifacts.
	EngineName    = "backtestkit.engine"
	EngineVersion = "1.0.0"

	// ArtifactFileName is the primary run artifact.
	ArtifactFileName = "backtest-result.json"
	// MetricsFileName is the metrics artifact.
	MetricsFileName = "metrics-result.json"
	// MetricsSchemaVersion tags the metrics artifact layout.
	MetricsSchemaVersion = "1.0.0"
)

// BacktestArtifact is the canonical, hashed output of one run.
type BacktestArtifact struct {
	Result RunResult
	Raw    []byte
	SHA256 string
}

// SerializeResult renders a run result into canonical bytes and hashes them.
func SerializeResult(result RunResult) (*BacktestArtifact, error) {
	payload := buildArtifactPayload(result)
	raw, err := CanonicalJSONBytes(payload)
	if err != nil {
		return nil, err
	}
	return &BacktestArtifact{
		Result: result,
		Raw:    raw,
		SHA256: HashArtifact(raw),
	}, nil
}

// buildArtifactPayload lays out the artifact as nested maps so the canonical
// serializer sorts every key level. Prices, quantities and money render as
// fixed-scale decimal strings; they survive a JSON round trip bit-for-bit.
func buildArtifactPayload(result RunResult) map[string]any {
	cfg := result.Request.EngineConfig

	orders := make([]any, 0, len(result.Orders))
	for _, o := range result.Orders {
		orders = append(orders, map[string]any{
			"id":                   o.ID,
			"symbol":               o.Symbol,
			"strategy":             o.Strategy,
			"side":                 string(o.Side),
			"quantity":             o.Quantity.StringFixed(cfg.QuantityScale),
			"created_snapshot_key": o.CreatedSnapshotKey,
			"sequence":             o.Sequence,
		})
	}

	fills := make([]any, 0, len(result.Fills))
	for _, f := range result.Fills {
		fills = append(fills, map[string]any{
			"order_id":     f.OrderID,
			"symbol":       f.Symbol,
			"side":         string(f.Side),
			"fill_price":   f.FillPrice.StringFixed(cfg.PriceScale),
			"quantity":     f.Quantity.StringFixed(cfg.QuantityScale),
			"commission":   f.Commission.StringFixed(cfg.MoneyScale),
			"snapshot_key": f.SnapshotKey,
		})
	}

	positions := make([]any, 0, len(result.Positions))
	for _, p := range result.Positions {
		positions = append(positions, map[string]any{
			"symbol":    p.Symbol,
			"quantity":  p.Quantity.StringFixed(cfg.QuantityScale),
			"avg_price": p.AvgPrice.StringFixed(cfg.PriceScale),
		})
	}

	trades := make([]any, 0, len(result.Trades))
	for _, t := range result.Trades {
		trades = append(trades, map[string]any{
			"trade_id":        t.ID,
			"symbol":          t.Symbol,
			"quantity":        t.Quantity.StringFixed(cfg.QuantityScale),
			"entry_avg_price": t.EntryAvgPrice.StringFixed(cfg.PriceScale),
			"exit_price":      t.ExitPrice.StringFixed(cfg.PriceScale),
			"exit_ts":         t.ExitSnapshotKey,
			"pnl":             t.RealizedPnL.StringFixed(cfg.MoneyScale),
		})
	}

	equityCurve := make([]any, 0, len(result.EquityCurve))
	for _, p := range result.EquityCurve {
		equityCurve = append(equityCurve, map[string]any{
			"timestamp": p.SnapshotKey,
			"equity":    p.Equity.StringFixed(cfg.MoneyScale),
		})
	}

	invocationLog := make([]any, 0, len(result.InvocationLog))
	for _, entry := range result.InvocationLog {
		invocationLog = append(invocationLog, entry)
	}

	var linkStart, linkEnd any
	if len(result.EquityCurve) > 0 {
		linkStart = result.EquityCurve[0].SnapshotKey
		linkEnd = result.EquityCurve[len(result.EquityCurve)-1].SnapshotKey
	}

	summary := map[string]any{
		"start_equity": nullableFixed(result.Summary.StartEquity, cfg.MoneyScale),
		"end_equity":   nullableFixed(result.Summary.EndEquity, cfg.MoneyScale),
	}

	return map[string]any{
		"artifact_version": ArtifactVersion,
		"engine": map[string]any{
			"name":    EngineName,
			"version": EngineVersion,
		},
		"run": map[string]any{
			"run_id":         result.Request.RunID,
			"schema_version": result.Request.SchemaVersion,
			"deterministic":  true,
		},
		"snapshot_linkage": map[string]any{
			"snapshot_id":      result.Request.SnapshotID,
			"ingestion_run_id": result.Request.IngestionRunID,
			"timeframe":        string(result.Request.Timeframe),
			"mode":             "timestamp",
			"start":            linkStart,
			"end":              linkEnd,
			"count":            result.StepCount,
		},
		"symbols":        toAnySlice(result.Request.Symbols),
		"strategies":     toAnySlice(result.Request.Strategies),
		"invocation_log": invocationLog,
		"orders":         orders,
		"fills":          fills,
		"positions":      positions,
		"trades":         trades,
		"equity_curve":   equityCurve,
		"summary":        summary,
	}
}

func nullableFixed(d decimal.NullDecimal, scale int32) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.StringFixed(scale)
}

func toAnySlice(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

// WriteArtifact persists canonical bytes to dir/name and a SHA-256 sidecar
// next to it. The sidecar content is "<hex>\n" exactly. This is the only
// I/O in the subsystem and sits outside the deterministic core.
func WriteArtifact(dir, name string, raw []byte) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("artifact dir: %w", err)
	}
	artifactPath := filepath.Join(dir, name)
	if err := os.WriteFile(artifactPath, raw, 0o644); err != nil {
		return "", "", fmt.Errorf("write artifact: %w", err)
	}
	sidecarPath := filepath.Join(dir, strings.TrimSuffix(name, ".json")+".sha256")
	if err := os.WriteFile(sidecarPath, SidecarBytes(HashArtifact(raw)), 0o644); err != nil {
		return "", "", fmt.Errorf("write sidecar: %w", err)
	}
	return artifactPath, sidecarPath, nil
}

// ArtifactDocument is the typed view used to re-read a persisted artifact,
// e.g. by the metrics evaluation entrypoint.
type ArtifactDocument struct {
	ArtifactVersion string `json:"artifact_version"`
	Summary         struct {
		StartEquity decimal.NullDecimal `json:"start_equity"`
		EndEquity   decimal.NullDecimal `json:"end_equity"`
	} `json:"summary"`
	EquityCurve []types.EquityPoint `json:"equity_curve"`
	Trades      []types.Trade       `json:"trades"`
}

// ParseArtifact decodes a persisted backtest-result.json.
func ParseArtifact(raw []byte) (ArtifactDocument, error) {
	var doc ArtifactDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ArtifactDocument{}, fmt.Errorf("%w: %v", ErrInputInvalid, err)
	}
	return doc, nil
}
