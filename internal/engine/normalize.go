package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"backtestkit/types"
)

// DefaultInitialCash is used when the request leaves initial_cash unset.
var DefaultInitialCash = decimal.NewFromInt(10000)

// runIDNamespace scopes deterministic run ids derived from canonical
// request bytes.
var runIDNamespace = uuid.MustParse("b2c8a1de-4f6e-5a3b-9c7d-0e1f2a3b4c5d")

var validate = validator.New(validator.WithRequiredStructEnabled())

// CanonicalRequest is the normalized form of a BacktestRequest. Symbols and
// strategies are sorted lexicographically and de-duplicated; no computation
// step downstream may observe the original input order.
type CanonicalRequest struct {
	RunID           string
	SchemaVersion   string
	SnapshotID      string
	IngestionRunID  string
	Symbols         []string
	Timeframe       types.Timeframe
	Strategies      []string
	StrategyConfigs map[string][]byte
	EngineConfig    types.EngineConfig
}

// Normalize validates a request and produces its canonical form. It is pure:
// the input is never mutated and no other side effect occurs. This is the
// single point where non-determinism from input ordering is eliminated.
func Normalize(req types.BacktestRequest) (CanonicalRequest, error) {
	if err := defaults.Set(&req.EngineConfig); err != nil {
		return CanonicalRequest{}, fmt.Errorf("%w: %v", ErrInputInvalid, err)
	}
	if err := validate.Struct(req); err != nil {
		return CanonicalRequest{}, classifyValidationError(err)
	}
	if !req.Timeframe.Valid() {
		return CanonicalRequest{}, fmt.Errorf("%w: unsupported timeframe", ErrInputInvalid)
	}

	symbols := sortedUnique(req.Symbols)
	strategies := make([]string, 0, len(req.Strategies))
	for _, key := range req.Strategies {
		strategies = append(strategies, strings.ToUpper(strings.TrimSpace(key)))
	}
	strategies = sortedUnique(strategies)

	cfg := req.EngineConfig
	if cfg.InitialCash.IsZero() {
		cfg.InitialCash = DefaultInitialCash
	}
	if cfg.InitialCash.IsNegative() {
		return CanonicalRequest{}, fmt.Errorf("%w: initial_cash must not be negative", ErrInputInvalid)
	}
	if cfg.CommissionPerOrder.IsNegative() {
		return CanonicalRequest{}, fmt.Errorf("%w: commission_per_order must not be negative", ErrInputInvalid)
	}

	strategyConfigs := make(map[string][]byte, len(req.StrategyConfigs))
	for key, raw := range req.StrategyConfigs {
		strategyConfigs[strings.ToUpper(strings.TrimSpace(key))] = append([]byte(nil), raw...)
	}

	canonical := CanonicalRequest{
		SchemaVersion:   req.SchemaVersion,
		SnapshotID:      req.SnapshotID,
		IngestionRunID:  req.IngestionRunID,
		Symbols:         symbols,
		Timeframe:       req.Timeframe,
		Strategies:      strategies,
		StrategyConfigs: strategyConfigs,
		EngineConfig:    cfg,
	}
	runID, err := computeRunID(canonical)
	if err != nil {
		return CanonicalRequest{}, err
	}
	canonical.RunID = runID
	return canonical, nil
}

// computeRunID derives a stable run identity from the canonical request.
// Identical requests always map to the same id.
func computeRunID(c CanonicalRequest) (string, error) {
	payload := map[string]any{
		"schema_version":   c.SchemaVersion,
		"snapshot_id":      c.SnapshotID,
		"ingestion_run_id": c.IngestionRunID,
		"symbols":          c.Symbols,
		"timeframe":        string(c.Timeframe),
		"strategies":       c.Strategies,
		"engine_config": map[string]any{
			"lookback_days":        c.EngineConfig.LookbackDays,
			"market_type":          c.EngineConfig.MarketType,
			"data_source":          c.EngineConfig.DataSource,
			"slippage_bps":         c.EngineConfig.SlippageBps,
			"commission_per_order": decimalNumber(c.EngineConfig.CommissionPerOrder),
			"initial_cash":         decimalNumber(c.EngineConfig.InitialCash),
			"fill_timing":          string(c.EngineConfig.FillTiming),
		},
	}
	raw, err := CanonicalJSONBytes(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInputInvalid, err)
	}
	return uuid.NewSHA1(runIDNamespace, raw).String(), nil
}

func classifyValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			if fe.Field() == "SchemaVersion" {
				return fmt.Errorf("%w: schema_version must be semver", ErrSchemaInvalid)
			}
		}
		return fmt.Errorf("%w: %s", ErrInputInvalid, fieldErrs[0].Namespace())
	}
	return fmt.Errorf("%w: %v", ErrInputInvalid, err)
}

func sortedUnique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
