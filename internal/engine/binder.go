package engine

import (
	"context"
	"fmt"
	"sort"

	"backtestkit/types"
)

// SnapshotStore is the read-only collaborator the binder resolves market
// data from. The engine never calls it with mutation intent.
type SnapshotStore interface {
	SnapshotExists(ctx context.Context, snapshotID, ingestionRunID string) (bool, error)
	GetBars(ctx context.Context, snapshotID, ingestionRunID, symbol string, timeframe types.Timeframe) ([]types.Bar, error)
}

// SnapshotView is an immutable, time-ascending view over the bound snapshot,
// keyed by (symbol, timeframe, timestamp). It is safe to share across
// concurrent runs because nothing mutates it after Bind returns.
type SnapshotView struct {
	SnapshotID     string
	IngestionRunID string
	Timeframe      types.Timeframe

	partitions map[string][]types.Bar
	barIndex   map[string]map[string]int
	symbols    []string
	stepKeys   []string
}

// Bind resolves the market-data view for a canonical request. Resolution is
// explicit and deterministic: there is no fallback to live data, and the
// request's data_source hint is never used to reach an external system. A
// symbol bound but absent from the snapshot yields an empty partition rather
// than an error.
func Bind(ctx context.Context, store SnapshotStore, req CanonicalRequest) (*SnapshotView, error) {
	exists, err := store.SnapshotExists(ctx, req.SnapshotID, req.IngestionRunID)
	if err != nil {
		return nil, fmt.Errorf("snapshot lookup: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotMissing, req.SnapshotID)
	}

	view := &SnapshotView{
		SnapshotID:     req.SnapshotID,
		IngestionRunID: req.IngestionRunID,
		Timeframe:      req.Timeframe,
		partitions:     make(map[string][]types.Bar, len(req.Symbols)),
		barIndex:       make(map[string]map[string]int, len(req.Symbols)),
		symbols:        append([]string(nil), req.Symbols...),
	}

	stepKeySet := make(map[string]bool)
	for _, symbol := range view.symbols {
		bars, err := store.GetBars(ctx, req.SnapshotID, req.IngestionRunID, symbol, req.Timeframe)
		if err != nil {
			return nil, fmt.Errorf("snapshot partition %s: %w", symbol, err)
		}
		sort.SliceStable(bars, func(i, j int) bool {
			return bars[i].Timestamp.Before(bars[j].Timestamp)
		})
		index := make(map[string]int, len(bars))
		for i, bar := range bars {
			if bar.Timestamp.IsZero() {
				return nil, fmt.Errorf("%w: %s partition", ErrNoStepKey, symbol)
			}
			key := bar.SnapshotKey()
			index[key] = i
			stepKeySet[key] = true
		}
		view.partitions[symbol] = bars
		view.barIndex[symbol] = index
	}

	view.stepKeys = make([]string, 0, len(stepKeySet))
	for key := range stepKeySet {
		view.stepKeys = append(view.stepKeys, key)
	}
	sort.Strings(view.stepKeys)
	return view, nil
}

// Symbols returns the bound symbols in canonical (sorted) order.
func (v *SnapshotView) Symbols() []string {
	return v.symbols
}

// StepKeys returns the ascending union of step keys across all partitions.
func (v *SnapshotView) StepKeys() []string {
	return v.stepKeys
}

// BarAt returns the bar for a symbol at a step key, if one exists.
func (v *SnapshotView) BarAt(symbol, stepKey string) (types.Bar, bool) {
	idx, ok := v.barIndex[symbol][stepKey]
	if !ok {
		return types.Bar{}, false
	}
	return v.partitions[symbol][idx], true
}

// HistoryThrough returns the partition prefix up to and including stepKey.
// The returned slice aliases the immutable view and must not be mutated.
func (v *SnapshotView) HistoryThrough(symbol, stepKey string) []types.Bar {
	idx, ok := v.barIndex[symbol][stepKey]
	if !ok {
		return nil
	}
	return v.partitions[symbol][:idx+1]
}
