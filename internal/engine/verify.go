package engine

import (
	"context"
	"fmt"

	"backtestkit/types"
)

// RunVerified executes the same request repeatedly over one bound snapshot
// and compares artifact hashes. Any divergence means non-deterministic state
// leaked into the run (map iteration order, wall clock, randomness) and is
// surfaced as backtest_nondeterministic_violation, distinct from ordinary
// runtime errors. replays must be at least 2; 3 gives the usual guarantee.
func (e *Engine) RunVerified(ctx context.Context, req types.BacktestRequest, replays int) (*BacktestArtifact, error) {
	if replays < 2 {
		replays = 2
	}
	canonical, err := Normalize(req)
	if err != nil {
		return nil, err
	}
	// Bind once: the view is immutable and safely shared across replays.
	view, err := Bind(ctx, e.store, canonical)
	if err != nil {
		return nil, err
	}

	first, err := e.runBound(canonical, view)
	if err != nil {
		return nil, err
	}
	for i := 1; i < replays; i++ {
		replay, err := e.runBound(canonical, view)
		if err != nil {
			return nil, err
		}
		if replay.SHA256 != first.SHA256 {
			return nil, fmt.Errorf("%w: artifact hash diverged on replay", ErrNondeterministic)
		}
	}
	return first, nil
}
