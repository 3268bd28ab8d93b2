package engine

import (
	"context"

	"github.com/rs/zerolog"

	"backtestkit/types"
)

// Engine wires the pipeline: Normalizer -> Binder -> Orchestrator/Simulator
// -> Serializer/Hasher. Data flows strictly downstream; no component
// re-enters an upstream one. One Engine may serve concurrent runs because
// every run owns its orchestrator and simulator exclusively.
type Engine struct {
	store    SnapshotStore
	registry *Registry
	log      zerolog.Logger
	progress ProgressFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger injects a structured logger. Logging never feeds artifact
// bytes, so it has no effect on determinism.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithProgress installs a per-step progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// New returns an Engine bound to a snapshot store and a strategy registry.
func New(store SnapshotStore, registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		registry: registry,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run replays one backtest request against its bound snapshot and returns
// the canonical hashed artifact. A run either completes with a full artifact
// or fails atomically at the step that triggered the error; there is no
// partial-result contract.
func (e *Engine) Run(ctx context.Context, req types.BacktestRequest) (*BacktestArtifact, error) {
	canonical, err := Normalize(req)
	if err != nil {
		return nil, err
	}
	view, err := Bind(ctx, e.store, canonical)
	if err != nil {
		return nil, err
	}
	return e.runBound(canonical, view)
}

// runBound executes the deterministic core over an already-bound view. The
// determinism verifier reuses it to replay a run without re-binding.
func (e *Engine) runBound(canonical CanonicalRequest, view *SnapshotView) (*BacktestArtifact, error) {
	orch, err := newOrchestrator(canonical, view, e.registry, e.log, e.progress)
	if err != nil {
		return nil, err
	}
	result, err := orch.run()
	if err != nil {
		return nil, err
	}
	artifact, err := SerializeResult(result)
	if err != nil {
		return nil, err
	}
	e.log.Info().
		Str("run_id", canonical.RunID).
		Str("sha256", artifact.SHA256).
		Int("orders", len(result.Orders)).
		Int("fills", len(result.Fills)).
		Int("steps", result.StepCount).
		Msg("backtest run finalized")
	return artifact, nil
}
