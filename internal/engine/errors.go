package engine

import (
	"errors"
	"fmt"
)

// Stable machine-readable error codes surfaced outward. Failure messages
// never embed non-deterministic values.
var (
	ErrInputInvalid     = errors.New("backtest_input_invalid")
	ErrSchemaInvalid    = errors.New("backtest_schema_invalid")
	ErrSnapshotMissing  = errors.New("backtest_snapshot_missing")
	ErrNondeterministic = errors.New("backtest_nondeterministic_violation")
)

// Simulation invariant violations. Fatal to the run; the run aborts at the
// offending step with no partial artifact emitted.
var (
	ErrOversell          = errors.New("sell quantity exceeds current position quantity")
	ErrMissingPrice      = errors.New("snapshot bar exposes neither open nor price")
	ErrInvalidQuantity   = errors.New("order quantity must be positive")
	ErrUnknownSide       = errors.New("unknown order side")
	ErrNonFiniteMetric   = errors.New("non-finite value in metrics evaluation")
	ErrRunAlreadyDone    = errors.New("backtest run cannot be re-entered")
	ErrNoStepKey         = errors.New("snapshot bar has no timestamp key")
	ErrDuplicateStrategy = errors.New("strategy key registered twice")
)

type unknownStrategyError struct {
	key string
}

func (e *unknownStrategyError) Error() string {
	return fmt.Sprintf("backtest_strategy_unknown:%s", e.key)
}

// NewUnknownStrategyError returns the outward error for an unresolved
// strategy key.
func NewUnknownStrategyError(key string) error {
	return &unknownStrategyError{key: key}
}

// IsUnknownStrategy reports whether err carries the
// backtest_strategy_unknown code.
func IsUnknownStrategy(err error) bool {
	var target *unknownStrategyError
	return errors.As(err, &target)
}
