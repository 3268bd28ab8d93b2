// Package strategies wires the built-in strategy set into a closed registry.
package strategies

import (
	"backtestkit/internal/engine"
	"backtestkit/strategies/rsi2"
	"backtestkit/strategies/turtle"
)

// Default keys for the built-in strategies.
const (
	KeyRSI2   = "RSI2"
	KeyTurtle = "TURTLE"
)

// DefaultRegistry returns a registry holding every built-in strategy. This
// is the only supported strategy loading mechanism; there is no dynamic
// discovery of any kind.
func DefaultRegistry() (*engine.Registry, error) {
	r := engine.NewRegistry()
	if err := r.Register(KeyRSI2, func() engine.Strategy { return rsi2.New() }); err != nil {
		return nil, err
	}
	if err := r.Register(KeyTurtle, func() engine.Strategy { return turtle.New() }); err != nil {
		return nil, err
	}
	return r, nil
}
