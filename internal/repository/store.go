// Package repository provides read-only snapshot stores for the backtest
// engine. Snapshot rows are immutable and already populated by ingestion;
// the only write path here is explicit fixture seeding.
package repository

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Global error declarations.
var ErrBadBarRow = errors.New("malformed snapshot bar row")

func nullDecimalFromString(s *string) (decimal.NullDecimal, error) {
	if s == nil || *s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, ErrBadBarRow
	}
	return decimal.NewNullDecimal(d), nil
}

func stringFromNullDecimal(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}
