package engine

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// CanonicalJSONBytes serializes a payload into canonical JSON: object keys
// sorted lexicographically at every nesting level, compact separators, UTF-8,
// exactly one trailing line feed. Arrays keep the producer's order. NaN and
// Infinity are rejected rather than emitted. Any difference in key order,
// whitespace, or newline count changes the artifact hash, which is the point.
func CanonicalJSONBytes(payload any) ([]byte, error) {
	if err := rejectNonFinite(payload); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encode appends the single trailing newline the artifact contract needs.
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("canonical serialization: %w", err)
	}
	return buf.Bytes(), nil
}

// HashArtifact returns the lowercase hex SHA-256 over the exact serialized
// bytes, trailing newline included.
func HashArtifact(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// SidecarBytes renders the content of a ".sha256" sidecar: the hex digest
// followed by exactly one line feed.
func SidecarBytes(hexDigest string) []byte {
	return []byte(hexDigest + "\n")
}

func rejectNonFinite(v any) error {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%w: non-finite number in payload", ErrNonFiniteMetric)
		}
	case float32:
		return rejectNonFinite(float64(val))
	case map[string]any:
		for _, item := range val {
			if err := rejectNonFinite(item); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range val {
			if err := rejectNonFinite(item); err != nil {
				return err
			}
		}
	}
	return nil
}

// decimalNumber renders a decimal as a raw JSON number token with trailing
// zeros trimmed, so equal values always serialize to identical bytes.
func decimalNumber(d decimal.Decimal) json.RawMessage {
	return json.RawMessage(d.String())
}

// nullableNumber renders an optional metric value: JSON null when absent.
func nullableNumber(d decimal.NullDecimal) json.RawMessage {
	if !d.Valid {
		return json.RawMessage("null")
	}
	return decimalNumber(d.Decimal)
}
