package parser

import (
	"math"
	"strconv"
	"strings"
)

// Row is the sum type over the three row shapes source files produce:
// a keyed mapping, a positional sequence, or a bare scalar. Each variant
// carries its own normalization into a flat key->value record.
type Row interface {
	Normalize() map[string]any
}

// MappingRow is a header- or key-addressed row.
type MappingRow map[string]any

// Normalize keeps the row's keys and cleans each value.
func (r MappingRow) Normalize() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = cleanValue(v)
	}
	return out
}

// SequenceRow is a positional row without a header.
type SequenceRow []any

// Normalize re-keys the values positionally as column_0, column_1, ...
func (r SequenceRow) Normalize() map[string]any {
	out := make(map[string]any, len(r))
	for i, v := range r {
		out["column_"+strconv.Itoa(i)] = cleanValue(v)
	}
	return out
}

// ScalarRow wraps a single bare value.
type ScalarRow struct {
	Value any
}

// Normalize wraps the value in a single-key mapping.
func (r ScalarRow) Normalize() map[string]any {
	return map[string]any{"value": cleanValue(r.Value)}
}

// cleanValue trims strings and maps NaN-like values to an explicit nil;
// everything else passes through unchanged.
func cleanValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return strings.TrimSpace(val)
	case float64:
		if math.IsNaN(val) {
			return nil
		}
		return val
	default:
		return v
	}
}
