package parser

import (
	"fmt"
	"io"
)

// ParseError reports malformed file content encountered while producing rows.
type ParseError struct {
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s content: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RowSource yields rows one at a time. Next returns io.EOF when the source is
// exhausted; any other error is a parse failure.
type RowSource interface {
	Next() (Row, error)
}

// sliceSource serves rows from an in-memory slice.
type sliceSource struct {
	rows []Row
	idx  int
}

func newSliceSource(rows []Row) *sliceSource {
	return &sliceSource{rows: rows}
}

func (s *sliceSource) Next() (Row, error) {
	if s.idx >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.idx]
	s.idx++
	return row, nil
}

// rowFromValue maps a decoded JSON value onto the matching Row variant.
func rowFromValue(v any) Row {
	switch val := v.(type) {
	case map[string]any:
		return MappingRow(val)
	case []any:
		return SequenceRow(val)
	default:
		return ScalarRow{Value: val}
	}
}
