package parser

import (
	"context"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/opengouv/datasync/internal/store"
)

// dataKeys are checked in priority order when a JSON document is a mapping
// that wraps its row list under a well-known key.
var dataKeys = []string{"data", "results", "items", "records", "features"}

// JSONParser parses JSON and GeoJSON files.
type JSONParser struct {
	deps Deps
}

// ParseAndStore downloads and decodes the JSON body and writes its rows
// through the batch writer. A top-level sequence yields one row per element;
// a mapping either unwraps a well-known data key or becomes a single row; any
// other scalar becomes a single one-element row.
func (p *JSONParser) ParseAndStore(ctx context.Context, res store.Resource, maxRows int) (int, error) {
	p.deps.Logger.Info("parsing JSON resource", zap.String("resource", res.Title))

	dl, err := p.deps.download(ctx, res, FormatJSON)
	if err != nil {
		return 0, err
	}

	var doc any
	if err := json.Unmarshal(dl.Body, &doc); err != nil {
		return 0, &ParseError{Format: FormatJSON, Err: err}
	}

	return p.deps.Writer.Write(ctx, res, newSliceSource(extractRows(doc)), maxRows)
}

// extractRows maps a decoded JSON document onto its row sequence.
func extractRows(doc any) []Row {
	switch val := doc.(type) {
	case []any:
		rows := make([]Row, 0, len(val))
		for _, element := range val {
			rows = append(rows, rowFromValue(element))
		}
		return rows
	case map[string]any:
		for _, key := range dataKeys {
			if list, ok := val[key].([]any); ok {
				rows := make([]Row, 0, len(list))
				for _, element := range list {
					rows = append(rows, rowFromValue(element))
				}
				return rows
			}
		}
		return []Row{MappingRow(val)}
	default:
		return []Row{ScalarRow{Value: val}}
	}
}
