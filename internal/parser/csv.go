package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/opengouv/datasync/internal/store"
)

// fallbackEncodings is tried in order when the body is not valid UTF-8.
var fallbackEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"latin-1", charmap.ISO8859_1},
	{"cp1252", charmap.Windows1252},
	{"iso-8859-1", charmap.ISO8859_1},
}

// CSVParser parses header-keyed CSV files.
type CSVParser struct {
	deps Deps
}

// ParseAndStore downloads and parses the CSV body, one record per line after
// the header, and writes the rows through the batch writer.
func (p *CSVParser) ParseAndStore(ctx context.Context, res store.Resource, maxRows int) (int, error) {
	p.deps.Logger.Info("parsing CSV resource", zap.String("resource", res.Title))

	dl, err := p.deps.download(ctx, res, FormatCSV)
	if err != nil {
		return 0, err
	}

	text, encName := decodeBody(dl.Body)
	p.deps.Logger.Debug("csv body decoded",
		zap.String("resource", res.Title),
		zap.String("encoding", encName),
	)

	src, err := newCSVSource(text)
	if err != nil {
		return 0, err
	}
	return p.deps.Writer.Write(ctx, res, src, maxRows)
}

// decodeBody decodes raw bytes trying utf-8 first, then the fallback chain,
// ending with permissive utf-8. It returns the text and the encoding used.
func decodeBody(body []byte) (string, string) {
	if utf8.Valid(body) {
		return string(body), "utf-8"
	}
	for _, candidate := range fallbackEncodings {
		decoded, err := candidate.enc.NewDecoder().Bytes(body)
		if err != nil {
			continue
		}
		return string(decoded), candidate.name
	}
	return string(body), "utf-8"
}

// csvSource yields one MappingRow per data line, keyed by the header row.
type csvSource struct {
	reader *csv.Reader
	header []string
}

func newCSVSource(text string) (*csvSource, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &csvSource{reader: reader}, nil
	}
	if err != nil {
		return nil, &ParseError{Format: FormatCSV, Err: err}
	}
	return &csvSource{reader: reader, header: header}, nil
}

func (s *csvSource) Next() (Row, error) {
	if s.header == nil {
		return nil, io.EOF
	}
	record, err := s.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, &ParseError{Format: FormatCSV, Err: err}
	}

	row := make(MappingRow, len(s.header))
	for i, key := range s.header {
		if i < len(record) {
			row[key] = record[i]
		} else {
			row[key] = nil
		}
	}
	return row, nil
}
