// Package parser turns downloaded resource files into normalized data records.
package parser

import (
	"fmt"
	"strings"
)

// Format is the closed set of file formats the pipeline can parse.
type Format int

// Known formats. GeoJSON is parsed by the JSON parser (GeoJSON is valid JSON).
const (
	FormatUnknown Format = iota
	FormatCSV
	FormatJSON
	FormatExcel
	FormatGeoJSON
)

// String returns the canonical upper-cased format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "CSV"
	case FormatJSON:
		return "JSON"
	case FormatExcel:
		return "XLSX"
	case FormatGeoJSON:
		return "GEOJSON"
	default:
		return "UNKNOWN"
	}
}

// supportedFormats names the accepted declared-format strings for error messages.
const supportedFormats = "CSV, JSON, XLSX, XLS, GEOJSON"

// UnsupportedFormatError reports a declared format outside the known set.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("format %q is not supported (supported formats: %s)", e.Format, supportedFormats)
}

// ParseFormat resolves a declared format string to a Format, rejecting unknown
// values at the boundary with a typed error.
func ParseFormat(declared string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(declared)) {
	case "CSV":
		return FormatCSV, nil
	case "JSON":
		return FormatJSON, nil
	case "XLSX", "XLS":
		return FormatExcel, nil
	case "GEOJSON":
		return FormatGeoJSON, nil
	default:
		return FormatUnknown, &UnsupportedFormatError{Format: declared}
	}
}

// IsSupportedFormat reports whether a declared format string can be parsed,
// letting callers pre-check without constructing a parser.
func IsSupportedFormat(declared string) bool {
	_, err := ParseFormat(declared)
	return err == nil
}

// fileExtension returns the archive file extension for a format.
func (f Format) fileExtension() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON, FormatGeoJSON:
		return "json"
	case FormatExcel:
		return "xlsx"
	default:
		return "bin"
	}
}
