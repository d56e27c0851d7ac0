package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		declared string
		want     Format
	}{
		{"CSV", FormatCSV},
		{"csv", FormatCSV},
		{" csv ", FormatCSV},
		{"JSON", FormatJSON},
		{"XLSX", FormatExcel},
		{"xls", FormatExcel},
		{"GeoJSON", FormatGeoJSON},
	}
	for _, tc := range testCases {
		t.Run(tc.declared, func(t *testing.T) {
			got, err := ParseFormat(tc.declared)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseFormatUnknown(t *testing.T) {
	t.Parallel()

	_, err := ParseFormat("PDF")
	var unsupported *UnsupportedFormatError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "PDF", unsupported.Format)
	assert.Contains(t, unsupported.Error(), "CSV, JSON, XLSX, XLS, GEOJSON")
}

func TestIsSupportedFormat(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSupportedFormat("csv"))
	assert.True(t, IsSupportedFormat("GEOJSON"))
	assert.False(t, IsSupportedFormat("PDF"))
	assert.False(t, IsSupportedFormat(""))
}
