package parser

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/opengouv/datasync/internal/store"
)

// ExcelParser parses the first worksheet of .xlsx/.xls files.
type ExcelParser struct {
	deps Deps
}

// ParseAndStore downloads the workbook, reads the first worksheet as a
// row-and-column table, truncates to the row cap, and converts each data row
// to a mapping keyed by the header row.
func (p *ExcelParser) ParseAndStore(ctx context.Context, res store.Resource, maxRows int) (int, error) {
	p.deps.Logger.Info("parsing Excel resource", zap.String("resource", res.Title))

	dl, err := p.deps.download(ctx, res, FormatExcel)
	if err != nil {
		return 0, err
	}

	file, err := excelize.OpenReader(bytes.NewReader(dl.Body))
	if err != nil {
		return 0, &ParseError{Format: FormatExcel, Err: err}
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			p.deps.Logger.Warn("close workbook", zap.Error(closeErr))
		}
	}()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return 0, &ParseError{Format: FormatExcel, Err: fmt.Errorf("workbook has no worksheets")}
	}

	table, err := file.GetRows(sheets[0])
	if err != nil {
		return 0, &ParseError{Format: FormatExcel, Err: err}
	}

	return p.deps.Writer.Write(ctx, res, newSliceSource(tableRows(table, maxRows)), maxRows)
}

// tableRows converts a worksheet table into mapping rows using the first row
// as header, keeping at most maxRows data rows.
func tableRows(table [][]string, maxRows int) []Row {
	if len(table) == 0 {
		return nil
	}
	header := table[0]
	data := table[1:]
	if len(data) > maxRows {
		data = data[:maxRows]
	}

	rows := make([]Row, 0, len(data))
	for _, cells := range data {
		row := make(MappingRow, len(header))
		for i, key := range header {
			if i < len(cells) {
				row[key] = cells[i]
			} else {
				row[key] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows
}
