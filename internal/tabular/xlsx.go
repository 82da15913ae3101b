// File: internal/tabular/xlsx.go
package tabular

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXFile is a Source reading one sheet of a spreadsheet workbook. An empty
// Sheet selects the workbook's first sheet. The first spreadsheet row names
// the columns, matching the CSV contract.
type XLSXFile struct {
	Path  string
	Sheet string
}

func (x XLSXFile) Records(ctx context.Context) ([]Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	f, err := excelize.OpenFile(x.Path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := x.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := headerNames(rows[0])
	var records []Record
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		records = append(records, rowRecord(header, row))
	}
	return records, nil
}
