// File: internal/tabular/tabular.go
// Package tabular supplies row records to the scenario and mapping loaders.
// A Source hides where the rows come from (CSV file, spreadsheet sheet); the
// loaders only ever see ordered string-keyed records.
package tabular

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// Record is one parsed data row, keyed by the header column names.
type Record map[string]string

// Source yields the ordered data records of one tabular input.
// Implementations return the rows after the header, in file order.
type Source interface {
	Records(ctx context.Context) ([]Record, error)
}

// ErrEmptySource is returned by the loaders when a source produced zero data
// records. The message is part of the loader contract.
var ErrEmptySource = errors.New("File is empty.")

// ValidationError aggregates every row-level violation found in one source.
// Loading is all-or-nothing: the caller gets either a fully built result or
// this error carrying the complete list.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, "\n")
}

// Open picks a Source implementation from the file extension. Spreadsheets
// (.xlsx, .xlsm) are read with the given sheet name (empty means the first
// sheet); anything else is treated as CSV.
func Open(path, sheet string) Source {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return XLSXFile{Path: path, Sheet: sheet}
	default:
		return CSVFile{Path: path}
	}
}

// headerNames normalizes a header row: the BOM is stripped from the first
// cell and every name is trimmed.
func headerNames(row []string) []string {
	names := make([]string, len(row))
	for i, h := range row {
		if i == 0 {
			h = strings.TrimPrefix(h, "﻿")
		}
		names[i] = strings.TrimSpace(h)
	}
	return names
}

// rowRecord folds one data row into a Record. Cells beyond the header width
// are dropped, short rows simply omit the trailing keys, and unnamed columns
// are skipped.
func rowRecord(header, row []string) Record {
	rec := make(Record, len(header))
	for i, name := range header {
		if name == "" || i >= len(row) {
			continue
		}
		rec[name] = strings.TrimSpace(row[i])
	}
	return rec
}

// blankRow reports whether every cell of the row is empty after trimming.
func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
