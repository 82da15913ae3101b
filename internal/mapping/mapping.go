// File: internal/mapping/mapping.go
// Package mapping loads declarative extraction tables: which selector and
// node property feed each named output field.
package mapping

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/forceps-cli/internal/tabular"
)

// FieldMapping names one output field and where its value comes from: the
// selector locating the source node and the snapshot property to read. The
// tabular contract requires a selector, but tables built in code may leave
// it empty to read from the current node's own snapshot.
type FieldMapping struct {
	Name     string
	Selector string
	Property string
}

// Table maps field names to their mappings. It is immutable after build and
// safe to reuse across any number of extractions.
type Table map[string]FieldMapping

// Column names of the tabular mapping contract.
const (
	colName     = "name"
	colSelector = "selector"
	colProperty = "property"
)

// ValidateRecords checks every record against the mapping contract and
// returns all violations in record order. Line numbers are the 1-based
// positions in the record list.
func ValidateRecords(records []tabular.Record) []string {
	var violations []string
	for i, rec := range records {
		line := i + 1
		for _, col := range []string{colName, colSelector, colProperty} {
			if rec[col] == "" {
				violations = append(violations, fmt.Sprintf("Line: %d, %s is required.", line, col))
			}
		}
	}
	return violations
}

// Loader orchestrates reading, validating and folding one mapping source
// into a Table. Like the scenario loader it is all-or-nothing.
type Loader struct {
	log *zap.Logger
}

// NewLoader returns a Loader logging through the given logger. A nil logger
// is replaced with a no-op one.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{log: logger.With(zap.String("component", "mapping_loader"))}
}

// Load reads all records from src, validates them, and folds them into a
// Table keyed by field name. A duplicate name is not an error: the later
// record wins, and the overwrite is logged so a mistyped mapping file does
// not fail silently.
func (l *Loader) Load(ctx context.Context, src tabular.Source) (Table, error) {
	records, err := src.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("read mapping source: %w", err)
	}
	if len(records) == 0 {
		return nil, tabular.ErrEmptySource
	}
	if violations := ValidateRecords(records); len(violations) > 0 {
		l.log.Debug("Mapping validation failed", zap.Int("violations", len(violations)))
		return nil, &tabular.ValidationError{Violations: violations}
	}

	table := make(Table, len(records))
	for i, rec := range records {
		name := rec[colName]
		if _, exists := table[name]; exists {
			l.log.Warn("Duplicate mapping name, later definition wins",
				zap.String("field", name),
				zap.Int("line", i+1),
			)
		}
		table[name] = FieldMapping{
			Name:     name,
			Selector: rec[colSelector],
			Property: rec[colProperty],
		}
	}
	l.log.Debug("Mapping loaded", zap.Int("fields", len(table)))
	return table, nil
}
