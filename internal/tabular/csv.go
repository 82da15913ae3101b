// File: internal/tabular/csv.go
package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// CSVFile is a Source reading a comma separated file from disk. The first
// row names the columns; fully blank rows are skipped.
type CSVFile struct {
	Path string
}

func (f CSVFile) Records(ctx context.Context) ([]Record, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer fh.Close()
	return ReadCSV(ctx, fh)
}

// ReadCSV parses records from r. The header row is consumed first; a reader
// with no content at all yields zero records rather than an error.
func ReadCSV(ctx context.Context, r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	// Rows narrower or wider than the header are tolerated; rowRecord
	// reconciles them against the header width.
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	header := headerNames(head)

	var records []Record
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv read: %w", err)
		}
		if blankRow(row) {
			continue
		}
		records = append(records, rowRecord(header, row))
	}
	return records, nil
}
