package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Table is an ordered set of columns and rows rendered as CSV.
type Table struct {
	Columns []string
	Rows    [][]string
}

// CSVWriter renders tables into CSV bytes.
type CSVWriter struct {
	// Comma overrides the field delimiter when non-zero.
	Comma rune
}

// NewCSVWriter builds a comma separated writer.
func NewCSVWriter() *CSVWriter {
	return &CSVWriter{}
}

// Render encodes the table. Rows shorter than the header are padded, longer rows are rejected.
func (w *CSVWriter) Render(table Table) ([]byte, error) {
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("csv requires at least one column")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if w.Comma != 0 {
		writer.Comma = w.Comma
	}
	if err := writer.Write(table.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i, row := range table.Rows {
		if len(row) > len(table.Columns) {
			return nil, fmt.Errorf("row %d has %d fields, want %d", i, len(row), len(table.Columns))
		}
		record := make([]string, len(table.Columns))
		copy(record, row)
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
