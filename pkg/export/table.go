package export

import (
	"fmt"
	"time"
)

// Column describes one exported field. Width is a relative weight used by
// page layouts; zero counts as one.
type Column struct {
	Header string
	Width  float64
}

// Table is an export body whose rows follow the column order.
type Table struct {
	Title       string
	GeneratedAt time.Time
	Columns     []Column
	Rows        [][]string
}

// Headers lists the column headers in order.
func (t Table) Headers() []string {
	headers := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		headers[i] = col.Header
	}
	return headers
}

func (t Table) validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("export requires at least one column")
	}
	for i, row := range t.Rows {
		if len(row) > len(t.Columns) {
			return fmt.Errorf("row %d has %d cells, expected at most %d", i+1, len(row), len(t.Columns))
		}
	}
	return nil
}

// cell returns the value at col, or "" for short rows.
func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}
