package domain

import (
	"fmt"
	"strings"
)

// Table is a fully materialized query result.
type Table struct {
	Columns []string
	Rows    [][]Value
}

// ColumnIndex finds a column by case-insensitive name, or returns -1.
// Warehouses fold unquoted identifiers to upper or lower case, so callers
// should not depend on either.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Float returns a numeric cell, treating nulls and non-numbers as zero.
func (t *Table) Float(row, col int) float64 {
	if col < 0 || row < 0 || row >= len(t.Rows) || col >= len(t.Rows[row]) {
		return 0
	}
	f, ok := t.Rows[row][col].AsFloat()
	if !ok {
		return 0
	}
	return f
}

// AddColumn appends a column; values must have one entry per row.
func (t *Table) AddColumn(name string, values []Value) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("add column %s: %d values for %d rows", name, len(values), len(t.Rows))
	}
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], values[i])
	}
	return nil
}

// Records renders the table as a list of objects in column order, one per
// row. Missing cells are null.
func (t *Table) Records() Value {
	if t == nil {
		return List()
	}
	records := make([]Value, len(t.Rows))
	for i, row := range t.Rows {
		fields := make([]Field, len(t.Columns))
		for j, col := range t.Columns {
			cell := Null()
			if j < len(row) {
				cell = row[j]
			}
			fields[j] = F(col, cell)
		}
		records[i] = Object(fields...)
	}
	return List(records...)
}
