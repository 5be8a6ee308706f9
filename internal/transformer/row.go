// Package transformer cleans the raw course export and extracts the
// dimension tables (levels, formats, series, languages) from it.
//
// Everything here is pure: functions take a *Table and return new values
// without touching the store or mutating their input.
package transformer

import (
	"fmt"
	"strings"
)

// Row is a positional record from the source file.
//
// V holds one value per column of the owning Table. A nil value means the
// cell was missing; otherwise values are strings.
type Row struct {
	V    []any
	Line int // 1-based source line, 0 when built in memory
}

// NewRow returns a Row with colCount missing values.
func NewRow(colCount int) *Row {
	return &Row{V: make([]any, colCount)}
}

// Clone returns a deep copy of r.
func (r *Row) Clone() *Row {
	return &Row{V: append([]any(nil), r.V...), Line: r.Line}
}

// Table is an in-memory tabular dataset with named columns.
type Table struct {
	Columns []string
	Rows    []*Row
}

// NewTable builds a Table from column names and string cells. Empty strings
// become missing values. Intended for tests and fixtures.
func NewTable(columns []string, rows ...[]string) *Table {
	t := &Table{Columns: append([]string(nil), columns...)}
	for i, cells := range rows {
		r := NewRow(len(columns))
		r.Line = i + 2
		for j := 0; j < len(columns) && j < len(cells); j++ {
			if cells[j] != "" {
				r.V[j] = cells[j]
			}
		}
		t.Rows = append(t.Rows, r)
	}
	return t
}

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has reports whether the table has column name.
func (t *Table) Has(name string) bool { return t.Index(name) >= 0 }

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]*Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Text returns the cell of row r at column idx as a string. ok is false for
// missing cells and out-of-range columns.
func (t *Table) Text(r *Row, idx int) (s string, ok bool) {
	if idx < 0 || idx >= len(r.V) || r.V[idx] == nil {
		return "", false
	}
	switch v := r.V[idx].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return fmt.Sprint(v), true
	}
}

// Normalize lowercases and trims a categorical value. Dimension names and
// lookups both go through it.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
