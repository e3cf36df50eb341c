// Package sensorlog holds the in-memory tables built from Sensor Logger CSV
// exports, plus schema checks and previews over them.
//
// A Table is column oriented. Numeric columns store every value as float64
// with NaN marking a missing cell; text columns keep the raw strings.
package sensorlog

import (
	"fmt"
	"math"
	"strconv"
)

// Kind is the inferred type of a column, named after the dtype the
// dashboard shows for it.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int64"
	case KindFloat:
		return "float64"
	case KindText:
		return "object"
	default:
		return "unknown"
	}
}

// Numeric reports whether values of this kind live in Column.Floats.
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindFloat
}

// Column is a single named column of a Table.
type Column struct {
	Name   string
	Kind   Kind
	Floats []float64 // KindInt and KindFloat
	Text   []string  // KindText
}

// Len returns the number of cells in the column.
func (c *Column) Len() int {
	if c.Kind == KindText {
		return len(c.Text)
	}
	return len(c.Floats)
}

// Cell formats row i for display. Missing numeric cells render empty.
func (c *Column) Cell(i int) string {
	if c.Kind == KindText {
		return c.Text[i]
	}
	v := c.Floats[i]
	if math.IsNaN(v) {
		return ""
	}
	if c.Kind == KindInt {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Table is an ordered set of equally sized columns.
type Table struct {
	Name    string
	Columns []*Column

	rows  int
	index map[string]int
}

// NewTable builds a table, rejecting duplicate names and ragged columns.
func NewTable(name string, columns []*Column) (*Table, error) {
	t := &Table{
		Name:    name,
		Columns: columns,
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate column %q: %w", name, c.Name, ErrSchema)
		}
		t.index[c.Name] = i
		if i == 0 {
			t.rows = c.Len()
			continue
		}
		if c.Len() != t.rows {
			return nil, fmt.Errorf("%s: column %q has %d rows, want %d: %w", name, c.Name, c.Len(), t.rows, ErrSchema)
		}
	}
	return t, nil
}

// Rows returns the number of data rows.
func (t *Table) Rows() int { return t.rows }

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.Columns) }

// Shape returns (rows, columns).
func (t *Table) Shape() (int, int) { return t.rows, len(t.Columns) }

// Has reports whether the table has a column with the given name.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column looks up a column by name.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.Columns[i], true
}

// Names returns the column names in table order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Floats returns the values of a numeric column.
func (t *Table) Floats(name string) ([]float64, error) {
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("%s: missing column %q: %w", t.Name, name, ErrSchema)
	}
	if !c.Kind.Numeric() {
		return nil, fmt.Errorf("%s: column %q is %s, not numeric: %w", t.Name, name, c.Kind, ErrSchema)
	}
	return c.Floats, nil
}

// Head returns up to n rows formatted for display.
func (t *Table) Head(n int) [][]string {
	if n > t.rows {
		n = t.rows
	}
	if n < 0 {
		n = 0
	}
	out := make([][]string, n)
	for i := 0; i < n; i++ {
		row := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			row[j] = c.Cell(i)
		}
		out[i] = row
	}
	return out
}

// WithColumn returns a copy of the table with c appended. The receiver is
// not modified; column slices are shared.
func (t *Table) WithColumn(c *Column) (*Table, error) {
	cols := make([]*Column, 0, len(t.Columns)+1)
	cols = append(cols, t.Columns...)
	cols = append(cols, c)
	return NewTable(t.Name, cols)
}
