package sensorlog

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultPreviewRows matches the head() size the dashboard shows.
const DefaultPreviewRows = 10

// ColumnInfo is one row of the "column details" listing.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ColumnSummary describes the present values of a numeric column.
type ColumnSummary struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Missing int     `json:"missing"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// TablePreview is the first rows of a table plus its shape and dtypes.
type TablePreview struct {
	Name    string          `json:"name"`
	Rows    int             `json:"rows"`
	Columns int             `json:"columns"`
	Schema  []ColumnInfo    `json:"schema"`
	Header  []string        `json:"header"`
	Head    [][]string      `json:"head"`
	Summary []ColumnSummary `json:"summary,omitempty"`
}

// Preview captures up to n leading rows of t. n <= 0 uses
// DefaultPreviewRows.
func Preview(t *Table, n int) TablePreview {
	if n <= 0 {
		n = DefaultPreviewRows
	}
	rows, cols := t.Shape()
	p := TablePreview{
		Name:    t.Name,
		Rows:    rows,
		Columns: cols,
		Schema:  make([]ColumnInfo, len(t.Columns)),
		Header:  t.Names(),
		Head:    t.Head(n),
	}
	for i, c := range t.Columns {
		p.Schema[i] = ColumnInfo{Name: c.Name, Type: c.Kind.String()}
	}
	p.Summary = Describe(t)
	return p
}

// Describe summarises every numeric column that has at least one present
// value. Columns with nothing but missing cells are left out.
func Describe(t *Table) []ColumnSummary {
	var out []ColumnSummary
	for _, c := range t.Columns {
		if !c.Kind.Numeric() {
			continue
		}
		present := presentValues(c.Floats)
		if len(present) == 0 {
			continue
		}
		s := ColumnSummary{
			Name:    c.Name,
			Count:   len(present),
			Missing: len(c.Floats) - len(present),
			Min:     floats.Min(present),
			Max:     floats.Max(present),
		}
		if len(present) > 1 {
			s.Mean, s.Std = stat.MeanStdDev(present, nil)
		} else {
			s.Mean = present[0]
		}
		out = append(out, s)
	}
	return out
}

func presentValues(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}
