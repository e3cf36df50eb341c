// Package export writes run artefacts: the combined table as CSV or
// Parquet, the HTML report, the signal PNG and the result JSON.
package export

import (
	"encoding/csv"
	"io"

	"github.com/banshee-data/signal.report/internal/sensorlog"
)

// WriteCSV writes t with a header row. Missing numeric cells are empty.
func WriteCSV(w io.Writer, t *sensorlog.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return err
	}
	row := make([]string, t.NumColumns())
	for i := 0; i < t.Rows(); i++ {
		for j, c := range t.Columns {
			row[j] = c.Cell(i)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
