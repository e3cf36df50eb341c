package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/signal.report/internal/fsutil"
	"github.com/banshee-data/signal.report/internal/pipeline"
)

// PNG canvas size.
const (
	PNGWidth  = 14 * vg.Inch
	PNGHeight = 6 * vg.Inch
)

var (
	originalColor = color.RGBA{B: 255, A: 255}
	filteredColor = color.RGBA{R: 255, G: 165, A: 255}
)

// SignalPlot builds the static counterpart of SignalChart.
func SignalPlot(res *pipeline.Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Sensor signal, cutoff %g Hz, order %d", res.Params.CutoffHz, res.Params.FilterOrder)
	p.X.Label.Text = "Timestamp (seconds_elapsed)"
	p.Y.Label.Text = "Sensor Reading (y)"
	p.Add(plotter.NewGrid())

	s := res.Signal
	original := make(plotter.XYs, len(s.Time))
	filtered := make(plotter.XYs, len(s.Time))
	for i, t := range s.Time {
		original[i] = plotter.XY{X: t, Y: s.Original[i]}
		filtered[i] = plotter.XY{X: t, Y: s.Filtered[i]}
	}

	origLine, err := plotter.NewLine(original)
	if err != nil {
		return nil, err
	}
	origLine.Color = originalColor
	origLine.Width = vg.Points(1)
	p.Add(origLine)
	p.Legend.Add(SeriesOriginal, origLine)

	filtLine, err := plotter.NewLine(filtered)
	if err != nil {
		return nil, err
	}
	filtLine.Color = filteredColor
	filtLine.Width = vg.Points(2)
	p.Add(filtLine)
	p.Legend.Add(SeriesFiltered, filtLine)
	p.Legend.Top = true

	return p, nil
}

// WritePNG encodes the signal plot as PNG.
func WritePNG(w io.Writer, res *pipeline.Result) error {
	p, err := SignalPlot(res)
	if err != nil {
		return fmt.Errorf("build signal plot: %w", err)
	}
	wt, err := p.WriterTo(PNGWidth, PNGHeight, "png")
	if err != nil {
		return fmt.Errorf("encode signal plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG writes the signal plot to name on fsys.
func SavePNG(fsys fsutil.FileSystem, name string, res *pipeline.Result) error {
	f, err := fsys.Create(name)
	if err != nil {
		return err
	}
	if err := WritePNG(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
