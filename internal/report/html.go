// Package report renders a pipeline result: an interactive HTML page with
// the signal chart and the GPS track, and a static PNG of the signal.
package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/signal.report/internal/pipeline"
)

// Series colours, matching the original and filtered traces of the
// dashboard chart.
const (
	ColorOriginal = "blue"
	ColorFiltered = "orange"
	ColorTrack    = "rgba(255,0,0,0.63)"
)

// Series names as shown in the chart legend.
const (
	SeriesOriginal = "Original"
	SeriesFiltered = "LPF Filtered"
)

// Options tunes the HTML output.
type Options struct {
	// AssetsHost overrides where the echarts scripts are loaded from.
	AssetsHost string
	// Theme is the echarts theme name. Empty means "dark".
	Theme string
}

func (o Options) theme() string {
	if o.Theme == "" {
		return "dark"
	}
	return o.Theme
}

// SignalChart plots original and filtered y against seconds_elapsed_x.
func SignalChart(res *pipeline.Result, o Options) *charts.Line {
	original := make([]opts.LineData, len(res.Signal.Time))
	filtered := make([]opts.LineData, len(res.Signal.Time))
	for i, t := range res.Signal.Time {
		original[i] = opts.LineData{Value: []interface{}{t, res.Signal.Original[i]}}
		filtered[i] = opts.LineData{Value: []interface{}{t, res.Signal.Filtered[i]}}
	}

	p := res.Params
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sensor Signal", Theme: o.theme(), Width: "100%", Height: "480px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Interactive Sensor Data Visualization",
			Subtitle: fmt.Sprintf("fs=%d Hz cutoff=%g Hz order=%d buffer=%d s", p.SamplingRateHz, p.CutoffHz, p.FilterOrder, p.CalibrationBufferS),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Left: "right"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Timestamp (seconds_elapsed)", NameLocation: "middle", NameGap: 25, Min: "dataMin", Max: "dataMax"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Sensor Reading (y)", NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)
	line.AddSeries(SeriesOriginal, original,
		charts.WithLineStyleOpts(opts.LineStyle{Color: ColorOriginal, Width: 1}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: ColorOriginal}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.AddSeries(SeriesFiltered, filtered,
		charts.WithLineStyleOpts(opts.LineStyle{Color: ColorFiltered, Width: 2}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: ColorFiltered}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	return line
}

// TrackChart places the matched records on a longitude/latitude plane
// framed by the result's map view.
func TrackChart(res *pipeline.Result, o Options) *charts.Scatter {
	pts := make([]opts.ScatterData, 0, len(res.Track.Points))
	for _, tp := range res.Track.Points {
		pts = append(pts, opts.ScatterData{Value: []interface{}{tp.Longitude, tp.Latitude, tp.X, tp.Y, tp.Z, tp.SecondsElapsed}})
	}

	xAxis := opts.XAxis{Type: "value", Name: "Longitude", NameLocation: "middle", NameGap: 25}
	yAxis := opts.YAxis{Type: "value", Name: "Latitude", NameLocation: "middle", NameGap: 55}
	subtitle := "no location fixes in the processed window"
	if v := res.Track.View; v != nil {
		padLat := max((v.MaxLatitude-v.MinLatitude)*0.05, 1e-5)
		padLon := max((v.MaxLongitude-v.MinLongitude)*0.05, 1e-5)
		xAxis.Min, xAxis.Max = v.MinLongitude-padLon, v.MaxLongitude+padLon
		yAxis.Min, yAxis.Max = v.MinLatitude-padLat, v.MaxLatitude+padLat
		subtitle = fmt.Sprintf("points=%d centre=(%.6f, %.6f) zoom=%d", len(pts), v.CenterLatitude, v.CenterLongitude, v.Zoom)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "GPS Track", Theme: o.theme(), Width: "100%", Height: "640px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Interactive GPS Map", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(xAxis),
		charts.WithYAxisOpts(yAxis),
	)
	scatter.AddSeries("track", pts,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: ColorTrack}),
	)
	return scatter
}

// RenderHTML writes a self-contained page with both charts.
func RenderHTML(w io.Writer, res *pipeline.Result, o Options) error {
	page := components.NewPage()
	page.SetPageTitle("signal.report " + res.RunID)
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	page.AddCharts(SignalChart(res, o), TrackChart(res, o))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
