// Command process-logs runs the signal pipeline over a pair of Sensor Logger
// exports and writes the combined table, the HTML report, a PNG plot and
// the JSON result into an output directory.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/signal.report/internal/config"
	"github.com/banshee-data/signal.report/internal/export"
	"github.com/banshee-data/signal.report/internal/fsutil"
	"github.com/banshee-data/signal.report/internal/monitoring"
	"github.com/banshee-data/signal.report/internal/pipeline"
	"github.com/banshee-data/signal.report/internal/report"
)

// Options holds the parsed command line.
type Options struct {
	LocationFile      string
	AccelerometerFile string
	OutputDir         string
	ConfigPath        string
	EnvFile           string
	Format            string
	AssetsHost        string
	Verbose           bool
	PrintManifest     bool

	// Overrides applied on top of the resolved config; nil means unset.
	SamplingRateHz     *int
	CutoffHz           *float64
	FilterOrder        *int
	CalibrationBufferS *int
}

func parseFlags(args []string, stderr io.Writer) (Options, error) {
	var o Options
	fs := flag.NewFlagSet("process-logs", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.LocationFile, "location", "", "Path to Location.csv (required)")
	fs.StringVar(&o.AccelerometerFile, "accelerometer", "", "Path to Accelerometer.csv (required)")
	fs.StringVar(&o.OutputDir, "output", "out", "Output directory for artefacts")
	fs.StringVar(&o.ConfigPath, "config", "", "Path to a JSON or YAML pipeline config")
	fs.StringVar(&o.EnvFile, "env-file", ".env", "Optional .env file with SIGNAL_* overrides")
	fs.StringVar(&o.Format, "format", "", "Combined table format: csv or parquet (default from config)")
	fs.StringVar(&o.AssetsHost, "assets-host", "", "Host serving the echarts scripts in report.html")
	fs.BoolVar(&o.Verbose, "v", false, "Verbose pipeline logging")
	fs.BoolVar(&o.PrintManifest, "json", false, "Print the artefact manifest as JSON")

	samplingRate := fs.Int("sampling-rate", 0, "Sampling rate in Hz (overrides config)")
	cutoff := fs.Float64("cutoff", 0, "Low-pass cutoff in Hz (overrides config)")
	order := fs.Int("order", 0, "Butterworth filter order (overrides config)")
	buffer := fs.Int("calibration-buffer", 0, "Seconds dropped from the start of the accelerometer stream (overrides config)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: process-logs -location Location.csv -accelerometer Accelerometer.csv [options]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sampling-rate":
			o.SamplingRateHz = samplingRate
		case "cutoff":
			o.CutoffHz = cutoff
		case "order":
			o.FilterOrder = order
		case "calibration-buffer":
			o.CalibrationBufferS = buffer
		}
	})

	if o.LocationFile == "" || o.AccelerometerFile == "" {
		fs.Usage()
		return o, errors.New("both -location and -accelerometer are required")
	}
	return o, nil
}

// params resolves the run parameters: config defaults, then flags.
func (o Options) params(cfg *config.PipelineConfig) pipeline.Params {
	p := cfg.Params()
	if o.SamplingRateHz != nil {
		p.SamplingRateHz = *o.SamplingRateHz
	}
	if o.CutoffHz != nil {
		p.CutoffHz = *o.CutoffHz
	}
	if o.FilterOrder != nil {
		p.FilterOrder = *o.FilterOrder
	}
	if o.CalibrationBufferS != nil {
		p.CalibrationBufferS = *o.CalibrationBufferS
	}
	return p
}

// run executes one pipeline run and writes its artefacts through fsys.
func run(ctx context.Context, fsys fsutil.FileSystem, runner *pipeline.Runner, o Options) (*export.Manifest, error) {
	cfg, err := config.Resolve(o.ConfigPath, o.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	formatName := o.Format
	if formatName == "" {
		formatName = cfg.GetOutputFormat()
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}

	loc, err := fsys.ReadFile(o.LocationFile)
	if err != nil {
		return nil, fmt.Errorf("read location file: %w", err)
	}
	accel, err := fsys.ReadFile(o.AccelerometerFile)
	if err != nil {
		return nil, fmt.Errorf("read accelerometer file: %w", err)
	}

	res, err := runner.Run(ctx, pipeline.Request{
		LocationCSV:      loc,
		AccelerometerCSV: accel,
		Params:           o.params(cfg),
	})
	if err != nil {
		return nil, err
	}

	return export.WriteArtifacts(fsys, o.OutputDir, res, export.Options{
		Format: format,
		Report: report.Options{AssetsHost: o.AssetsHost},
	})
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if o.Verbose {
		pipeline.SetLogWriter(monitoring.Writer(""))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := run(ctx, fsutil.OSFileSystem{}, pipeline.NewRunner(), o)
	if err != nil {
		var pe *pipeline.Error
		if errors.As(err, &pe) {
			log.Fatalf("%s (%s at %s)", pe.Message(), pe.Kind, pe.Stage)
		}
		log.Fatalf("process-logs failed: %v", err)
	}

	if o.PrintManifest {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(m); err != nil {
			log.Fatalf("encode manifest: %v", err)
		}
		return
	}
	log.Printf("run %s wrote %s, %s, %s and %s", m.RunID, m.CombinedPath, m.ReportPath, m.PlotPath, m.ResultPath)
}
