package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/signal.report/internal/fsutil"
	"github.com/banshee-data/signal.report/internal/pipeline"
	"github.com/banshee-data/signal.report/internal/report"
)

// Format is the encoding of the combined table artefact.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts "csv" or "parquet", case-insensitively. Empty means
// CSV.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q (expected csv|parquet)", s)
	}
}

// Artefact file names inside the output directory.
const (
	CombinedBase = "combined"
	ReportFile   = "report.html"
	PlotFile     = "signal.png"
	ResultFile   = "result.json"
)

// Options selects what WriteArtifacts produces.
type Options struct {
	Format Format
	Report report.Options
}

// Manifest lists the files one run wrote.
type Manifest struct {
	RunID        string `json:"run_id"`
	OutputDir    string `json:"output_dir"`
	CombinedPath string `json:"combined_path"`
	ReportPath   string `json:"report_path"`
	PlotPath     string `json:"plot_path"`
	ResultPath   string `json:"result_path"`
}

// WriteArtifacts writes the combined table, the HTML report, the signal
// PNG and the JSON result into outDir, creating it if needed.
func WriteArtifacts(fsys fsutil.FileSystem, outDir string, res *pipeline.Result, o Options) (*Manifest, error) {
	if strings.TrimSpace(outDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	format := o.Format
	if format == "" {
		format = FormatCSV
	}
	if err := fsys.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	m := &Manifest{
		RunID:        res.RunID,
		OutputDir:    outDir,
		CombinedPath: filepath.Join(outDir, CombinedBase+"."+string(format)),
		ReportPath:   filepath.Join(outDir, ReportFile),
		PlotPath:     filepath.Join(outDir, PlotFile),
		ResultPath:   filepath.Join(outDir, ResultFile),
	}

	var combined bytes.Buffer
	switch format {
	case FormatCSV:
		if err := WriteCSV(&combined, res.Combined); err != nil {
			return nil, fmt.Errorf("write combined csv: %w", err)
		}
	case FormatParquet:
		if err := WriteParquet(&combined, res); err != nil {
			return nil, fmt.Errorf("write combined parquet: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if err := fsys.WriteFile(m.CombinedPath, combined.Bytes(), 0o644); err != nil {
		return nil, err
	}

	var html bytes.Buffer
	if err := report.RenderHTML(&html, res, o.Report); err != nil {
		return nil, err
	}
	if err := fsys.WriteFile(m.ReportPath, html.Bytes(), 0o644); err != nil {
		return nil, err
	}

	if err := report.SavePNG(fsys, m.PlotPath, res); err != nil {
		return nil, fmt.Errorf("write %s: %w", PlotFile, err)
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ResultFile, err)
	}
	if err := fsys.WriteFile(m.ResultPath, append(data, '\n'), 0o644); err != nil {
		return nil, err
	}
	return m, nil
}
