// Package config loads the processing defaults shared by the dashboard and
// the batch CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/signal.report/internal/pipeline"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// Fallbacks used by the Get* accessors when a field is unset.
const (
	DefaultMaxUploadBytes = 32 << 20
	DefaultListenAddr     = ":8080"
	DefaultRequestTimeout = 30 * time.Second
	DefaultOutputFormat   = "csv"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// PipelineConfig holds processing defaults and server limits. Every field
// is optional; the Get* methods supply defaults for unset fields, so
// partial files are safe.
type PipelineConfig struct {
	// Processing params
	SamplingRateHz     *int     `json:"sampling_rate,omitempty" yaml:"sampling_rate,omitempty"`
	CutoffHz           *float64 `json:"cutoff_freq,omitempty" yaml:"cutoff_freq,omitempty"`
	FilterOrder        *int     `json:"filter_order,omitempty" yaml:"filter_order,omitempty"`
	CalibrationBufferS *int     `json:"calibration_buffer,omitempty" yaml:"calibration_buffer,omitempty"`
	PreviewRows        *int     `json:"preview_rows,omitempty" yaml:"preview_rows,omitempty"`

	// Server limits
	MaxUploadBytes *int64  `json:"max_upload_bytes,omitempty" yaml:"max_upload_bytes,omitempty"`
	ListenAddr     *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	RequestTimeout *string `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"` // duration string like "30s"

	// CLI output
	OutputFormat *string `json:"output_format,omitempty" yaml:"output_format,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyPipelineConfig returns a config with every field unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// DefaultPipelineConfig returns a config with every field set to its
// built-in default.
func DefaultPipelineConfig() *PipelineConfig {
	p := pipeline.DefaultParams()
	return &PipelineConfig{
		SamplingRateHz:     ptrInt(p.SamplingRateHz),
		CutoffHz:           ptrFloat64(p.CutoffHz),
		FilterOrder:        ptrInt(p.FilterOrder),
		CalibrationBufferS: ptrInt(p.CalibrationBufferS),
		PreviewRows:        ptrInt(p.PreviewRows),
		MaxUploadBytes:     ptrInt64(DefaultMaxUploadBytes),
		ListenAddr:         ptrString(DefaultListenAddr),
		RequestTimeout:     ptrString(DefaultRequestTimeout.String()),
		OutputFormat:       ptrString(DefaultOutputFormat),
	}
}

// LoadPipelineConfig loads a config from a .json, .yaml or .yml file of at
// most 1MB and validates it.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *PipelineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/process-logs/
	}
	for _, path := range candidates {
		if cfg, err := LoadPipelineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the set fields. Processing params are checked together,
// so a cutoff is judged against the effective sampling rate.
func (c *PipelineConfig) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if c.MaxUploadBytes != nil && *c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", *c.MaxUploadBytes)
	}
	if c.RequestTimeout != nil && *c.RequestTimeout != "" {
		d, err := time.ParseDuration(*c.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid request_timeout '%s': %w", *c.RequestTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("request_timeout must be positive, got %s", d)
		}
	}
	if c.OutputFormat != nil {
		switch *c.OutputFormat {
		case "csv", "parquet":
		default:
			return fmt.Errorf("output_format must be csv or parquet, got %q", *c.OutputFormat)
		}
	}
	return nil
}

// Params builds the pipeline parameters from the config.
func (c *PipelineConfig) Params() pipeline.Params {
	return pipeline.Params{
		SamplingRateHz:     c.GetSamplingRateHz(),
		CutoffHz:           c.GetCutoffHz(),
		FilterOrder:        c.GetFilterOrder(),
		CalibrationBufferS: c.GetCalibrationBufferS(),
		PreviewRows:        c.GetPreviewRows(),
	}
}

func (c *PipelineConfig) GetSamplingRateHz() int {
	if c.SamplingRateHz == nil {
		return pipeline.DefaultSamplingRateHz
	}
	return *c.SamplingRateHz
}

func (c *PipelineConfig) GetCutoffHz() float64 {
	if c.CutoffHz == nil {
		return pipeline.DefaultCutoffHz
	}
	return *c.CutoffHz
}

func (c *PipelineConfig) GetFilterOrder() int {
	if c.FilterOrder == nil {
		return pipeline.DefaultFilterOrder
	}
	return *c.FilterOrder
}

func (c *PipelineConfig) GetCalibrationBufferS() int {
	if c.CalibrationBufferS == nil {
		return pipeline.DefaultParams().CalibrationBufferS
	}
	return *c.CalibrationBufferS
}

func (c *PipelineConfig) GetPreviewRows() int {
	if c.PreviewRows == nil {
		return pipeline.DefaultParams().PreviewRows
	}
	return *c.PreviewRows
}

func (c *PipelineConfig) GetMaxUploadBytes() int64 {
	if c.MaxUploadBytes == nil {
		return DefaultMaxUploadBytes
	}
	return *c.MaxUploadBytes
}

func (c *PipelineConfig) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return DefaultListenAddr
	}
	return *c.ListenAddr
}

// GetRequestTimeout parses RequestTimeout, falling back to the default
// when it is unset or malformed.
func (c *PipelineConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout == nil || *c.RequestTimeout == "" {
		return DefaultRequestTimeout
	}
	d, err := time.ParseDuration(*c.RequestTimeout)
	if err != nil {
		return DefaultRequestTimeout
	}
	return d
}

func (c *PipelineConfig) GetOutputFormat() string {
	if c.OutputFormat == nil || *c.OutputFormat == "" {
		return DefaultOutputFormat
	}
	return *c.OutputFormat
}
