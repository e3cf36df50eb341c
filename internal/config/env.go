package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix marks the environment variables ApplyEnv understands.
const EnvPrefix = "SIGNAL_"

// Environment variable names.
const (
	EnvSamplingRate      = EnvPrefix + "SAMPLING_RATE"
	EnvCutoffFreq        = EnvPrefix + "CUTOFF_FREQ"
	EnvFilterOrder       = EnvPrefix + "FILTER_ORDER"
	EnvCalibrationBuffer = EnvPrefix + "CALIBRATION_BUFFER"
	EnvPreviewRows       = EnvPrefix + "PREVIEW_ROWS"
	EnvMaxUploadBytes    = EnvPrefix + "MAX_UPLOAD_BYTES"
	EnvListen            = EnvPrefix + "LISTEN"
	EnvRequestTimeout    = EnvPrefix + "REQUEST_TIMEOUT"
	EnvOutputFormat      = EnvPrefix + "OUTPUT_FORMAT"
)

// ReadDotEnv reads KEY=value pairs from a .env file without touching the
// process environment.
func ReadDotEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return env, nil
}

// ProcessEnv returns the SIGNAL_* variables of the process environment.
func ProcessEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	return env
}

// ApplyEnv overlays the SIGNAL_* entries of env onto c and re-validates.
// Unknown SIGNAL_* keys are ignored; malformed values are errors.
func (c *PipelineConfig) ApplyEnv(env map[string]string) error {
	ints := []struct {
		key string
		dst **int
	}{
		{EnvSamplingRate, &c.SamplingRateHz},
		{EnvFilterOrder, &c.FilterOrder},
		{EnvCalibrationBuffer, &c.CalibrationBufferS},
		{EnvPreviewRows, &c.PreviewRows},
	}
	for _, f := range ints {
		v, ok := env[f.key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = ptrInt(n)
	}

	if v, ok := env[EnvCutoffFreq]; ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCutoffFreq, err)
		}
		c.CutoffHz = ptrFloat64(f)
	}
	if v, ok := env[EnvMaxUploadBytes]; ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxUploadBytes, err)
		}
		c.MaxUploadBytes = ptrInt64(n)
	}
	if v, ok := env[EnvListen]; ok {
		c.ListenAddr = ptrString(strings.TrimSpace(v))
	}
	if v, ok := env[EnvRequestTimeout]; ok {
		c.RequestTimeout = ptrString(strings.TrimSpace(v))
	}
	if v, ok := env[EnvOutputFormat]; ok {
		c.OutputFormat = ptrString(strings.ToLower(strings.TrimSpace(v)))
	}

	return c.Validate()
}

// Resolve builds the effective config: the file at path (built-in defaults
// when path is empty), then the .env file at dotenv if it exists, then the
// process environment.
func Resolve(path, dotenv string) (*PipelineConfig, error) {
	cfg := DefaultPipelineConfig()
	if path != "" {
		loaded, err := LoadPipelineConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if dotenv != "" {
		if _, err := os.Stat(dotenv); err == nil {
			env, err := ReadDotEnv(dotenv)
			if err != nil {
				return nil, err
			}
			if err := cfg.ApplyEnv(env); err != nil {
				return nil, fmt.Errorf("%s: %w", dotenv, err)
			}
		}
	}
	if err := cfg.ApplyEnv(ProcessEnv()); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}
