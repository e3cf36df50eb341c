package main

import (
	"bytes"
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/signal.report/internal/config"
	"github.com/banshee-data/signal.report/internal/fsutil"
	"github.com/banshee-data/signal.report/internal/pipeline"
	"github.com/banshee-data/signal.report/internal/testutil"
	"github.com/banshee-data/signal.report/internal/timeutil"
)

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	o, err := parseFlags([]string{"-location", "Location.csv", "-accelerometer", "Accelerometer.csv"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "out", o.OutputDir)
	assert.Equal(t, ".env", o.EnvFile)
	assert.Nil(t, o.SamplingRateHz)
	assert.Nil(t, o.CutoffHz)
	assert.Nil(t, o.FilterOrder)
	assert.Nil(t, o.CalibrationBufferS)

	o, err = parseFlags([]string{
		"-location", "l.csv", "-accelerometer", "a.csv",
		"-cutoff", "1.5", "-order", "4", "-calibration-buffer", "0", "-format", "parquet",
	}, &stderr)
	require.NoError(t, err)
	require.NotNil(t, o.CutoffHz)
	assert.Equal(t, 1.5, *o.CutoffHz)
	require.NotNil(t, o.FilterOrder)
	assert.Equal(t, 4, *o.FilterOrder)
	require.NotNil(t, o.CalibrationBufferS)
	assert.Equal(t, 0, *o.CalibrationBufferS)
	assert.Nil(t, o.SamplingRateHz)
	assert.Equal(t, "parquet", o.Format)
}

func TestParseFlags_Errors(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseFlags([]string{"-location", "l.csv"}, &stderr)
	assert.Error(t, err)
	assert.Contains(t, stderr.String(), "Usage: process-logs")

	_, err = parseFlags([]string{"-order", "two"}, &stderr)
	assert.Error(t, err)
}

func TestOptionsParams(t *testing.T) {
	cfg := config.DefaultPipelineConfig()
	cutoff := 1.0
	buffer := 0
	o := Options{CutoffHz: &cutoff, CalibrationBufferS: &buffer}

	want := pipeline.DefaultParams()
	want.CutoffHz = 1.0
	want.CalibrationBufferS = 0
	if diff := cmp.Diff(want, o.params(cfg)); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
}

func newFixtureFS(t *testing.T) *fsutil.MemoryFileSystem {
	t.Helper()
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("Location.csv", testutil.LocationCSV(11), 0o644))
	require.NoError(t, fsys.WriteFile("Accelerometer.csv", testutil.AccelerometerCSV(110, 10), 0o644))
	return fsys
}

func newTestRunner() *pipeline.Runner {
	return &pipeline.Runner{
		Clock: timeutil.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)),
		NewID: func() string { return "cli-run" },
	}
}

func fixtureOptions() Options {
	return Options{
		LocationFile:      "Location.csv",
		AccelerometerFile: "Accelerometer.csv",
		OutputDir:         "/out",
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		format   string
		combined string
	}{
		{"", "/out/combined.csv"},
		{"parquet", "/out/combined.parquet"},
	}
	for _, tt := range tests {
		t.Run("format "+tt.format, func(t *testing.T) {
			fsys := newFixtureFS(t)
			o := fixtureOptions()
			o.Format = tt.format

			m, err := run(context.Background(), fsys, newTestRunner(), o)
			require.NoError(t, err)
			assert.Equal(t, "cli-run", m.RunID)
			assert.Equal(t, tt.combined, m.CombinedPath)

			want := []string{tt.combined, "/out/report.html", "/out/result.json", "/out/signal.png"}
			assert.ElementsMatch(t, want, fsys.Files("/out"))

			data, err := fsys.ReadFile(m.ResultPath)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"run_id": "cli-run"`)
		})
	}
}

func TestRun_Errors(t *testing.T) {
	t.Run("invalid cutoff", func(t *testing.T) {
		o := fixtureOptions()
		cutoff := 5.0
		o.CutoffHz = &cutoff
		_, err := run(context.Background(), newFixtureFS(t), newTestRunner(), o)
		assert.ErrorIs(t, err, pipeline.ErrInvalidParameter)
	})

	t.Run("buffer longer than recording", func(t *testing.T) {
		o := fixtureOptions()
		buffer := 60
		o.CalibrationBufferS = &buffer
		_, err := run(context.Background(), newFixtureFS(t), newTestRunner(), o)
		assert.ErrorIs(t, err, pipeline.ErrInsufficientData)
	})

	t.Run("missing input", func(t *testing.T) {
		o := fixtureOptions()
		o.LocationFile = "absent.csv"
		_, err := run(context.Background(), newFixtureFS(t), newTestRunner(), o)
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("unknown format", func(t *testing.T) {
		o := fixtureOptions()
		o.Format = "xlsx"
		fsys := newFixtureFS(t)
		_, err := run(context.Background(), fsys, newTestRunner(), o)
		assert.Error(t, err)
		assert.Empty(t, fsys.Files("/out"))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := run(ctx, newFixtureFS(t), newTestRunner(), fixtureOptions())
		assert.ErrorIs(t, err, context.Canceled)
	})
}
