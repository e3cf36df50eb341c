package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/signal.report/internal/align"
	"github.com/banshee-data/signal.report/internal/dsp"
	"github.com/banshee-data/signal.report/internal/sensorlog"
	"github.com/banshee-data/signal.report/internal/testutil"
	"github.com/banshee-data/signal.report/internal/timeutil"
)

func testRunner() (*Runner, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	clock.SetStep(10 * time.Millisecond)
	return &Runner{
		Clock: clock,
		NewID: func() string { return "run-1" },
	}, clock
}

func baseRequest() Request {
	return Request{
		LocationCSV:      testutil.LocationCSV(11),
		AccelerometerCSV: testutil.AccelerometerCSV(110, 10),
		Params:           DefaultParams(),
	}
}

func TestRun_JoinsTrimmedRecording(t *testing.T) {
	r, _ := testRunner()
	res, err := r.Run(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 10*time.Millisecond, res.Elapsed)
	require.Len(t, res.Records, 60)
	assert.Equal(t, Stats{
		LocationRows:      11,
		AccelerometerRows: 110,
		CalibrationRows:   50,
		JoinedRows:        60,
		UnmatchedRows:     0,
	}, res.Stats)

	for i, rec := range res.Records {
		bucket := math.Floor(float64(rec.SecondsElapsedX))
		assert.GreaterOrEqual(t, bucket, 5.0, "record %d", i)
		assert.InDelta(t, bucket+0.25, float64(rec.SecondsElapsedY), 1e-9, "record %d joined to its own second", i)
		assert.True(t, rec.Matched())
		assert.False(t, math.IsNaN(float64(rec.FilteredY)))
	}
	assert.InDelta(t, 5.0, float64(res.Records[0].SecondsElapsedX), 1e-9)
	assert.InDelta(t, 10.9, float64(res.Records[59].SecondsElapsedX), 1e-9)

	want := []string{
		"seconds_elapsed_x", "x", "y", "z",
		"seconds_elapsed_y", "latitude", "longitude", "filtered_y",
	}
	if diff := cmp.Diff(want, res.Combined.Names()); diff != "" {
		t.Errorf("combined columns mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, want, res.CombinedPreview.Header)
	assert.Len(t, res.CombinedPreview.Head, sensorlog.DefaultPreviewRows)
	assert.Equal(t, 11, res.Location.Rows)
	assert.Equal(t, 110, res.Accelerometer.Rows)
	assert.NotContains(t, res.Accelerometer.Header, sensorlog.ColTime)
}

func TestRun_SeriesAndTrack(t *testing.T) {
	r, _ := testRunner()
	res, err := r.Run(context.Background(), baseRequest())
	require.NoError(t, err)

	s := res.Signal
	require.Len(t, s.Time, 60)
	require.Len(t, s.Original, 60)
	require.Len(t, s.Filtered, 60)
	for i := range s.Time {
		assert.Equal(t, float64(res.Records[i].SecondsElapsedX), s.Time[i])
		assert.Equal(t, float64(res.Records[i].Y), s.Original[i])
	}

	// The 4 Hz ripple sits above the 2 Hz cutoff, so filtering reduces the
	// sample-to-sample roughness of the series.
	assert.Less(t, roughness(s.Filtered), roughness(s.Original))

	require.Len(t, res.Track.Points, 60)
	require.NotNil(t, res.Track.View)
	v := res.Track.View
	assert.InDelta(t, testutil.BaseLatitude+5*5e-5, v.MinLatitude, 1e-9)
	assert.InDelta(t, testutil.BaseLatitude+10*5e-5, v.MaxLatitude, 1e-9)
	assert.Greater(t, v.CenterLatitude, v.MinLatitude)
	assert.Less(t, v.CenterLatitude, v.MaxLatitude)
	assert.GreaterOrEqual(t, v.Zoom, 1)
}

func roughness(v []float64) float64 {
	var sum float64
	for i := 1; i < len(v); i++ {
		sum += math.Abs(v[i] - v[i-1])
	}
	return sum
}

func TestRun_UnmatchedRowsKeepAccelerometerData(t *testing.T) {
	r, _ := testRunner()
	req := baseRequest()
	req.LocationCSV = testutil.LocationCSV(8)

	res, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Records, 60)
	assert.Equal(t, 30, res.Stats.UnmatchedRows)
	assert.Len(t, res.Track.Points, 30)

	last := res.Records[59]
	assert.False(t, last.Matched())
	assert.True(t, math.IsNaN(float64(last.Latitude)))
	assert.False(t, math.IsNaN(float64(last.Y)))
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, req *Request)
		kind   Kind
		stage  Stage
		target error
	}{
		{
			name:   "missing location",
			mutate: func(_ *testing.T, req *Request) { req.LocationCSV = nil },
			kind:   KindInputMissing,
			stage:  StageLoad,
			target: ErrInputMissing,
		},
		{
			name:   "blank accelerometer",
			mutate: func(_ *testing.T, req *Request) { req.AccelerometerCSV = []byte("  \n") },
			kind:   KindInputMissing,
			stage:  StageLoad,
			target: ErrInputMissing,
		},
		{
			name: "malformed csv",
			mutate: func(_ *testing.T, req *Request) {
				req.LocationCSV = []byte("seconds_elapsed,latitude,longitude\n1,2\n")
			},
			kind:   KindParse,
			stage:  StageLoad,
			target: sensorlog.ErrParse,
		},
		{
			name:   "cutoff at nyquist",
			mutate: func(_ *testing.T, req *Request) { req.Params.CutoffHz = 5 },
			kind:   KindInvalidParameter,
			stage:  StageValidate,
			target: dsp.ErrInvalidParameter,
		},
		{
			name:   "order above maximum",
			mutate: func(_ *testing.T, req *Request) { req.Params.FilterOrder = dsp.MaxOrder + 1 },
			kind:   KindInvalidParameter,
			stage:  StageValidate,
			target: ErrInvalidParameter,
		},
		{
			name: "accelerometer without seconds_elapsed",
			mutate: func(t *testing.T, req *Request) {
				req.AccelerometerCSV = testutil.WithoutColumn(t, req.AccelerometerCSV, sensorlog.ColSecondsElapsed)
			},
			kind:   KindSchema,
			stage:  StageValidate,
			target: sensorlog.ErrSchema,
		},
		{
			name: "location without latitude",
			mutate: func(t *testing.T, req *Request) {
				req.LocationCSV = testutil.WithoutColumn(t, req.LocationCSV, sensorlog.ColLatitude)
			},
			kind:   KindSchema,
			stage:  StageValidate,
			target: ErrSchema,
		},
		{
			name:   "buffer longer than recording",
			mutate: func(_ *testing.T, req *Request) { req.Params.CalibrationBufferS = 60 },
			kind:   KindInsufficientData,
			stage:  StageTrim,
			target: ErrInsufficientData,
		},
		{
			name: "too few samples to filter",
			mutate: func(_ *testing.T, req *Request) {
				req.AccelerometerCSV = testutil.AccelerometerCSV(55, 10)
			},
			kind:   KindInsufficientData,
			stage:  StageFilter,
			target: dsp.ErrInsufficientData,
		},
		{
			name: "missing elapsed time",
			mutate: func(_ *testing.T, req *Request) {
				req.LocationCSV = append(bytes.Clone(req.LocationCSV), []byte("1,,0,0,0,0,0,0,0,-0.1,51.5\n")...)
			},
			kind:   KindInvalidInput,
			stage:  StageTimeKey,
			target: align.ErrInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := testRunner()
			req := baseRequest()
			tt.mutate(t, &req)

			res, err := r.Run(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, res)

			var pe *Error
			require.True(t, errors.As(err, &pe), "want *Error, got %T", err)
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.stage, pe.Stage)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestRun_ErrorSentinelsDoNotCrossMatch(t *testing.T) {
	r, _ := testRunner()
	req := baseRequest()
	req.Params.CalibrationBufferS = 60

	_, err := r.Run(context.Background(), req)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.NotErrorIs(t, err, ErrSchema)
	assert.NotErrorIs(t, err, ErrInvalidParameter)
}

func TestRun_Cancelled(t *testing.T) {
	r, _ := testRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, baseRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Kind(""), KindOf(err))
}

func TestRun_RequestUntouched(t *testing.T) {
	r, _ := testRunner()
	req := baseRequest()
	loc := bytes.Clone(req.LocationCSV)
	accel := bytes.Clone(req.AccelerometerCSV)

	_, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, loc, req.LocationCSV)
	assert.Equal(t, accel, req.AccelerometerCSV)
	assert.Equal(t, DefaultParams(), req.Params)
}

func TestRun_DefaultRunnerIssuesRunIDs(t *testing.T) {
	a, err := Run(context.Background(), baseRequest())
	require.NoError(t, err)
	b, err := Run(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, a.RunID)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestPreviewInputs(t *testing.T) {
	req := baseRequest()
	req.Params.PreviewRows = 3

	in, err := PreviewInputs(req)
	require.NoError(t, err)
	assert.Equal(t, "location", in.Location.Name)
	assert.Equal(t, 11, in.Location.Rows)
	assert.Len(t, in.Location.Head, 3)
	assert.Equal(t, 110, in.Accelerometer.Rows)
	assert.Equal(t, []string{"seconds_elapsed", "z", "y", "x"}, in.Accelerometer.Header)

	_, err = PreviewInputs(Request{LocationCSV: req.LocationCSV})
	assert.ErrorIs(t, err, ErrInputMissing)
}

func TestResult_JSON(t *testing.T) {
	r, _ := testRunner()
	req := baseRequest()
	req.LocationCSV = testutil.LocationCSV(8)
	res, err := r.Run(context.Background(), req)
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"latitude":null`))

	var back struct {
		Records []Record `json:"records"`
		Stats   Stats    `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Records, 60)
	assert.Equal(t, res.Stats, back.Stats)
	assert.True(t, math.IsNaN(float64(back.Records[59].Latitude)))
	assert.Equal(t, res.Records[0].Y, back.Records[0].Y)
}

func TestParams_Validate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"zero sampling rate", func(p *Params) { p.SamplingRateHz = 0 }},
		{"zero cutoff", func(p *Params) { p.CutoffHz = 0 }},
		{"nan cutoff", func(p *Params) { p.CutoffHz = math.NaN() }},
		{"cutoff above nyquist", func(p *Params) { p.CutoffHz = 7 }},
		{"zero order", func(p *Params) { p.FilterOrder = 0 }},
		{"negative buffer", func(p *Params) { p.CalibrationBufferS = -1 }},
		{"negative preview rows", func(p *Params) { p.PreviewRows = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			assert.ErrorIs(t, err, ErrInvalidParameter)
			assert.Equal(t, KindInvalidParameter, KindOf(err))
		})
	}
}

func TestError_Message(t *testing.T) {
	err := newError(KindSchema, StageValidate, "location data is missing column %q", "latitude")
	assert.Equal(t, `SchemaError at validate: location data is missing column "latitude"`, err.Error())
	assert.Equal(t, `location data is missing column "latitude"`, err.Message())
	assert.Equal(t, "InputMissing", ErrInputMissing.Error())
}

func TestComputeView(t *testing.T) {
	assert.Nil(t, ComputeView(nil))

	v := ComputeView([]TrackPoint{{Latitude: 51.5, Longitude: -0.1}})
	require.NotNil(t, v)
	assert.Equal(t, 21, v.Zoom)
	assert.Equal(t, 51.5, v.CenterLatitude)

	v = ComputeView([]TrackPoint{
		{Latitude: 0, Longitude: -180},
		{Latitude: 10, Longitude: 180},
	})
	assert.Equal(t, 1, v.Zoom)
	assert.Equal(t, 5.0, v.CenterLatitude)
	assert.Equal(t, 0.0, v.CenterLongitude)
}

func TestSetLogWriters(t *testing.T) {
	var ops, diag bytes.Buffer
	SetLogWriters(&ops, &diag, nil)
	defer SetLogWriters(nil, nil, nil)

	r, _ := testRunner()
	_, err := r.Run(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Contains(t, ops.String(), "run run-1: 60 joined rows")
	assert.Contains(t, diag.String(), "trim: kept 60 of 110")
}
