package pipeline

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/signal.report/internal/align"
	"github.com/banshee-data/signal.report/internal/dsp"
	"github.com/banshee-data/signal.report/internal/sensorlog"
	"github.com/banshee-data/signal.report/internal/timeutil"
)

// Request holds both uploads and the parameters of one run. Run never
// modifies it.
type Request struct {
	LocationCSV      []byte
	AccelerometerCSV []byte
	Params           Params
}

// Runner executes requests. The zero value is usable; fields override the
// clock and the run ID source. Columns are always selected with
// align.DefaultProjection, since the result records need all of them.
type Runner struct {
	Clock timeutil.Clock
	NewID func() string
}

// NewRunner returns a Runner on the real clock with UUID run IDs.
func NewRunner() *Runner {
	return &Runner{}
}

var defaultRunner = NewRunner()

// Run executes req on the default runner.
func Run(ctx context.Context, req Request) (*Result, error) {
	return defaultRunner.Run(ctx, req)
}

// PreviewInputs parses both uploads on the default runner.
func PreviewInputs(req Request) (*Inputs, error) {
	return defaultRunner.PreviewInputs(req)
}

func (r *Runner) clock() timeutil.Clock {
	if r.Clock == nil {
		return timeutil.RealClock{}
	}
	return r.Clock
}

func (r *Runner) newID() string {
	if r.NewID == nil {
		return uuid.New().String()
	}
	return r.NewID()
}

// PreviewInputs parses both uploads and returns their previews. It checks
// presence and CSV syntax only.
func (r *Runner) PreviewInputs(req Request) (*Inputs, error) {
	loc, accel, err := r.load(req)
	if err != nil {
		return nil, err
	}
	n := req.Params.previewRows()
	return &Inputs{
		Location:      sensorlog.Preview(loc, n),
		Accelerometer: sensorlog.Preview(accel, n),
	}, nil
}

func (r *Runner) load(req Request) (loc, accel *sensorlog.Table, err error) {
	if len(bytes.TrimSpace(req.LocationCSV)) == 0 {
		return nil, nil, newError(KindInputMissing, StageLoad, "location file is required")
	}
	if len(bytes.TrimSpace(req.AccelerometerCSV)) == 0 {
		return nil, nil, newError(KindInputMissing, StageLoad, "accelerometer file is required")
	}
	opts := sensorlog.DefaultParseOptions()
	loc, err = sensorlog.ParseCSV(sensorlog.StreamLocation.String(), req.LocationCSV, opts)
	if err != nil {
		return nil, nil, classify(StageLoad, err, KindParse)
	}
	accel, err = sensorlog.ParseCSV(sensorlog.StreamAccelerometer.String(), req.AccelerometerCSV, opts)
	if err != nil {
		return nil, nil, classify(StageLoad, err, KindParse)
	}
	tracef("loaded location %v, accelerometer %v", loc.Names(), accel.Names())
	return loc, accel, nil
}

// Run validates req and executes time keying, calibration trimming, the
// join, projection and filtering in that order. It returns either a full
// Result or a single *Error.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	res, err := r.run(ctx, req)
	if err != nil {
		opsf("run failed: %v", err)
		return nil, err
	}
	opsf("run %s: %d joined rows (%d unmatched) in %v [%s]",
		res.RunID, res.Stats.JoinedRows, res.Stats.UnmatchedRows, res.Elapsed, res.Params)
	return res, nil
}

func (r *Runner) run(ctx context.Context, req Request) (*Result, error) {
	clock := r.clock()
	start := clock.Now()
	p := req.Params

	loc, accel, err := r.load(req)
	if err != nil {
		return nil, err
	}
	if err := sensorlog.Validate(loc, sensorlog.StreamLocation); err != nil {
		return nil, classify(StageValidate, err, KindSchema)
	}
	if err := sensorlog.Validate(accel, sensorlog.StreamAccelerometer); err != nil {
		return nil, classify(StageValidate, err, KindSchema)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := checkContext(ctx, StageTimeKey); err != nil {
		return nil, err
	}

	locBuckets, err := buckets(loc, sensorlog.StreamLocation)
	if err != nil {
		return nil, err
	}
	accelBuckets, err := buckets(accel, sensorlog.StreamAccelerometer)
	if err != nil {
		return nil, err
	}

	kept := align.Trim(accelBuckets, p.CalibrationBufferS)
	diagf("trim: kept %d of %d accelerometer rows (buffer %ds)", len(kept), accel.Rows(), p.CalibrationBufferS)
	if len(kept) == 0 {
		return nil, newError(KindInsufficientData, StageTrim,
			"no accelerometer samples remain after the %ds calibration buffer", p.CalibrationBufferS)
	}
	if err := checkContext(ctx, StageJoin); err != nil {
		return nil, err
	}

	joined := align.Join(accel, loc, kept, accelBuckets, locBuckets)
	diagf("join: %d rows, %d without a location fix", joined.Rows(), joined.Unmatched())

	combined, err := align.Project(joined, align.DefaultProjection)
	if err != nil {
		return nil, classify(StageProject, err, KindSchema)
	}
	if err := checkContext(ctx, StageFilter); err != nil {
		return nil, err
	}

	y, err := combined.Floats(sensorlog.ColY)
	if err != nil {
		return nil, classify(StageFilter, err, KindSchema)
	}
	filtered, err := dsp.LowPass(y, p.CutoffHz, float64(p.SamplingRateHz), p.FilterOrder)
	if err != nil {
		return nil, classify(StageFilter, err, KindInsufficientData)
	}
	combined, err = combined.WithColumn(&sensorlog.Column{
		Name:   align.ColFilteredY,
		Kind:   sensorlog.KindFloat,
		Floats: filtered,
	})
	if err != nil {
		return nil, classify(StageFilter, err, KindSchema)
	}

	records, err := buildRecords(combined)
	if err != nil {
		return nil, classify(StageProject, err, KindSchema)
	}
	n := p.previewRows()
	res := &Result{
		RunID:           r.newID(),
		Params:          p,
		StartedAt:       start,
		Location:        sensorlog.Preview(loc, n),
		Accelerometer:   sensorlog.Preview(accel, n),
		CombinedPreview: sensorlog.Preview(combined, n),
		Records:         records,
		Signal:          buildSeries(records),
		Track:           buildTrack(records),
		Combined:        combined,
		Stats: Stats{
			LocationRows:      loc.Rows(),
			AccelerometerRows: accel.Rows(),
			CalibrationRows:   accel.Rows() - len(kept),
			JoinedRows:        joined.Rows(),
			UnmatchedRows:     joined.Unmatched(),
		},
	}
	res.Elapsed = clock.Since(start)
	diagf("run %s finished in %v", res.RunID, res.Elapsed)
	return res, nil
}

func buckets(t *sensorlog.Table, s sensorlog.Stream) ([]int64, error) {
	elapsed, err := t.Floats(sensorlog.ColSecondsElapsed)
	if err != nil {
		return nil, classify(StageTimeKey, err, KindSchema)
	}
	b, err := align.TimeBuckets(elapsed)
	if err != nil {
		return nil, classify(StageTimeKey, fmt.Errorf("%s %s: %w", s, sensorlog.ColSecondsElapsed, err), KindInvalidInput)
	}
	if len(b) > 0 {
		tracef("%s buckets %d..%d over %d rows", s, b[0], b[len(b)-1], len(b))
	}
	return b, nil
}

func checkContext(ctx context.Context, next Stage) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run abandoned before %s: %w", next, err)
	}
	return nil
}

var recordColumns = []string{
	align.ColSecondsElapsedAccel,
	sensorlog.ColX,
	sensorlog.ColY,
	sensorlog.ColZ,
	align.ColSecondsElapsedLocation,
	sensorlog.ColLatitude,
	sensorlog.ColLongitude,
	align.ColFilteredY,
}

func buildRecords(t *sensorlog.Table) ([]Record, error) {
	cols := make([][]float64, len(recordColumns))
	for i, name := range recordColumns {
		v, err := t.Floats(name)
		if err != nil {
			return nil, err
		}
		cols[i] = v
	}
	out := make([]Record, t.Rows())
	for i := range out {
		out[i] = Record{
			SecondsElapsedX: Float(cols[0][i]),
			X:               Float(cols[1][i]),
			Y:               Float(cols[2][i]),
			Z:               Float(cols[3][i]),
			SecondsElapsedY: Float(cols[4][i]),
			Latitude:        Float(cols[5][i]),
			Longitude:       Float(cols[6][i]),
			FilteredY:       Float(cols[7][i]),
		}
	}
	return out, nil
}

func buildSeries(records []Record) Series {
	s := Series{
		Time:     make([]float64, len(records)),
		Original: make([]float64, len(records)),
		Filtered: make([]float64, len(records)),
	}
	for i, rec := range records {
		s.Time[i] = float64(rec.SecondsElapsedX)
		s.Original[i] = float64(rec.Y)
		s.Filtered[i] = float64(rec.FilteredY)
	}
	return s
}

func buildTrack(records []Record) Track {
	points := make([]TrackPoint, 0, len(records))
	for _, rec := range records {
		if !rec.Matched() {
			continue
		}
		points = append(points, TrackPoint{
			Latitude:       float64(rec.Latitude),
			Longitude:      float64(rec.Longitude),
			X:              float64(rec.X),
			Y:              float64(rec.Y),
			Z:              float64(rec.Z),
			SecondsElapsed: float64(rec.SecondsElapsedX),
		})
	}
	return Track{Points: points, View: ComputeView(points)}
}
