// Package align lines up the accelerometer and location streams on whole
// second buckets: it derives the bucket keys, drops the calibration window,
// joins the streams and projects the joined rows onto a fixed schema.
package align

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidInput reports an elapsed time that cannot be bucketed.
	ErrInvalidInput = errors.New("invalid elapsed time")
	// ErrSchema reports a projection source column absent from the join.
	ErrSchema = errors.New("missing source column")
)

// KeyColumn is the name the join gives its bucket column.
const KeyColumn = "timestamp_int"

// TimeBucket maps an elapsed time in seconds to its whole-second bucket.
// It uses floor rather than truncation so negative times (clock skew at the
// start of a recording) fall into the bucket below instead of into bucket 0.
func TimeBucket(elapsed float64) (int64, error) {
	if math.IsNaN(elapsed) || math.IsInf(elapsed, 0) {
		return 0, fmt.Errorf("elapsed time %v: %w", elapsed, ErrInvalidInput)
	}
	f := math.Floor(elapsed)
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("elapsed time %v out of range: %w", elapsed, ErrInvalidInput)
	}
	return int64(f), nil
}

// TimeBuckets applies TimeBucket to every value, naming the first bad row.
func TimeBuckets(values []float64) ([]int64, error) {
	out := make([]int64, len(values))
	for i, v := range values {
		b, err := TimeBucket(v)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}
