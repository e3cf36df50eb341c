package sensorlog

import (
	"errors"
	"fmt"
)

// ErrSchema marks a table whose columns do not match the export format.
var ErrSchema = errors.New("schema mismatch")

// Column names written by the Sensor Logger app.
const (
	ColTime           = "time"
	ColSecondsElapsed = "seconds_elapsed"
	ColLatitude       = "latitude"
	ColLongitude      = "longitude"
	ColX              = "x"
	ColY              = "y"
	ColZ              = "z"
)

// Stream identifies which export a table came from.
type Stream int

const (
	StreamLocation Stream = iota
	StreamAccelerometer
)

var streamNames = map[Stream]string{
	StreamLocation:      "location",
	StreamAccelerometer: "accelerometer",
}

func (s Stream) String() string {
	if n, ok := streamNames[s]; ok {
		return n
	}
	return "unknown"
}

// RequiredColumns lists the numeric columns each stream must carry.
var RequiredColumns = map[Stream][]string{
	StreamLocation:      {ColSecondsElapsed, ColLatitude, ColLongitude},
	StreamAccelerometer: {ColSecondsElapsed, ColX, ColY, ColZ},
}

// minColumns is the narrowest table that can still be a time series.
const minColumns = 2

// Validate checks t against the stream's required columns. The time-series
// check runs first so that a table without seconds_elapsed reports that
// rather than some other missing column.
func Validate(t *Table, s Stream) error {
	if !t.Has(ColSecondsElapsed) || t.NumColumns() < minColumns {
		return fmt.Errorf("%s data must be time-series data with %q and at least %d columns: %w",
			s, ColSecondsElapsed, minColumns, ErrSchema)
	}
	for _, name := range RequiredColumns[s] {
		c, ok := t.Column(name)
		if !ok {
			return fmt.Errorf("%s data is missing column %q: %w", s, name, ErrSchema)
		}
		if !c.Kind.Numeric() {
			return fmt.Errorf("%s column %q must be numeric, found %s: %w", s, name, c.Kind, ErrSchema)
		}
	}
	return nil
}
