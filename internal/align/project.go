package align

import (
	"github.com/banshee-data/signal.report/internal/sensorlog"
)

// Projection selects one joined column by origin and source name and gives
// it an output name.
type Projection struct {
	Origin Origin
	Source string
	As     string
}

// Output column names of the default projection.
const (
	ColSecondsElapsedAccel    = "seconds_elapsed_x"
	ColSecondsElapsedLocation = "seconds_elapsed_y"
	ColFilteredY              = "filtered_y"
)

// DefaultProjection is the working schema handed to filtering and
// presentation. seconds_elapsed exists on both sides, so each copy is
// renamed with its side's suffix.
var DefaultProjection = []Projection{
	{Origin: OriginAccelerometer, Source: sensorlog.ColSecondsElapsed, As: ColSecondsElapsedAccel},
	{Origin: OriginAccelerometer, Source: sensorlog.ColX, As: sensorlog.ColX},
	{Origin: OriginAccelerometer, Source: sensorlog.ColY, As: sensorlog.ColY},
	{Origin: OriginAccelerometer, Source: sensorlog.ColZ, As: sensorlog.ColZ},
	{Origin: OriginLocation, Source: sensorlog.ColSecondsElapsed, As: ColSecondsElapsedLocation},
	{Origin: OriginLocation, Source: sensorlog.ColLatitude, As: sensorlog.ColLatitude},
	{Origin: OriginLocation, Source: sensorlog.ColLongitude, As: sensorlog.ColLongitude},
}

// Project builds the narrow table described by allow from the joined rows.
// It fails with ErrSchema when a source column is missing.
func Project(j *Joined, allow []Projection) (*sensorlog.Table, error) {
	cols := make([]*sensorlog.Column, 0, len(allow))
	for _, p := range allow {
		c, err := j.materialize(p.Origin, p.Source, p.As)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return sensorlog.NewTable("combined", cols)
}
