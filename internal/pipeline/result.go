package pipeline

import (
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/signal.report/internal/sensorlog"
)

// Float is a float64 that encodes NaN and infinities as JSON null, so
// unmatched location fields survive a JSON round trip.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Record is one row of the combined table.
type Record struct {
	SecondsElapsedX Float `json:"seconds_elapsed_x"`
	X               Float `json:"x"`
	Y               Float `json:"y"`
	Z               Float `json:"z"`
	SecondsElapsedY Float `json:"seconds_elapsed_y"`
	Latitude        Float `json:"latitude"`
	Longitude       Float `json:"longitude"`
	FilteredY       Float `json:"filtered_y"`
}

// Matched reports whether the record carries a location fix.
func (r Record) Matched() bool {
	return !math.IsNaN(float64(r.Latitude)) && !math.IsNaN(float64(r.Longitude))
}

// Series is the original and filtered y channel keyed on accelerometer time.
type Series struct {
	Time     []float64 `json:"time"`
	Original []float64 `json:"original"`
	Filtered []float64 `json:"filtered"`
}

// TrackPoint is one matched record placed on the map.
type TrackPoint struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Z              float64 `json:"z"`
	SecondsElapsed float64 `json:"seconds_elapsed_x"`
}

// MapView frames the track: the mean position plus the bounding box and a
// web-map zoom level that fits it.
type MapView struct {
	CenterLatitude  float64 `json:"center_latitude"`
	CenterLongitude float64 `json:"center_longitude"`
	MinLatitude     float64 `json:"min_latitude"`
	MaxLatitude     float64 `json:"max_latitude"`
	MinLongitude    float64 `json:"min_longitude"`
	MaxLongitude    float64 `json:"max_longitude"`
	Zoom            int     `json:"zoom"`
}

// Track is the map layer of a result.
type Track struct {
	Points []TrackPoint `json:"points"`
	View   *MapView     `json:"view,omitempty"`
}

// Stats counts rows through each stage.
type Stats struct {
	LocationRows      int `json:"location_rows"`
	AccelerometerRows int `json:"accelerometer_rows"`
	CalibrationRows   int `json:"calibration_rows"`
	JoinedRows        int `json:"joined_rows"`
	UnmatchedRows     int `json:"unmatched_rows"`
}

// Result is everything one run produces. It is built fresh per request and
// never shared between runs.
type Result struct {
	RunID           string                 `json:"run_id"`
	Params          Params                 `json:"params"`
	StartedAt       time.Time              `json:"started_at"`
	Elapsed         time.Duration          `json:"elapsed_ns"`
	Location        sensorlog.TablePreview `json:"location"`
	Accelerometer   sensorlog.TablePreview `json:"accelerometer"`
	CombinedPreview sensorlog.TablePreview `json:"combined"`
	Records         []Record               `json:"records"`
	Signal          Series                 `json:"signal"`
	Track           Track                  `json:"track"`
	Stats           Stats                  `json:"stats"`

	// Combined is the projected table with filtered_y appended.
	Combined *sensorlog.Table `json:"-"`
}

// Inputs is the preview of both uploads without running the pipeline.
type Inputs struct {
	Location      sensorlog.TablePreview `json:"location"`
	Accelerometer sensorlog.TablePreview `json:"accelerometer"`
}

// maxZoom is used when every point sits in (nearly) the same place.
const maxZoom = 21

// ComputeView frames the given points. It returns nil when there are none.
func ComputeView(points []TrackPoint) *MapView {
	if len(points) == 0 {
		return nil
	}
	lats := make([]float64, len(points))
	lons := make([]float64, len(points))
	for i, p := range points {
		lats[i] = p.Latitude
		lons[i] = p.Longitude
	}
	v := &MapView{
		CenterLatitude:  stat.Mean(lats, nil),
		CenterLongitude: stat.Mean(lons, nil),
		MinLatitude:     floats.Min(lats),
		MaxLatitude:     floats.Max(lats),
		MinLongitude:    floats.Min(lons),
		MaxLongitude:    floats.Max(lons),
	}
	v.Zoom = zoomLevel(v.MaxLatitude-v.MinLatitude, v.MaxLongitude-v.MinLongitude)
	return v
}

// zoomLevel picks the web-map zoom at which the larger span of the box
// covers one tile width.
func zoomLevel(latSpan, lonSpan float64) int {
	span := math.Max(latSpan, lonSpan)
	if span < 360/math.Pow(2, 20) {
		return maxZoom
	}
	z := int(math.Log2(360) - math.Log2(span))
	if z < 1 {
		return 1
	}
	return z
}
