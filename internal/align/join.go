package align

import (
	"math"

	"github.com/banshee-data/signal.report/internal/sensorlog"
)

// Origin says which side of the join a column came from.
type Origin int

const (
	OriginKey Origin = iota
	OriginAccelerometer
	OriginLocation
)

func (o Origin) String() string {
	switch o {
	case OriginKey:
		return "key"
	case OriginAccelerometer:
		return "accelerometer"
	case OriginLocation:
		return "location"
	default:
		return "unknown"
	}
}

// Suffixes given to column names present on both sides of the join.
const (
	AccelerometerSuffix = "_x"
	LocationSuffix      = "_y"
)

// NoMatch marks a joined row with no location sample in its bucket.
const NoMatch = -1

// Match is one output row of the join.
type Match struct {
	AccelRow    int
	LocationRow int // NoMatch when the bucket has no location sample
	Bucket      int64
}

// Matched reports whether the row carries location fields.
func (m Match) Matched() bool { return m.LocationRow != NoMatch }

// JoinedColumn names a column of the joined schema and where it comes from.
type JoinedColumn struct {
	Name   string
	Origin Origin
	Source string
}

// Joined is the result of Join. Rows are held as index pairs into the two
// source tables and materialised on demand.
type Joined struct {
	Accel    *sensorlog.Table
	Location *sensorlog.Table
	Matches  []Match
	Columns  []JoinedColumn
}

// Rows returns the number of joined rows.
func (j *Joined) Rows() int { return len(j.Matches) }

// Unmatched counts rows without a location sample.
func (j *Joined) Unmatched() int {
	n := 0
	for _, m := range j.Matches {
		if !m.Matched() {
			n++
		}
	}
	return n
}

// Join left-joins the selected accelerometer rows onto the location rows
// sharing their bucket. accelBuckets and locationBuckets are indexed by
// source row; accelRows picks and orders the accelerometer rows to keep.
//
// Every accelerometer row yields one output row per matching location row,
// in location order, or a single unmatched row when nothing matches. The
// output never drops or merges accelerometer rows.
func Join(accel, location *sensorlog.Table, accelRows []int, accelBuckets, locationBuckets []int64) *Joined {
	byBucket := make(map[int64][]int)
	for i, b := range locationBuckets {
		byBucket[b] = append(byBucket[b], i)
	}

	matches := make([]Match, 0, len(accelRows))
	for _, row := range accelRows {
		b := accelBuckets[row]
		locs := byBucket[b]
		if len(locs) == 0 {
			matches = append(matches, Match{AccelRow: row, LocationRow: NoMatch, Bucket: b})
			continue
		}
		for _, loc := range locs {
			matches = append(matches, Match{AccelRow: row, LocationRow: loc, Bucket: b})
		}
	}

	return &Joined{
		Accel:    accel,
		Location: location,
		Matches:  matches,
		Columns:  joinedColumns(accel, location),
	}
}

// joinedColumns lays out accelerometer columns, then the key, then location
// columns. Names that appear on both sides get side suffixes.
func joinedColumns(accel, location *sensorlog.Table) []JoinedColumn {
	cols := make([]JoinedColumn, 0, accel.NumColumns()+location.NumColumns()+1)
	for _, c := range accel.Columns {
		name := c.Name
		if location.Has(name) {
			name += AccelerometerSuffix
		}
		cols = append(cols, JoinedColumn{Name: name, Origin: OriginAccelerometer, Source: c.Name})
	}
	cols = append(cols, JoinedColumn{Name: KeyColumn, Origin: OriginKey, Source: KeyColumn})
	for _, c := range location.Columns {
		name := c.Name
		if accel.Has(name) {
			name += LocationSuffix
		}
		cols = append(cols, JoinedColumn{Name: name, Origin: OriginLocation, Source: c.Name})
	}
	return cols
}

// Table materialises every joined column.
func (j *Joined) Table() (*sensorlog.Table, error) {
	cols := make([]*sensorlog.Column, 0, len(j.Columns))
	for _, jc := range j.Columns {
		c, err := j.materialize(jc.Origin, jc.Source, jc.Name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return sensorlog.NewTable("joined", cols)
}

// materialize builds one output column. Location cells of unmatched rows
// are NaN (numeric) or empty (text); an integer location column with any
// such gap widens to float.
func (j *Joined) materialize(origin Origin, source, name string) (*sensorlog.Column, error) {
	n := len(j.Matches)
	if origin == OriginKey {
		values := make([]float64, n)
		for i, m := range j.Matches {
			values[i] = float64(m.Bucket)
		}
		return &sensorlog.Column{Name: name, Kind: sensorlog.KindInt, Floats: values}, nil
	}

	src := j.Accel
	if origin == OriginLocation {
		src = j.Location
	}
	sc, ok := src.Column(source)
	if !ok {
		return nil, &missingColumnError{origin: origin, source: source}
	}

	row := func(m Match) int {
		if origin == OriginLocation {
			return m.LocationRow
		}
		return m.AccelRow
	}

	if sc.Kind == sensorlog.KindText {
		text := make([]string, n)
		for i, m := range j.Matches {
			if r := row(m); r != NoMatch {
				text[i] = sc.Text[r]
			}
		}
		return &sensorlog.Column{Name: name, Kind: sensorlog.KindText, Text: text}, nil
	}

	kind := sc.Kind
	values := make([]float64, n)
	for i, m := range j.Matches {
		r := row(m)
		if r == NoMatch {
			values[i] = math.NaN()
			kind = sensorlog.KindFloat
			continue
		}
		values[i] = sc.Floats[r]
	}
	return &sensorlog.Column{Name: name, Kind: kind, Floats: values}, nil
}

type missingColumnError struct {
	origin Origin
	source string
}

func (e *missingColumnError) Error() string {
	return e.origin.String() + " column " + `"` + e.source + `"` + " not in joined table"
}

func (e *missingColumnError) Unwrap() error { return ErrSchema }
