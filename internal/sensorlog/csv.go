package sensorlog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrParse marks input that could not be read as a delimited table.
var ErrParse = errors.New("malformed csv")

// ParseOptions controls how raw exports are loaded.
type ParseOptions struct {
	// Drop lists columns discarded on load. Sensor Logger writes an absolute
	// nanosecond "time" column next to seconds_elapsed; it plays no part in
	// alignment.
	Drop  []string
	Comma rune
}

// DefaultParseOptions returns the options used for Sensor Logger exports.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{
		Drop:  []string{ColTime},
		Comma: ',',
	}
}

// ParseCSV reads a header-first CSV payload into a Table, inferring each
// column's kind from its non-empty cells.
func ParseCSV(name string, data []byte, opts ParseOptions) (*Table, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%s: empty file: %w", name, ErrParse)
	}
	return ReadCSV(name, bytes.NewReader(data), opts)
}

// ReadCSV is ParseCSV over a reader.
func ReadCSV(name string, r io.Reader, opts ParseOptions) (*Table, error) {
	reader := csv.NewReader(r)
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: no header row: %w", name, ErrParse)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %v: %w", name, err, ErrParse)
	}

	drop := make(map[string]bool, len(opts.Drop))
	for _, d := range opts.Drop {
		drop[d] = true
	}

	keep := make([]int, 0, len(header))
	names := make([]string, 0, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.Trim(h, "\""))
		if h == "" {
			return nil, fmt.Errorf("%s: header column %d is empty: %w", name, i+1, ErrParse)
		}
		if seen[h] {
			return nil, fmt.Errorf("%s: duplicate header column %q: %w", name, h, ErrParse)
		}
		seen[h] = true
		if drop[h] {
			continue
		}
		keep = append(keep, i)
		names = append(names, h)
	}

	raw := make([][]string, len(keep))
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %v: %w", name, line, err, ErrParse)
		}
		for j, idx := range keep {
			raw[j] = append(raw[j], strings.TrimSpace(record[idx]))
		}
	}

	columns := make([]*Column, len(keep))
	for j := range keep {
		columns[j] = inferColumn(names[j], raw[j])
	}
	return NewTable(name, columns)
}

// inferColumn picks int64 when every present cell is an integer and no cell
// is missing, float64 when every present cell is numeric, and text otherwise.
func inferColumn(name string, cells []string) *Column {
	allInt, allFloat, missing := true, true, false
	for _, s := range cells {
		if s == "" {
			missing = true
			continue
		}
		if allInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				allInt = false
			}
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			allFloat = false
			break
		}
	}

	if !allFloat {
		text := make([]string, len(cells))
		copy(text, cells)
		return &Column{Name: name, Kind: KindText, Text: text}
	}

	kind := KindFloat
	if allInt && !missing && len(cells) > 0 {
		kind = KindInt
	}
	values := make([]float64, len(cells))
	for i, s := range cells {
		if s == "" {
			values[i] = math.NaN()
			continue
		}
		v, _ := strconv.ParseFloat(s, 64)
		values[i] = v
	}
	return &Column{Name: name, Kind: kind, Floats: values}
}
