// Package testutil provides shared test utilities and fixtures: synthetic
// Sensor Logger exports and helpers for exercising the upload endpoints.
package testutil

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
)

// Fixture origin: a short walk along the Thames.
const (
	BaseLatitude  = 51.5072
	BaseLongitude = -0.1276
	epochNanos    = int64(1717243200000000000)
)

// LocationCSV builds a Location.csv export with one fix per second. Row i
// has seconds_elapsed i+0.25, so it falls in bucket i.
func LocationCSV(rows int) []byte {
	var b strings.Builder
	b.WriteString("time,seconds_elapsed,bearingAccuracy,speedAccuracy,verticalAccuracy,horizontalAccuracy,speed,bearing,altitude,longitude,latitude\n")
	for i := 0; i < rows; i++ {
		t := float64(i) + 0.25
		fmt.Fprintf(&b, "%d,%.3f,0,0.5,1.2,4.8,1.4,90,12.5,%.6f,%.6f\n",
			epochNanos+int64(t*1e9), t,
			BaseLongitude+float64(i)*1e-4, BaseLatitude+float64(i)*5e-5)
	}
	return []byte(b.String())
}

// AccelerometerCSV builds an Accelerometer.csv export sampled at hz. Row i
// has seconds_elapsed i/hz. The y channel is a slow 0.5 Hz swing plus a
// 4 Hz ripple; x and z are small constant offsets.
func AccelerometerCSV(rows, hz int) []byte {
	var b strings.Builder
	b.WriteString("time,seconds_elapsed,z,y,x\n")
	for i := 0; i < rows; i++ {
		t := float64(i) / float64(hz)
		y := math.Sin(2*math.Pi*0.5*t) + 0.3*math.Sin(2*math.Pi*4*t)
		fmt.Fprintf(&b, "%d,%.3f,%.6f,%.6f,%.6f\n", epochNanos+int64(t*1e9), t, 0.02, y, -0.01)
	}
	return []byte(b.String())
}

// WithoutColumn removes a column from a CSV payload.
func WithoutColumn(t testing.TB, data []byte, name string) []byte {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if len(records) == 0 {
		return data
	}
	idx := slices.Index(records[0], name)
	if idx < 0 {
		t.Fatalf("fixture has no column %q", name)
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, rec := range records {
		if err := w.Write(slices.Delete(slices.Clone(rec), idx, idx+1)); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	w.Flush()
	return buf.Bytes()
}

// Upload is a multipart upload body.
type Upload struct {
	Files  map[string][]byte
	Fields map[string]string
}

// NewUploadRequest builds a multipart POST request carrying the upload.
func NewUploadRequest(t testing.TB, path string, u Upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, field := range sortedKeys(u.Files) {
		fw, err := mw.CreateFormFile(field, field+".csv")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(u.Files[field]); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for _, field := range sortedKeys(u.Fields) {
		if err := mw.WriteField(field, u.Fields[field]); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
