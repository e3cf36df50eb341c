package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/banshee-data/signal.report/internal/fsutil"
	"github.com/banshee-data/signal.report/internal/pipeline"
	"github.com/banshee-data/signal.report/internal/sensorlog"
	"github.com/banshee-data/signal.report/internal/testutil"
)

func runFixture(t *testing.T, locationRows int) *pipeline.Result {
	t.Helper()
	r := &pipeline.Runner{NewID: func() string { return "export-test" }}
	res, err := r.Run(context.Background(), pipeline.Request{
		LocationCSV:      testutil.LocationCSV(locationRows),
		AccelerometerCSV: testutil.AccelerometerCSV(110, 10),
		Params:           pipeline.DefaultParams(),
	})
	require.NoError(t, err)
	return res
}

func TestWriteCSV(t *testing.T) {
	tbl, err := sensorlog.NewTable("t", []*sensorlog.Column{
		{Name: "n", Kind: sensorlog.KindInt, Floats: []float64{1, 2}},
		{Name: "v", Kind: sensorlog.KindFloat, Floats: []float64{0.5, math.NaN()}},
		{Name: "s", Kind: sensorlog.KindText, Text: []string{"a", "b,c"}},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	assert.Equal(t, "n,v,s\n1,0.5,a\n2,,\"b,c\"\n", buf.String())
}

func TestWriteCSV_Combined(t *testing.T) {
	res := runFixture(t, 8)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, res.Combined))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 61)

	want := []string{"seconds_elapsed_x", "x", "y", "z", "seconds_elapsed_y", "latitude", "longitude", "filtered_y"}
	if diff := cmp.Diff(want, records[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "", records[60][5], "unmatched latitude is empty")
	assert.NotEqual(t, "", records[1][5])
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatCSV},
		{"csv", FormatCSV},
		{" Parquet ", FormatParquet},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestMarshalParquet_RoundTrip(t *testing.T) {
	res := runFixture(t, 8)

	data, err := MarshalParquet(res)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("PAR1")))

	pr, err := reader.NewParquetReader(parquetbuffer.NewBufferFileFromBytes(data), new(combinedParquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	require.Equal(t, len(res.Records), n)
	rows := make([]combinedParquetRow, n)
	require.NoError(t, pr.Read(&rows))

	assert.Equal(t, "export-test", rows[0].RunID)
	assert.True(t, rows[0].Matched)
	assert.Equal(t, float64(res.Records[0].Y), rows[0].Y)
	assert.Equal(t, float64(res.Records[0].FilteredY), rows[0].FilteredY)
	assert.False(t, rows[n-1].Matched)
	assert.True(t, math.IsNaN(rows[n-1].Latitude))
}

func TestWriteArtifacts(t *testing.T) {
	res := runFixture(t, 11)

	for _, format := range []Format{FormatCSV, FormatParquet} {
		t.Run(string(format), func(t *testing.T) {
			mfs := fsutil.NewMemoryFileSystem()
			m, err := WriteArtifacts(mfs, "runs/out", res, Options{Format: format})
			require.NoError(t, err)

			want := []string{
				"runs/out/combined." + string(format),
				"runs/out/report.html",
				"runs/out/result.json",
				"runs/out/signal.png",
			}
			if diff := cmp.Diff(want, mfs.Files("runs/out")); diff != "" {
				t.Errorf("artefacts mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, "runs/out/combined."+string(format), m.CombinedPath)
			assert.Equal(t, "export-test", m.RunID)

			data, err := mfs.ReadFile(m.ResultPath)
			require.NoError(t, err)
			var back struct {
				RunID string            `json:"run_id"`
				Stats pipeline.Stats    `json:"stats"`
				Recs  []pipeline.Record `json:"records"`
			}
			require.NoError(t, json.Unmarshal(data, &back))
			assert.Equal(t, "export-test", back.RunID)
			assert.Equal(t, 60, back.Stats.JoinedRows)
			assert.Len(t, back.Recs, 60)
		})
	}
}

func TestWriteArtifacts_Errors(t *testing.T) {
	res := runFixture(t, 11)
	mfs := fsutil.NewMemoryFileSystem()

	_, err := WriteArtifacts(mfs, " ", res, Options{})
	assert.Error(t, err)

	_, err = WriteArtifacts(mfs, "out", res, Options{Format: "xlsx"})
	assert.ErrorContains(t, err, "unsupported format")
}
