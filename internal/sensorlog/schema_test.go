package sensorlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		stream  Stream
		csv     string
		wantErr bool
	}{
		{"location ok", StreamLocation, "seconds_elapsed,speed,latitude,longitude\n0,1,2,3\n", false},
		{"accelerometer ok", StreamAccelerometer, "seconds_elapsed,z,y,x\n0,1,2,3\n", false},
		{"accelerometer without seconds_elapsed", StreamAccelerometer, "elapsed,z,y,x\n0,1,2,3\n", true},
		{"single column", StreamLocation, "seconds_elapsed\n0\n", true},
		{"location without longitude", StreamLocation, "seconds_elapsed,latitude\n0,1\n", true},
		{"accelerometer without y", StreamAccelerometer, "seconds_elapsed,z,x\n0,1,3\n", true},
		{"text latitude", StreamLocation, "seconds_elapsed,latitude,longitude\n0,north,3\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := ParseCSV(tt.stream.String(), []byte(tt.csv), DefaultParseOptions())
			require.NoError(t, err)

			err = Validate(tbl, tt.stream)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSchema)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidate_ReportsTimeSeriesFirst(t *testing.T) {
	tbl, err := ParseCSV("accelerometer", []byte("x,y\n1,2\n"), DefaultParseOptions())
	require.NoError(t, err)

	err = Validate(tbl, StreamAccelerometer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accelerometer data must be time-series data")
}

func TestStreamString(t *testing.T) {
	assert.Equal(t, "location", StreamLocation.String())
	assert.Equal(t, "accelerometer", StreamAccelerometer.String())
	assert.Equal(t, "unknown", Stream(42).String())
}
