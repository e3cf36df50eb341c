package export

import (
	"io"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/banshee-data/signal.report/internal/pipeline"
)

// combinedParquetRow is the on-disk schema of combined.parquet. Unmatched
// location fields are stored as NaN.
type combinedParquetRow struct {
	SecondsElapsedX float64 `parquet:"name=seconds_elapsed_x, type=DOUBLE"`
	X               float64 `parquet:"name=x, type=DOUBLE"`
	Y               float64 `parquet:"name=y, type=DOUBLE"`
	Z               float64 `parquet:"name=z, type=DOUBLE"`
	SecondsElapsedY float64 `parquet:"name=seconds_elapsed_y, type=DOUBLE"`
	Latitude        float64 `parquet:"name=latitude, type=DOUBLE"`
	Longitude       float64 `parquet:"name=longitude, type=DOUBLE"`
	FilteredY       float64 `parquet:"name=filtered_y, type=DOUBLE"`
	Matched         bool    `parquet:"name=matched, type=BOOLEAN"`
	RunID           string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

// MarshalParquet encodes the records of res as a Snappy-compressed
// Parquet file.
func MarshalParquet(res *pipeline.Result) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(combinedParquetRow), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, rec := range res.Records {
		row := combinedParquetRow{
			SecondsElapsedX: float64(rec.SecondsElapsedX),
			X:               float64(rec.X),
			Y:               float64(rec.Y),
			Z:               float64(rec.Z),
			SecondsElapsedY: float64(rec.SecondsElapsedY),
			Latitude:        float64(rec.Latitude),
			Longitude:       float64(rec.Longitude),
			FilteredY:       float64(rec.FilteredY),
			Matched:         rec.Matched(),
			RunID:           res.RunID,
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

// WriteParquet writes MarshalParquet's output to w.
func WriteParquet(w io.Writer, res *pipeline.Result) error {
	data, err := MarshalParquet(res)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
