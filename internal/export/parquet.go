// Package export writes the published store out as Zstd-compressed Parquet
// for downstream analytics tooling.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/dat2sqlite-go/internal/store"
)

const defaultBatchSize = 4096

var pointSchema = arrow.NewSchema([]arrow.Field{
	{Name: "lcd", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "lon", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "lat", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "tcd", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "stcd", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "point_type", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "junction_number", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "urban", Type: arrow.FixedWidthTypes.Boolean, Nullable: false},
	{Name: "road_lcd", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "range_flagged", Type: arrow.FixedWidthTypes.Boolean, Nullable: false},
}, nil)

var roadSchema = arrow.NewSchema([]arrow.Field{
	{Name: "lcd", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "road_number", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "class", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "tcd", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "stcd", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "road_type", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

// fileWriter batches rows into Parquet row groups.
type fileWriter struct {
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
	total     int64
}

func newFileWriter(path string, schema *arrow.Schema) (*fileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)
	writer, err := pqarrow.NewFileWriter(schema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	return &fileWriter{
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, schema),
		batchSize: defaultBatchSize,
	}, nil
}

func (w *fileWriter) maybeFlush() error {
	w.count++
	w.total++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *fileWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	if err := w.writer.Write(rec); err != nil {
		return fmt.Errorf("failed to write parquet batch: %w", err)
	}
	w.count = 0
	return nil
}

// Close writes the final row group and the footer. Closing the parquet
// writer also closes the underlying file.
func (w *fileWriter) Close() error {
	if err := w.flush(); err != nil {
		w.writer.Close()
		return err
	}
	w.builder.Release()
	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

func appendString(b array.Builder, s string) {
	sb := b.(*array.StringBuilder)
	if s == "" {
		sb.AppendNull()
		return
	}
	sb.Append(s)
}

// Points writes every point of the store to points.parquet in outDir and
// returns the row count.
func Points(st *store.Store, outDir string) (int64, error) {
	w, err := newFileWriter(filepath.Join(outDir, "points.parquet"), pointSchema)
	if err != nil {
		return 0, err
	}

	err = st.EachPoint(func(p store.PointFeature) error {
		w.builder.Field(0).(*array.Int64Builder).Append(p.LCD)
		w.builder.Field(1).(*array.Float64Builder).Append(p.Lon)
		w.builder.Field(2).(*array.Float64Builder).Append(p.Lat)
		w.builder.Field(3).(*array.Int64Builder).Append(p.TCD)
		w.builder.Field(4).(*array.Int64Builder).Append(p.STCD)
		appendString(w.builder.Field(5), p.PointType)
		appendString(w.builder.Field(6), p.Name)
		appendString(w.builder.Field(7), p.JunctionNumber)
		w.builder.Field(8).(*array.BooleanBuilder).Append(p.Urban)
		if p.RoadLCD == 0 {
			w.builder.Field(9).(*array.Int64Builder).AppendNull()
		} else {
			w.builder.Field(9).(*array.Int64Builder).Append(p.RoadLCD)
		}
		w.builder.Field(10).(*array.BooleanBuilder).Append(p.RangeFlagged)
		return w.maybeFlush()
	})
	if err != nil {
		w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return w.total, nil
}

// Roads writes every road of the store to roads.parquet in outDir and
// returns the row count.
func Roads(st *store.Store, outDir string) (int64, error) {
	w, err := newFileWriter(filepath.Join(outDir, "roads.parquet"), roadSchema)
	if err != nil {
		return 0, err
	}

	err = st.EachRoad(func(r store.RoadFeature) error {
		w.builder.Field(0).(*array.Int64Builder).Append(r.LCD)
		appendString(w.builder.Field(1), r.RoadNumber)
		w.builder.Field(2).(*array.StringBuilder).Append(r.Class)
		w.builder.Field(3).(*array.Int64Builder).Append(r.TCD)
		w.builder.Field(4).(*array.Int64Builder).Append(r.STCD)
		appendString(w.builder.Field(5), r.RoadType)
		appendString(w.builder.Field(6), r.StartName)
		return w.maybeFlush()
	})
	if err != nil {
		w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return w.total, nil
}
