package iceberg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"floe/storage"
)

// TableWriter turns rows into partitioned parquet data files and the
// manifest that commits them. Rows are routed to one open data file per
// partition; Flush closes the batch and returns the manifest descriptor for
// the snapshot to record.
type TableWriter struct {
	store         storage.Storage
	schema        *Schema
	spec          *PartitionSpec
	parquetSchema *parquet.Schema
	logger        *slog.Logger

	mu      sync.Mutex
	writers map[string]*dataFileWriter
}

func NewTableWriter(store storage.Storage, schema *Schema, spec *PartitionSpec, logger *slog.Logger) (*TableWriter, error) {
	parquetSchema, err := parquetSchemaFor(schema)
	if err != nil {
		return nil, fmt.Errorf("creating parquet schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TableWriter{
		store:         store,
		schema:        schema,
		spec:          spec,
		parquetSchema: parquetSchema,
		logger:        logger,
		writers:       make(map[string]*dataFileWriter),
	}, nil
}

// Write routes a row to the data file for its partition, opening one if the
// partition has not been seen in this batch.
func (w *TableWriter) Write(row map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	partition, err := w.spec.PartitionTuple(row)
	if err != nil {
		return err
	}

	key := w.spec.PartitionPath(partition)
	dw, ok := w.writers[key]
	if !ok {
		dw = newDataFileWriter(w.parquetSchema, key, partition)
		w.writers[key] = dw
		w.logger.Debug("opened data file", "path", dw.path, "partition", key)
	}

	return dw.write(row)
}

// Flush closes every open data file, uploads them, and writes one manifest
// covering the batch under snapshotID. Added files are folded into summary.
func (w *TableWriter) Flush(ctx context.Context, snapshotID int64, summary *SnapshotSummaryBuilder) (ManifestFile, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := snapshotID
	manifestPath := path.Join("metadata", fmt.Sprintf("%s-m0.avro", uuid.New().String()))
	mw, err := NewManifestWriter(1, w.spec, storage.NewOutputFile(w.store, manifestPath), &id, w.logger)
	if err != nil {
		return ManifestFile{}, err
	}

	for key, dw := range w.writers {
		file, err := dw.finish(ctx, w.store, w.schema)
		if err != nil {
			return ManifestFile{}, fmt.Errorf("finishing data file for partition %q: %w", key, err)
		}
		if err := mw.Add(file); err != nil {
			return ManifestFile{}, err
		}
		summary.AddedFile(w.spec, file)
		w.logger.Info("wrote data file",
			"path", file.FilePath,
			"records", file.RecordCount,
			"bytes", file.FileSizeBytes)
	}
	w.writers = make(map[string]*dataFileWriter)

	if err := mw.Close(ctx); err != nil {
		return ManifestFile{}, err
	}
	return mw.ToManifestFile()
}

// dataFileWriter buffers one parquet file for one partition.
type dataFileWriter struct {
	buf       *storage.Buffer
	writer    *parquet.GenericWriter[map[string]any]
	path      string
	partition []any
	records   int64
}

func newDataFileWriter(schema *parquet.Schema, partitionKey string, partition []any) *dataFileWriter {
	buf := storage.NewBuffer()
	return &dataFileWriter{
		buf:       buf,
		writer:    parquet.NewGenericWriter[map[string]any](buf, schema),
		path:      path.Join("data", partitionKey, fmt.Sprintf("%s.parquet", uuid.New().String())),
		partition: partition,
	}
}

func (d *dataFileWriter) write(row map[string]any) error {
	if _, err := d.writer.Write([]map[string]any{row}); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	d.records++
	return nil
}

// finish closes the parquet stream, reads column statistics back out of the
// footer, and uploads the file.
func (d *dataFileWriter) finish(ctx context.Context, store storage.Storage, schema *Schema) (DataFile, error) {
	if err := d.writer.Close(); err != nil {
		return DataFile{}, fmt.Errorf("closing parquet writer: %w", err)
	}

	data := d.buf.Bytes()
	metrics, err := collectMetrics(data, schema)
	if err != nil {
		return DataFile{}, err
	}

	if err := store.Write(ctx, d.path, bytes.NewReader(data)); err != nil {
		return DataFile{}, fmt.Errorf("uploading data file: %w", err)
	}

	return DataFile{
		FilePath:      d.path,
		FileFormat:    FormatParquet,
		Partition:     d.partition,
		RecordCount:   d.records,
		FileSizeBytes: int64(len(data)),
		Metrics:       metrics,
	}, nil
}

// collectMetrics extracts per-column statistics from a parquet footer,
// keyed by schema field id. Parquet plain-encodes chunk statistics the same
// way bounds are stored, so values survive the round trip unchanged.
func collectMetrics(data []byte, schema *Schema) (FileMetrics, error) {
	pf, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return FileMetrics{}, fmt.Errorf("opening parquet footer: %w", err)
	}

	metrics := newFileMetrics()
	lower := make(map[int]any)
	upper := make(map[int]any)

	for _, rg := range pf.Metadata().RowGroups {
		for _, col := range rg.Columns {
			md := col.MetaData
			if len(md.PathInSchema) == 0 {
				continue
			}
			field, ok := schema.FieldByName(md.PathInSchema[0])
			if !ok {
				continue
			}

			metrics.ColumnSizes[field.ID] += md.TotalCompressedSize
			metrics.ValueCounts[field.ID] += md.NumValues
			metrics.NullValueCounts[field.ID] += md.Statistics.NullCount

			if len(md.Statistics.MinValue) > 0 {
				v, err := decodeValue(field.Type, md.Statistics.MinValue)
				if err != nil {
					return FileMetrics{}, fmt.Errorf("decoding %s statistics: %w", field.Name, err)
				}
				if cur, ok := lower[field.ID]; !ok {
					lower[field.ID] = v
				} else if c, err := compareValues(v, cur); err == nil && c < 0 {
					lower[field.ID] = v
				}
			}
			if len(md.Statistics.MaxValue) > 0 {
				v, err := decodeValue(field.Type, md.Statistics.MaxValue)
				if err != nil {
					return FileMetrics{}, fmt.Errorf("decoding %s statistics: %w", field.Name, err)
				}
				if cur, ok := upper[field.ID]; !ok {
					upper[field.ID] = v
				} else if c, err := compareValues(v, cur); err == nil && c > 0 {
					upper[field.ID] = v
				}
			}
		}
	}

	for id, v := range lower {
		field, _ := schema.FieldByID(id)
		b, err := encodeValue(field.Type, v)
		if err != nil {
			return FileMetrics{}, err
		}
		metrics.LowerBounds[id] = b
	}
	for id, v := range upper {
		field, _ := schema.FieldByID(id)
		b, err := encodeValue(field.Type, v)
		if err != nil {
			return FileMetrics{}, err
		}
		metrics.UpperBounds[id] = b
	}

	return metrics, nil
}

func parquetSchemaFor(schema *Schema) (*parquet.Schema, error) {
	root := make(parquet.Group)

	for _, field := range schema.Fields {
		var node parquet.Node

		switch field.Type {
		case "int":
			node = parquet.Leaf(parquet.Int32Type)
		case "long":
			node = parquet.Leaf(parquet.Int64Type)
		case "string":
			node = parquet.Leaf(parquet.ByteArrayType)
		case "double":
			node = parquet.Leaf(parquet.DoubleType)
		case "float":
			node = parquet.Leaf(parquet.FloatType)
		case "boolean":
			node = parquet.Leaf(parquet.BooleanType)
		case "date":
			node = parquet.Date()
		case "timestamp":
			node = parquet.Timestamp(parquet.Microsecond)
		case "binary":
			node = parquet.Leaf(parquet.ByteArrayType)
		default:
			return nil, fmt.Errorf("unsupported type: %s", field.Type)
		}

		if !field.Required {
			node = parquet.Optional(node)
		}
		root[field.Name] = node
	}

	return parquet.NewSchema("table", root), nil
}
