package iceberg

import (
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"
	"github.com/linkedin/goavro/v2"

	"floe/storage"
)

// manifestListSchemaJSON is the fixed schema for manifest list files. Field
// ids follow the manifest_file layout of the table format.
const manifestListSchemaJSON = `{
	"type": "record",
	"name": "manifest_file",
	"fields": [
		{"name": "manifest_path", "type": "string", "field-id": 500},
		{"name": "manifest_length", "type": "long", "field-id": 501},
		{"name": "partition_spec_id", "type": "int", "field-id": 502},
		{"name": "sequence_number", "type": "long", "default": -1, "field-id": 515},
		{"name": "min_sequence_number", "type": "long", "default": -1, "field-id": 516},
		{"name": "added_snapshot_id", "type": ["null", "long"], "default": null, "field-id": 503},
		{"name": "added_data_files_count", "type": "int", "field-id": 504},
		{"name": "existing_data_files_count", "type": "int", "field-id": 505},
		{"name": "deleted_data_files_count", "type": "int", "field-id": 506},
		{"name": "added_rows_count", "type": "long", "field-id": 512},
		{"name": "existing_rows_count", "type": "long", "field-id": 513},
		{"name": "deleted_rows_count", "type": "long", "field-id": 514},
		{"name": "partitions", "type": ["null", {
			"type": "array",
			"items": {
				"type": "record",
				"name": "r508",
				"fields": [
					{"name": "contains_null", "type": "boolean", "field-id": 509},
					{"name": "lower_bound", "type": ["null", "bytes"], "default": null, "field-id": 510},
					{"name": "upper_bound", "type": ["null", "bytes"], "default": null, "field-id": 511}
				]
			}
		}], "default": null, "field-id": 507}
	]
}`

// ManifestListPath returns the metadata-relative location for a snapshot's
// manifest list. Each call names a fresh file.
func ManifestListPath(snapshotID int64) string {
	return path.Join("metadata", fmt.Sprintf("snap-%d-%s.avro", snapshotID, uuid.New().String()))
}

// WriteManifestList writes the descriptors a snapshot points at. The list
// replaces whatever object is at the output location.
func WriteManifestList(ctx context.Context, out storage.OutputFile, manifests []ManifestFile) error {
	buf := storage.NewBuffer()
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               buf,
		Schema:          manifestListSchemaJSON,
		CompressionName: goavro.CompressionDeflateLabel,
	})
	if err != nil {
		return fmt.Errorf("creating avro writer: %w", err)
	}

	if len(manifests) > 0 {
		data := make([]any, 0, len(manifests))
		for i := range manifests {
			data = append(data, manifestFileToAvro(manifests[i]))
		}
		if err := ocf.Append(data); err != nil {
			return fmt.Errorf("appending manifest list: %w", err)
		}
	}

	if err := out.Write(ctx, buf.Reader()); err != nil {
		return fmt.Errorf("writing manifest list %s: %w", out.Location(), err)
	}
	return nil
}

// ReadManifestList returns every descriptor in a manifest list file.
func ReadManifestList(ctx context.Context, in storage.InputFile) ([]ManifestFile, error) {
	rc, err := in.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening manifest list %s: %w", in.Location(), err)
	}
	defer rc.Close()

	ocf, err := goavro.NewOCFReader(rc)
	if err != nil {
		return nil, fmt.Errorf("reading manifest list header %s: %w", in.Location(), err)
	}

	var manifests []ManifestFile
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, fmt.Errorf("decoding manifest list entry: %w", err)
		}
		m, err := manifestFileFromAvro(datum)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	if err := ocf.Err(); err != nil {
		return nil, fmt.Errorf("scanning manifest list: %w", err)
	}

	return manifests, nil
}

func manifestFileToAvro(m ManifestFile) map[string]any {
	datum := map[string]any{
		"manifest_path":             m.ManifestPath,
		"manifest_length":           m.ManifestLength,
		"partition_spec_id":         int32(m.PartitionSpecID),
		"sequence_number":           m.SequenceNumber,
		"min_sequence_number":       m.MinSequenceNumber,
		"added_snapshot_id":         nil,
		"added_data_files_count":    m.AddedFilesCount,
		"existing_data_files_count": m.ExistingFilesCount,
		"deleted_data_files_count":  m.DeletedFilesCount,
		"added_rows_count":          m.AddedRowsCount,
		"existing_rows_count":       m.ExistingRowsCount,
		"deleted_rows_count":        m.DeletedRowsCount,
		"partitions":                nil,
	}

	if m.SnapshotID != nil {
		datum["added_snapshot_id"] = map[string]any{"long": *m.SnapshotID}
	}

	if m.Partitions != nil {
		items := make([]any, 0, len(m.Partitions))
		for _, p := range m.Partitions {
			item := map[string]any{
				"contains_null": p.ContainsNull,
				"lower_bound":   nil,
				"upper_bound":   nil,
			}
			if p.LowerBound != nil {
				item["lower_bound"] = map[string]any{"bytes": p.LowerBound}
			}
			if p.UpperBound != nil {
				item["upper_bound"] = map[string]any{"bytes": p.UpperBound}
			}
			items = append(items, item)
		}
		datum["partitions"] = map[string]any{"array": items}
	}

	return datum
}

func manifestFileFromAvro(datum any) (ManifestFile, error) {
	record, ok := datum.(map[string]any)
	if !ok {
		return ManifestFile{}, fmt.Errorf("iceberg: manifest list entry is %T, not a record", datum)
	}

	m := ManifestFile{
		SequenceNumber:    UnassignedSequenceNumber,
		MinSequenceNumber: UnassignedSequenceNumber,
	}

	m.ManifestPath, _ = record["manifest_path"].(string)
	m.ManifestLength, _ = record["manifest_length"].(int64)
	if v, ok := record["partition_spec_id"].(int32); ok {
		m.PartitionSpecID = int(v)
	}
	if v, ok := record["sequence_number"].(int64); ok {
		m.SequenceNumber = v
	}
	if v, ok := record["min_sequence_number"].(int64); ok {
		m.MinSequenceNumber = v
	}
	if id, ok := unionValue(record["added_snapshot_id"]).(int64); ok {
		m.SnapshotID = &id
	}
	m.AddedFilesCount, _ = record["added_data_files_count"].(int32)
	m.ExistingFilesCount, _ = record["existing_data_files_count"].(int32)
	m.DeletedFilesCount, _ = record["deleted_data_files_count"].(int32)
	m.AddedRowsCount, _ = record["added_rows_count"].(int64)
	m.ExistingRowsCount, _ = record["existing_rows_count"].(int64)
	m.DeletedRowsCount, _ = record["deleted_rows_count"].(int64)

	if items, ok := unionValue(record["partitions"]).([]any); ok {
		m.Partitions = make([]PartitionFieldSummary, 0, len(items))
		for _, item := range items {
			kv, ok := item.(map[string]any)
			if !ok {
				continue
			}
			summary := PartitionFieldSummary{}
			summary.ContainsNull, _ = kv["contains_null"].(bool)
			summary.LowerBound, _ = unionValue(kv["lower_bound"]).([]byte)
			summary.UpperBound, _ = unionValue(kv["upper_bound"]).([]byte)
			m.Partitions = append(m.Partitions, summary)
		}
	}

	return m, nil
}
