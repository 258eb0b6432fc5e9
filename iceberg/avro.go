package iceberg

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Metadata keys every manifest carries so readers can rebind entries without
// consulting table metadata.
const (
	metaSchemaKey          = "schema"
	metaPartitionSpecKey   = "partition-spec"
	metaPartitionSpecIDKey = "partition-spec-id"
)

// defaultBlockSizeBytes fills the legacy block_size_in_bytes column that
// format v1 readers still require.
const defaultBlockSizeBytes = 64 * 1024 * 1024

// avroPrimitive maps an Iceberg primitive to its Avro physical type. Dates
// and timestamps are written as their integer representations.
func avroPrimitive(typ string) (string, error) {
	switch typ {
	case "boolean":
		return "boolean", nil
	case "int", "date":
		return "int", nil
	case "long", "timestamp":
		return "long", nil
	case "float":
		return "float", nil
	case "double":
		return "double", nil
	case "string":
		return "string", nil
	case "binary":
		return "bytes", nil
	default:
		return "", fmt.Errorf("iceberg: no avro mapping for type %q", typ)
	}
}

// manifestEntrySchema builds the entry schema for one partition spec. The
// fixed part follows the manifest format's field ids; partition fields are
// spliced into the r102 record with their spec-assigned ids.
func manifestEntrySchema(spec *PartitionSpec) (string, error) {
	partitionFields := make([]map[string]any, len(spec.Fields))
	for i, f := range spec.Fields {
		at, err := avroPrimitive(spec.types[i])
		if err != nil {
			return "", err
		}
		partitionFields[i] = map[string]any{
			"name":     f.Name,
			"type":     []any{"null", at},
			"default":  nil,
			"field-id": f.FieldID,
		}
	}

	statsArray := func(name string, keyID, valueID int, valueType string) map[string]any {
		return map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "record",
				"name": name,
				"fields": []map[string]any{
					{"name": "key", "type": "int", "field-id": keyID},
					{"name": "value", "type": valueType, "field-id": valueID},
				},
			},
		}
	}

	dataFileFields := []map[string]any{
		{"name": "file_path", "type": "string", "field-id": 100},
		{"name": "file_format", "type": "string", "field-id": 101},
	}
	// Avro forbids records without fields, so unpartitioned manifests omit
	// the partition record instead of writing an empty one.
	if len(partitionFields) > 0 {
		dataFileFields = append(dataFileFields, map[string]any{
			"name":     "partition",
			"type":     map[string]any{"type": "record", "name": "r102", "fields": partitionFields},
			"field-id": 102,
		})
	}
	dataFileFields = append(dataFileFields,
		map[string]any{"name": "record_count", "type": "long", "field-id": 103},
		map[string]any{"name": "file_size_in_bytes", "type": "long", "field-id": 104},
		map[string]any{"name": "block_size_in_bytes", "type": "long", "field-id": 105},
		map[string]any{"name": "column_sizes", "type": []any{"null", statsArray("k117_v118", 117, 118, "long")}, "default": nil, "field-id": 108},
		map[string]any{"name": "value_counts", "type": []any{"null", statsArray("k119_v120", 119, 120, "long")}, "default": nil, "field-id": 109},
		map[string]any{"name": "null_value_counts", "type": []any{"null", statsArray("k121_v122", 121, 122, "long")}, "default": nil, "field-id": 110},
		map[string]any{"name": "lower_bounds", "type": []any{"null", statsArray("k126_v127", 126, 127, "bytes")}, "default": nil, "field-id": 125},
		map[string]any{"name": "upper_bounds", "type": []any{"null", statsArray("k129_v130", 129, 130, "bytes")}, "default": nil, "field-id": 128},
	)

	root := map[string]any{
		"type": "record",
		"name": "manifest_entry",
		"fields": []map[string]any{
			{"name": "status", "type": "int", "field-id": 0},
			{"name": "snapshot_id", "type": []any{"null", "long"}, "default": nil, "field-id": 1},
			{"name": "sequence_number", "type": "long", "default": -1, "field-id": 3},
			{"name": "data_file", "type": map[string]any{"type": "record", "name": "r2", "fields": dataFileFields}, "field-id": 2},
		},
	}

	data, err := json.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("building manifest entry schema: %w", err)
	}
	return string(data), nil
}

func entryToAvro(e *ManifestEntry, spec *PartitionSpec) (map[string]any, error) {
	if len(e.DataFile.Partition) != len(spec.Fields) {
		return nil, fmt.Errorf("iceberg: partition has %d values but spec has %d fields", len(e.DataFile.Partition), len(spec.Fields))
	}

	file := e.DataFile
	dataFile := map[string]any{
		"file_path":           file.FilePath,
		"file_format":         file.FileFormat,
		"record_count":        file.RecordCount,
		"file_size_in_bytes":  file.FileSizeBytes,
		"block_size_in_bytes": int64(defaultBlockSizeBytes),
		"column_sizes":        countsToAvro(file.Metrics.ColumnSizes),
		"value_counts":        countsToAvro(file.Metrics.ValueCounts),
		"null_value_counts":   countsToAvro(file.Metrics.NullValueCounts),
		"lower_bounds":        boundsToAvro(file.Metrics.LowerBounds),
		"upper_bounds":        boundsToAvro(file.Metrics.UpperBounds),
	}

	if len(spec.Fields) > 0 {
		partition := make(map[string]any, len(spec.Fields))
		for i, f := range spec.Fields {
			v, err := normalizeValue(spec.types[i], e.DataFile.Partition[i])
			if err != nil {
				return nil, err
			}
			if v == nil {
				partition[f.Name] = nil
				continue
			}
			at, err := avroPrimitive(spec.types[i])
			if err != nil {
				return nil, err
			}
			partition[f.Name] = map[string]any{at: v}
		}
		dataFile["partition"] = partition
	}

	entry := map[string]any{
		"status":          int32(e.Status),
		"snapshot_id":     nil,
		"sequence_number": e.SequenceNumber,
		"data_file":       dataFile,
	}
	if e.SnapshotID != nil {
		entry["snapshot_id"] = map[string]any{"long": *e.SnapshotID}
	}
	return entry, nil
}

func entryFromAvro(datum any, spec *PartitionSpec) (*ManifestEntry, error) {
	record, ok := datum.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("iceberg: manifest entry is %T, not a record", datum)
	}

	entry := &ManifestEntry{SequenceNumber: UnassignedSequenceNumber}

	status, ok := record["status"].(int32)
	if !ok {
		return nil, fmt.Errorf("iceberg: manifest entry has no status")
	}
	entry.Status = Status(status)

	if id, ok := unionValue(record["snapshot_id"]).(int64); ok {
		entry.SnapshotID = &id
	}
	if seq, ok := record["sequence_number"].(int64); ok {
		entry.SequenceNumber = seq
	}

	fileRecord, ok := record["data_file"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("iceberg: manifest entry has no data_file")
	}

	file := DataFile{}
	file.FilePath, _ = fileRecord["file_path"].(string)
	file.FileFormat, _ = fileRecord["file_format"].(string)
	file.RecordCount, _ = fileRecord["record_count"].(int64)
	file.FileSizeBytes, _ = fileRecord["file_size_in_bytes"].(int64)

	if len(spec.Fields) > 0 {
		partRecord, _ := fileRecord["partition"].(map[string]any)
		tuple := make([]any, len(spec.Fields))
		for i, f := range spec.Fields {
			v := unionValue(partRecord[f.Name])
			if v == nil {
				continue
			}
			nv, err := normalizeValue(spec.types[i], v)
			if err != nil {
				return nil, err
			}
			tuple[i] = nv
		}
		file.Partition = tuple
	}

	file.Metrics = FileMetrics{
		ColumnSizes:     countsFromAvro(fileRecord["column_sizes"]),
		ValueCounts:     countsFromAvro(fileRecord["value_counts"]),
		NullValueCounts: countsFromAvro(fileRecord["null_value_counts"]),
		LowerBounds:     boundsFromAvro(fileRecord["lower_bounds"]),
		UpperBounds:     boundsFromAvro(fileRecord["upper_bounds"]),
	}

	entry.DataFile = file
	return entry, nil
}

// unionValue unwraps goavro's single-branch union form. Nulls come through
// as nil.
func unionValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	for _, inner := range m {
		return inner
	}
	return nil
}

// countsToAvro writes an id-keyed count map as the sorted key/value array
// the manifest schema uses; empty maps are written as null.
func countsToAvro(m map[int]int64) any {
	if len(m) == 0 {
		return nil
	}
	items := make([]any, 0, len(m))
	for _, k := range sortedKeys(m) {
		items = append(items, map[string]any{"key": int32(k), "value": m[k]})
	}
	return map[string]any{"array": items}
}

func boundsToAvro(m map[int][]byte) any {
	if len(m) == 0 {
		return nil
	}
	items := make([]any, 0, len(m))
	for _, k := range sortedKeys(m) {
		items = append(items, map[string]any{"key": int32(k), "value": m[k]})
	}
	return map[string]any{"array": items}
}

func countsFromAvro(v any) map[int]int64 {
	items, ok := unionValue(v).([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	out := make(map[int]int64, len(items))
	for _, item := range items {
		kv, ok := item.(map[string]any)
		if !ok {
			continue
		}
		k, _ := kv["key"].(int32)
		value, _ := kv["value"].(int64)
		out[int(k)] = value
	}
	return out
}

func boundsFromAvro(v any) map[int][]byte {
	items, ok := unionValue(v).([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	out := make(map[int][]byte, len(items))
	for _, item := range items {
		kv, ok := item.(map[string]any)
		if !ok {
			continue
		}
		k, _ := kv["key"].(int32)
		value, _ := kv["value"].([]byte)
		out[int(k)] = value
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
