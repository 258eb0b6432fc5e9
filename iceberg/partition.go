package iceberg

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type PartitionField struct {
	SourceID    int    `json:"source-id"` // ID from the schema
	FieldID     int    `json:"field-id"`  // Unique ID for partition field
	Name        string `json:"name"`      // Partition name (e.g. "year", "month", "day")
	Transform   string `json:"transform"` // identity, year, month, day, hour, truncate, bucket, void
	SourceField string `json:"source"`    // Source column name
}

// PartitionSpec is an ordered set of partition fields bound to a table
// schema. Every manifest is written against exactly one spec; the partition
// tuples of its data files are typed by the spec's transform result types.
type PartitionSpec struct {
	SpecID int              `json:"spec-id"`
	Fields []PartitionField `json:"fields"`

	schema *Schema
	types  []string
}

func NewPartitionSpec(schema *Schema, specID int, fields ...PartitionField) (*PartitionSpec, error) {
	spec := &PartitionSpec{
		SpecID: specID,
		Fields: make([]PartitionField, len(fields)),
		schema: schema,
		types:  make([]string, len(fields)),
	}

	for i, f := range fields {
		src, ok := schema.FieldByID(f.SourceID)
		if !ok {
			return nil, fmt.Errorf("iceberg: partition field %q references unknown source id %d", f.Name, f.SourceID)
		}
		if f.Name == "" {
			return nil, fmt.Errorf("iceberg: partition field for source %q has no name", src.Name)
		}
		if f.FieldID == 0 {
			f.FieldID = 1000 + i
		}
		if f.SourceField == "" {
			f.SourceField = src.Name
		}

		resultType, err := transformResultType(f.Transform, src.Type)
		if err != nil {
			return nil, err
		}

		spec.Fields[i] = f
		spec.types[i] = resultType
	}

	return spec, nil
}

// ParsePartitionSpec rebinds serialized partition fields to a schema, for
// example when reopening a manifest whose metadata carries both.
func ParsePartitionSpec(schema *Schema, specID int, fieldsJSON []byte) (*PartitionSpec, error) {
	var fields []PartitionField
	if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
		return nil, fmt.Errorf("parsing partition spec: %w", err)
	}
	return NewPartitionSpec(schema, specID, fields...)
}

// Unpartitioned returns the empty spec for the schema.
func Unpartitioned(schema *Schema) *PartitionSpec {
	return &PartitionSpec{SpecID: 0, Fields: []PartitionField{}, schema: schema}
}

func (s *PartitionSpec) Schema() *Schema {
	return s.schema
}

// PartitionTuple derives the partition values for one row, in field order.
func (s *PartitionSpec) PartitionTuple(row map[string]any) ([]any, error) {
	tuple := make([]any, len(s.Fields))
	for i, f := range s.Fields {
		src, _ := s.schema.FieldByID(f.SourceID)

		raw, ok := row[src.Name]
		if !ok || raw == nil {
			if src.Required {
				return nil, fmt.Errorf("iceberg: row is missing required field %q", src.Name)
			}
			tuple[i] = nil
			continue
		}

		v, err := normalizeValue(src.Type, raw)
		if err != nil {
			return nil, err
		}

		tuple[i], err = applyTransform(f.Transform, src.Type, v)
		if err != nil {
			return nil, err
		}
	}
	return tuple, nil
}

// PartitionPath renders a tuple as the familiar name=value path form used
// for data file layout and change tracking.
func (s *PartitionSpec) PartitionPath(tuple []any) string {
	if len(s.Fields) == 0 {
		return ""
	}
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		var v any
		if i < len(tuple) {
			v = tuple[i]
		}
		parts[i] = f.Name + "=" + partitionValueString(v)
	}
	return strings.Join(parts, "/")
}

func partitionValueString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case []byte:
		return fmt.Sprintf("%x", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// transformResultType validates a transform against its source type and
// reports the type of the produced partition values.
func transformResultType(transform, sourceType string) (string, error) {
	name, width, err := parseTransform(transform)
	if err != nil {
		return "", err
	}

	switch name {
	case "identity", "void":
		if _, err := normalizeValue(sourceType, nil); err != nil {
			return "", err
		}
		return sourceType, nil
	case "year", "month":
		if sourceType != "date" && sourceType != "timestamp" {
			return "", fmt.Errorf("%w: %q cannot transform %s", ErrUnsupportedTransform, name, sourceType)
		}
		return "int", nil
	case "day":
		if sourceType != "date" && sourceType != "timestamp" {
			return "", fmt.Errorf("%w: %q cannot transform %s", ErrUnsupportedTransform, name, sourceType)
		}
		return "date", nil
	case "hour":
		if sourceType != "timestamp" {
			return "", fmt.Errorf("%w: %q cannot transform %s", ErrUnsupportedTransform, name, sourceType)
		}
		return "int", nil
	case "truncate":
		if width <= 0 {
			return "", fmt.Errorf("%w: %q has no width", ErrUnsupportedTransform, transform)
		}
		switch sourceType {
		case "int", "long", "string":
			return sourceType, nil
		}
		return "", fmt.Errorf("%w: %q cannot transform %s", ErrUnsupportedTransform, name, sourceType)
	case "bucket":
		// Bucket values can be carried and read back but not computed here;
		// applyTransform rejects the evaluation.
		if width <= 0 {
			return "", fmt.Errorf("%w: %q has no width", ErrUnsupportedTransform, transform)
		}
		switch sourceType {
		case "int", "long", "date", "timestamp", "string", "binary":
			return "int", nil
		}
		return "", fmt.Errorf("%w: %q cannot transform %s", ErrUnsupportedTransform, name, sourceType)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTransform, transform)
	}
}

func parseTransform(transform string) (string, int, error) {
	i := strings.IndexByte(transform, '[')
	if i < 0 {
		return transform, 0, nil
	}
	if !strings.HasSuffix(transform, "]") {
		return "", 0, fmt.Errorf("%w: %q", ErrUnsupportedTransform, transform)
	}
	width, err := strconv.Atoi(transform[i+1 : len(transform)-1])
	if err != nil || width <= 0 {
		return "", 0, fmt.Errorf("%w: %q has invalid width", ErrUnsupportedTransform, transform)
	}
	return transform[:i], width, nil
}

// applyTransform maps a normalized source value to its partition value.
// Null always maps to null.
func applyTransform(transform, sourceType string, v any) (any, error) {
	name, width, err := parseTransform(transform)
	if err != nil {
		return nil, err
	}
	if name == "void" {
		return nil, nil
	}
	if v == nil {
		return nil, nil
	}

	switch name {
	case "identity":
		return v, nil
	case "year":
		t := toTime(sourceType, v)
		return int32(t.Year() - 1970), nil
	case "month":
		t := toTime(sourceType, v)
		return int32((t.Year()-1970)*12 + int(t.Month()) - 1), nil
	case "day":
		if sourceType == "date" {
			return v, nil
		}
		return int32(floorDiv(v.(int64), microsPerDay)), nil
	case "hour":
		return int32(floorDiv(v.(int64), microsPerHour)), nil
	case "truncate":
		return truncateValue(v, width)
	case "bucket":
		return nil, fmt.Errorf("%w: %q values must be computed by the caller", ErrUnsupportedTransform, transform)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransform, transform)
	}
}

const (
	microsPerDay  = int64(24 * time.Hour / time.Microsecond)
	microsPerHour = int64(time.Hour / time.Microsecond)
)

func toTime(sourceType string, v any) time.Time {
	if sourceType == "date" {
		return time.Unix(int64(v.(int32))*86400, 0).UTC()
	}
	return time.UnixMicro(v.(int64)).UTC()
}

func truncateValue(v any, width int) (any, error) {
	switch t := v.(type) {
	case int32:
		return t - int32(floorMod(int64(t), int64(width))), nil
	case int64:
		return t - floorMod(t, int64(width)), nil
	case string:
		r := []rune(t)
		if len(r) <= width {
			return t, nil
		}
		return string(r[:width]), nil
	default:
		return nil, fmt.Errorf("iceberg: cannot truncate %T value", v)
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return ((a % b) + b) % b
}

// normalizeValue coerces a value to the canonical Go representation of an
// Iceberg primitive type. A nil value stays nil for any known type.
func normalizeValue(typ string, v any) (any, error) {
	if v == nil {
		switch typ {
		case "boolean", "int", "date", "long", "timestamp", "float", "double", "string", "binary":
			return nil, nil
		}
		return nil, fmt.Errorf("iceberg: unsupported type %q", typ)
	}

	switch typ {
	case "boolean":
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case "int", "date":
		if n, ok := toInt64(v); ok {
			return int32(n), nil
		}
	case "long", "timestamp":
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case "float":
		switch f := v.(type) {
		case float32:
			return f, nil
		case float64:
			return float32(f), nil
		}
	case "double":
		switch f := v.(type) {
		case float64:
			return f, nil
		case float32:
			return float64(f), nil
		}
	case "string":
		if s, ok := v.(string); ok {
			return s, nil
		}
	case "binary":
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	default:
		return nil, fmt.Errorf("iceberg: unsupported type %q", typ)
	}

	return nil, fmt.Errorf("iceberg: cannot use %T as %s value", v, typ)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

// compareValues orders two normalized values of the same type.
func compareValues(a, b any) (int, error) {
	switch av := a.(type) {
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, nil
			case bv:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case int32:
		if bv, ok := b.(int32); ok {
			return compareOrdered(av, bv), nil
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return compareOrdered(av, bv), nil
		}
	case float32:
		if bv, ok := b.(float32); ok {
			return compareOrdered(av, bv), nil
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return compareOrdered(av, bv), nil
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), nil
		}
	case []byte:
		if bv, ok := b.([]byte); ok {
			return bytes.Compare(av, bv), nil
		}
	}
	return 0, fmt.Errorf("iceberg: cannot compare %T with %T", a, b)
}

func compareOrdered[T int32 | int64 | float32 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// encodeValue serializes a normalized value using the single-value binary
// encoding bounds are stored in: little-endian for numerics, raw bytes for
// strings and binary.
func encodeValue(typ string, v any) ([]byte, error) {
	switch typ {
	case "boolean":
		if v.(bool) {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case "int", "date":
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(v.(int32)))
		return buf, nil
	case "long", "timestamp":
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v.(int64)))
		return buf, nil
	case "float":
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v.(float32)))
		return buf, nil
	case "double":
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.(float64)))
		return buf, nil
	case "string":
		return []byte(v.(string)), nil
	case "binary":
		return append([]byte(nil), v.([]byte)...), nil
	default:
		return nil, fmt.Errorf("iceberg: cannot encode %q value", typ)
	}
}

// decodeValue is the inverse of encodeValue.
func decodeValue(typ string, data []byte) (any, error) {
	switch typ {
	case "boolean":
		if len(data) != 1 {
			return nil, fmt.Errorf("iceberg: boolean value has %d bytes", len(data))
		}
		return data[0] != 0, nil
	case "int", "date":
		if len(data) != 4 {
			return nil, fmt.Errorf("iceberg: int value has %d bytes", len(data))
		}
		return int32(binary.LittleEndian.Uint32(data)), nil
	case "long", "timestamp":
		if len(data) != 8 {
			return nil, fmt.Errorf("iceberg: long value has %d bytes", len(data))
		}
		return int64(binary.LittleEndian.Uint64(data)), nil
	case "float":
		if len(data) != 4 {
			return nil, fmt.Errorf("iceberg: float value has %d bytes", len(data))
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), nil
	case "double":
		if len(data) != 8 {
			return nil, fmt.Errorf("iceberg: double value has %d bytes", len(data))
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
	case "string":
		return string(data), nil
	case "binary":
		return append([]byte(nil), data...), nil
	default:
		return nil, fmt.Errorf("iceberg: cannot decode %q value", typ)
	}
}
