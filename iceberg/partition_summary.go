package iceberg

import "fmt"

// partitionSummary folds the partition tuple of every appended entry into
// per-field summaries, regardless of entry status.
type partitionSummary struct {
	fields []fieldSummary
}

type fieldSummary struct {
	resultType   string
	containsNull bool
	lower        any
	upper        any
}

func newPartitionSummary(spec *PartitionSpec) *partitionSummary {
	fields := make([]fieldSummary, len(spec.Fields))
	for i := range spec.Fields {
		fields[i] = fieldSummary{resultType: spec.types[i]}
	}
	return &partitionSummary{fields: fields}
}

func (s *partitionSummary) update(partition []any) error {
	if len(partition) != len(s.fields) {
		return fmt.Errorf("iceberg: partition has %d values but spec has %d fields", len(partition), len(s.fields))
	}
	for i := range s.fields {
		if err := s.fields[i].update(partition[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fieldSummary) update(v any) error {
	if v == nil {
		f.containsNull = true
		return nil
	}

	v, err := normalizeValue(f.resultType, v)
	if err != nil {
		return err
	}

	if f.lower == nil {
		f.lower = v
		f.upper = v
		return nil
	}

	if c, err := compareValues(v, f.lower); err != nil {
		return err
	} else if c < 0 {
		f.lower = v
	}
	if c, err := compareValues(v, f.upper); err != nil {
		return err
	} else if c > 0 {
		f.upper = v
	}
	return nil
}

// summaries serializes the accumulated state, one summary per spec field.
func (s *partitionSummary) summaries() ([]PartitionFieldSummary, error) {
	out := make([]PartitionFieldSummary, len(s.fields))
	for i, f := range s.fields {
		summary := PartitionFieldSummary{ContainsNull: f.containsNull}
		if f.lower != nil {
			lower, err := encodeValue(f.resultType, f.lower)
			if err != nil {
				return nil, err
			}
			upper, err := encodeValue(f.resultType, f.upper)
			if err != nil {
				return nil, err
			}
			summary.LowerBound = lower
			summary.UpperBound = upper
		}
		out[i] = summary
	}
	return out, nil
}
