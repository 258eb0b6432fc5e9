package iceberg

const FormatParquet = "PARQUET"

// DataFile describes one immutable data file tracked by a manifest.
// Partition holds the file's partition tuple in spec field order, with nil
// for null values.
type DataFile struct {
	FilePath      string
	FileFormat    string
	Partition     []any
	RecordCount   int64
	FileSizeBytes int64
	Metrics       FileMetrics
}

// FileMetrics carries per-column statistics keyed by schema field id.
// Bounds use the single-value binary encoding.
type FileMetrics struct {
	ColumnSizes     map[int]int64
	ValueCounts     map[int]int64
	NullValueCounts map[int]int64
	LowerBounds     map[int][]byte
	UpperBounds     map[int][]byte
}

func newFileMetrics() FileMetrics {
	return FileMetrics{
		ColumnSizes:     make(map[int]int64),
		ValueCounts:     make(map[int]int64),
		NullValueCounts: make(map[int]int64),
		LowerBounds:     make(map[int][]byte),
		UpperBounds:     make(map[int][]byte),
	}
}
