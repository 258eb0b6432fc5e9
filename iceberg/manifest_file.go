package iceberg

// ManifestFile is the immutable descriptor a snapshot records for one
// manifest: its location and length plus aggregate counts of the entries
// inside. It is produced by ManifestWriter.ToManifestFile after the writer
// closes and is what manifest lists serialize.
type ManifestFile struct {
	ManifestPath      string
	ManifestLength    int64
	PartitionSpecID   int
	SequenceNumber    int64
	MinSequenceNumber int64
	SnapshotID        *int64

	AddedFilesCount    int32
	ExistingFilesCount int32
	DeletedFilesCount  int32
	AddedRowsCount     int64
	ExistingRowsCount  int64
	DeletedRowsCount   int64

	Partitions []PartitionFieldSummary
}

// PartitionFieldSummary aggregates one partition field across every entry in
// a manifest. Bounds are nil when every value was null.
type PartitionFieldSummary struct {
	ContainsNull bool
	LowerBound   []byte
	UpperBound   []byte
}

// HasAddedFiles reports whether scanning the manifest can yield ADDED
// entries.
func (m ManifestFile) HasAddedFiles() bool {
	return m.AddedFilesCount > 0
}

// HasDeletedFiles reports whether scanning the manifest can yield DELETED
// entries.
func (m ManifestFile) HasDeletedFiles() bool {
	return m.DeletedFilesCount > 0
}
