package iceberg

import "strconv"

// Snapshot summary operations and keys recorded in table metadata.
const (
	OperationAppend    = "append"
	OperationOverwrite = "overwrite"
	OperationDelete    = "delete"

	SummaryAddedFiles        = "added-data-files"
	SummaryDeletedFiles      = "deleted-data-files"
	SummaryAddedRecords      = "added-records"
	SummaryDeletedRecords    = "deleted-records"
	SummaryChangedPartitions = "changed-partition-count"
)

type Snapshot struct {
	SnapshotID       int64             `json:"snapshot-id"`
	ParentSnapshotID int64             `json:"parent-snapshot-id"`
	SequenceNumber   int64             `json:"sequence-number"`
	TimestampMs      int64             `json:"timestamp-ms"`
	ManifestList     string            `json:"manifest-list"`
	Summary          map[string]string `json:"summary"`
}

// SnapshotSummaryBuilder accumulates per-file changes into the string map a
// snapshot records. Existing files are not changes and never touch it.
type SnapshotSummaryBuilder struct {
	operation      string
	addedFiles     int64
	addedRecords   int64
	deletedFiles   int64
	deletedRecords int64
	partitions     map[string]struct{}
}

func NewSnapshotSummaryBuilder() *SnapshotSummaryBuilder {
	return &SnapshotSummaryBuilder{
		operation:  OperationAppend,
		partitions: make(map[string]struct{}),
	}
}

func (b *SnapshotSummaryBuilder) SetOperation(op string) {
	b.operation = op
}

// AddedFile counts a data file added by the snapshot and marks its
// partition as changed.
func (b *SnapshotSummaryBuilder) AddedFile(spec *PartitionSpec, file DataFile) {
	b.addedFiles++
	b.addedRecords += file.RecordCount
	b.partitions[spec.PartitionPath(file.Partition)] = struct{}{}
}

// DeletedFile counts a data file removed by the snapshot and marks its
// partition as changed.
func (b *SnapshotSummaryBuilder) DeletedFile(spec *PartitionSpec, file DataFile) {
	b.deletedFiles++
	b.deletedRecords += file.RecordCount
	b.partitions[spec.PartitionPath(file.Partition)] = struct{}{}
}

// Build renders the summary map. Zero counts are omitted; the operation and
// changed partition count are always present.
func (b *SnapshotSummaryBuilder) Build() map[string]string {
	m := map[string]string{
		"operation":              b.operation,
		SummaryChangedPartitions: strconv.Itoa(len(b.partitions)),
	}
	if b.addedFiles > 0 {
		m[SummaryAddedFiles] = strconv.FormatInt(b.addedFiles, 10)
		m[SummaryAddedRecords] = strconv.FormatInt(b.addedRecords, 10)
	}
	if b.deletedFiles > 0 {
		m[SummaryDeletedFiles] = strconv.FormatInt(b.deletedFiles, 10)
		m[SummaryDeletedRecords] = strconv.FormatInt(b.deletedRecords, 10)
	}
	return m
}
