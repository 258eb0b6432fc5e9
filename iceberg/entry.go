package iceberg

import "fmt"

// Status records how a manifest entry relates to the snapshot that wrote
// the manifest. The wire codes are fixed by the manifest format.
type Status int32

const (
	StatusExisting Status = iota
	StatusAdded
	StatusDeleted
)

func (s Status) String() string {
	switch s {
	case StatusExisting:
		return "EXISTING"
	case StatusAdded:
		return "ADDED"
	case StatusDeleted:
		return "DELETED"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// UnassignedSequenceNumber marks entries and manifests whose data sequence
// number is inherited from the snapshot that eventually commits them.
const UnassignedSequenceNumber int64 = -1

// ManifestEntry pairs a data file with its change status. A nil SnapshotID
// means the entry belongs to the snapshot that commits the manifest and is
// resolved by readers at that point.
type ManifestEntry struct {
	Status         Status
	SnapshotID     *int64
	SequenceNumber int64
	DataFile       DataFile
}

func newManifestEntry(status Status, snapshotID *int64, file DataFile) *ManifestEntry {
	return &ManifestEntry{
		Status:         status,
		SnapshotID:     snapshotID,
		SequenceNumber: UnassignedSequenceNumber,
		DataFile:       file,
	}
}
