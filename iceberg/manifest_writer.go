package iceberg

import (
	"context"
	"fmt"
	"log/slog"

	"floe/storage"
)

// ManifestWriter accumulates manifest entries for a single partition spec
// and writes them as one manifest file. Entries are encoded eagerly;
// rolling back an individual append is not possible. Writers are not safe
// for concurrent use.
type ManifestWriter struct {
	out        storage.OutputFile
	spec       *PartitionSpec
	appender   *manifestAppender
	snapshotID *int64
	stats      *partitionSummary
	logger     *slog.Logger

	closed bool

	addedFiles    int32
	addedRows     int64
	existingFiles int32
	existingRows  int64
	deletedFiles  int32
	deletedRows   int64
}

// NewManifestWriter returns a writer producing a manifest for the given
// table format version. Only version 1 is supported; requests for other
// versions fail with UnsupportedVersionError. A nil snapshotID leaves added
// and deleted entries to be claimed by the committing snapshot; a nil
// logger falls back to slog.Default().
func NewManifestWriter(formatVersion int, spec *PartitionSpec, out storage.OutputFile, snapshotID *int64, logger *slog.Logger) (*ManifestWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch formatVersion {
	case 1:
		appender, err := newManifestAppender(spec, out)
		if err != nil {
			return nil, err
		}
		return &ManifestWriter{
			out:        out,
			spec:       spec,
			appender:   appender,
			snapshotID: snapshotID,
			stats:      newPartitionSummary(spec),
			logger:     logger,
		}, nil
	default:
		return nil, &UnsupportedVersionError{Version: formatVersion}
	}
}

// NewAppendManifestWriter returns a writer for manifests of newly appended
// files. Appended manifests never pin a snapshot id up front; readers
// resolve it from the snapshot that commits the manifest.
func NewAppendManifestWriter(spec *PartitionSpec, out storage.OutputFile) (*ManifestWriter, error) {
	return NewManifestWriter(1, spec, out, nil, nil)
}

// Add records a data file as added by the writer's snapshot.
func (w *ManifestWriter) Add(file DataFile) error {
	return w.append(newManifestEntry(StatusAdded, w.snapshotID, file))
}

// add re-emits a read entry as added, claimed by this writer's snapshot.
func (w *ManifestWriter) add(e *ManifestEntry) error {
	return w.append(newManifestEntry(StatusAdded, w.snapshotID, e.DataFile))
}

// Existing records a data file that is already part of the table, keeping
// the id of the snapshot that originally added it.
func (w *ManifestWriter) Existing(file DataFile, snapshotID int64) error {
	id := snapshotID
	return w.append(newManifestEntry(StatusExisting, &id, file))
}

// existing re-emits a read entry, preserving its origin snapshot and
// sequence number.
func (w *ManifestWriter) existing(e *ManifestEntry) error {
	entry := newManifestEntry(StatusExisting, e.SnapshotID, e.DataFile)
	entry.SequenceNumber = e.SequenceNumber
	return w.append(entry)
}

// Delete records a data file as removed by the writer's snapshot. The
// deletion is attributed to this writer's snapshot even when the entry came
// from an older manifest, so readers can tell when the file became
// unreachable.
func (w *ManifestWriter) Delete(file DataFile) error {
	return w.append(newManifestEntry(StatusDeleted, w.snapshotID, file))
}

func (w *ManifestWriter) delete(e *ManifestEntry) error {
	return w.append(newManifestEntry(StatusDeleted, w.snapshotID, e.DataFile))
}

func (w *ManifestWriter) append(e *ManifestEntry) error {
	if w.closed {
		return ErrWriterClosed
	}

	switch e.Status {
	case StatusAdded:
		w.addedFiles++
		w.addedRows += e.DataFile.RecordCount
	case StatusExisting:
		w.existingFiles++
		w.existingRows += e.DataFile.RecordCount
	case StatusDeleted:
		w.deletedFiles++
		w.deletedRows += e.DataFile.RecordCount
	default:
		return &InvalidStatusError{
			Status:  e.Status,
			Allowed: []Status{StatusExisting, StatusAdded, StatusDeleted},
		}
	}

	if err := w.stats.update(e.DataFile.Partition); err != nil {
		return err
	}
	return w.appender.Append(e)
}

// Metrics returns the appender's running metrics.
func (w *ManifestWriter) Metrics() Metrics {
	return w.appender.Metrics()
}

// Length returns the byte length of the manifest written so far; after
// Close it is the final file length.
func (w *ManifestWriter) Length() int64 {
	return w.appender.Length()
}

// Close flushes the manifest to its output location. Appends after Close
// fail with ErrWriterClosed; closing twice is a no-op.
func (w *ManifestWriter) Close(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.appender.Close(ctx)
}

// ToManifestFile returns the descriptor for the written manifest. The
// writer must be closed first so the length and entry counts are final.
// Sequence numbers stay unassigned until a snapshot commits the manifest.
func (w *ManifestWriter) ToManifestFile() (ManifestFile, error) {
	if !w.closed {
		return ManifestFile{}, ErrWriterNotClosed
	}

	summaries, err := w.stats.summaries()
	if err != nil {
		return ManifestFile{}, err
	}

	return ManifestFile{
		ManifestPath:       w.out.Location(),
		ManifestLength:     w.appender.Length(),
		PartitionSpecID:    w.spec.SpecID,
		SequenceNumber:     UnassignedSequenceNumber,
		MinSequenceNumber:  UnassignedSequenceNumber,
		SnapshotID:         w.snapshotID,
		AddedFilesCount:    w.addedFiles,
		AddedRowsCount:     w.addedRows,
		ExistingFilesCount: w.existingFiles,
		ExistingRowsCount:  w.existingRows,
		DeletedFilesCount:  w.deletedFiles,
		DeletedRowsCount:   w.deletedRows,
		Partitions:         summaries,
	}, nil
}

// CopyAppendManifest rewrites a manifest of appended files under a new
// snapshot id. Every entry must carry ADDED status; the copy takes
// ownership of each file and folds it into summary.
func CopyAppendManifest(ctx context.Context, r *ManifestReader, out storage.OutputFile, snapshotID int64, summary *SnapshotSummaryBuilder) (ManifestFile, error) {
	return copyManifest(ctx, r, out, snapshotID, summary, StatusAdded)
}

// CopyManifest rewrites a manifest under a new snapshot id, accepting only
// the allowed entry statuses. ADDED entries are claimed by snapshotID,
// EXISTING entries keep their origin snapshot, and DELETED entries are
// attributed to snapshotID. Added and deleted files are folded into
// summary. The reader is left drained but open.
func CopyManifest(ctx context.Context, r *ManifestReader, out storage.OutputFile, snapshotID int64, summary *SnapshotSummaryBuilder, allowed ...Status) (ManifestFile, error) {
	return copyManifest(ctx, r, out, snapshotID, summary, allowed...)
}

func copyManifest(ctx context.Context, r *ManifestReader, out storage.OutputFile, snapshotID int64, summary *SnapshotSummaryBuilder, allowed ...Status) (ManifestFile, error) {
	w, err := NewManifestWriter(1, r.Spec(), out, &snapshotID, nil)
	if err != nil {
		return ManifestFile{}, err
	}

	copyErr := copyEntries(r, w, summary, allowed)

	// The first failure wins: a close error after a copy failure is logged
	// and suppressed so it cannot mask the original cause.
	if closeErr := w.Close(ctx); closeErr != nil {
		if copyErr == nil {
			return ManifestFile{}, fmt.Errorf("closing manifest %s: %w", out.Location(), closeErr)
		}
		w.logger.Warn("suppressing manifest close failure", "path", out.Location(), "error", closeErr)
	}
	if copyErr != nil {
		return ManifestFile{}, copyErr
	}

	return w.ToManifestFile()
}

func copyEntries(r *ManifestReader, w *ManifestWriter, summary *SnapshotSummaryBuilder, allowed []Status) error {
	for r.Next() {
		e := r.Entry()
		if !statusAllowed(e.Status, allowed) {
			return &InvalidStatusError{Status: e.Status, Allowed: allowed}
		}

		var err error
		switch e.Status {
		case StatusAdded:
			summary.AddedFile(r.Spec(), e.DataFile)
			err = w.add(e)
		case StatusExisting:
			err = w.existing(e)
		case StatusDeleted:
			summary.DeletedFile(r.Spec(), e.DataFile)
			err = w.delete(e)
		}
		if err != nil {
			return err
		}
	}
	return r.Err()
}

func statusAllowed(s Status, allowed []Status) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
