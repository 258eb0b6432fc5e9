package iceberg

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floe/storage"
)

// failingStorage rejects every write while delegating reads to the wrapped
// store. It stands in for an object store that loses its backing bucket
// between opening a manifest and uploading the copy.
type failingStorage struct {
	storage.Storage
}

func (s *failingStorage) Write(ctx context.Context, path string, data io.Reader) error {
	return errors.New("write rejected")
}

// recordingHandler keeps every log record so tests can assert on them.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

func writeSourceManifest(t *testing.T, store storage.Storage, path string, build func(w *ManifestWriter)) *PartitionSpec {
	t.Helper()
	ctx := context.Background()
	spec := testSpec(t)
	w, err := NewManifestWriter(1, spec, storage.NewOutputFile(store, path), int64Ptr(7), nil)
	require.NoError(t, err)
	build(w)
	require.NoError(t, w.Close(ctx))
	return spec
}

func readAllEntries(t *testing.T, store storage.Storage, path string) (*ManifestReader, []ManifestEntry) {
	t.Helper()
	ctx := context.Background()
	r, err := OpenManifest(ctx, storage.NewInputFile(store, path))
	require.NoError(t, err)
	var entries []ManifestEntry
	for r.Next() {
		entries = append(entries, *r.Entry())
	}
	require.NoError(t, r.Err())
	require.NoError(t, r.Close())
	return r, entries
}

func TestManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	spec := testSpec(t)

	added := testFile("data/a.parquet", "eu", 10)
	added.Metrics = FileMetrics{
		ColumnSizes:     map[int]int64{1: 120, 2: 48},
		ValueCounts:     map[int]int64{1: 10, 2: 10},
		NullValueCounts: map[int]int64{3: 2},
		LowerBounds:     map[int][]byte{1: encodeLong(t, 1)},
		UpperBounds:     map[int][]byte{1: encodeLong(t, 10)},
	}
	existing := testFile("data/b.parquet", "us", 20)
	deleted := testFile("data/c.parquet", "", 3)
	deleted.Partition = []any{nil}

	w, err := NewManifestWriter(1, spec, storage.NewOutputFile(store, "m.avro"), int64Ptr(42), nil)
	require.NoError(t, err)
	require.NoError(t, w.Add(added))
	require.NoError(t, w.Existing(existing, 5))
	require.NoError(t, w.Delete(deleted))
	require.NoError(t, w.Close(ctx))

	r, entries := readAllEntries(t, store, "m.avro")
	require.Len(t, entries, 3)

	assert.Equal(t, spec.SpecID, r.Spec().SpecID)
	require.Len(t, r.Spec().Fields, 1)
	assert.Equal(t, "region", r.Spec().Fields[0].Name)

	assert.Equal(t, StatusAdded, entries[0].Status)
	require.NotNil(t, entries[0].SnapshotID)
	assert.Equal(t, int64(42), *entries[0].SnapshotID)
	assert.Equal(t, UnassignedSequenceNumber, entries[0].SequenceNumber)
	assert.Equal(t, added, entries[0].DataFile)

	assert.Equal(t, StatusExisting, entries[1].Status)
	require.NotNil(t, entries[1].SnapshotID)
	assert.Equal(t, int64(5), *entries[1].SnapshotID, "existing entries keep their origin snapshot")
	assert.Equal(t, existing, entries[1].DataFile)

	assert.Equal(t, StatusDeleted, entries[2].Status)
	require.NotNil(t, entries[2].SnapshotID)
	assert.Equal(t, int64(42), *entries[2].SnapshotID, "deletes are attributed to the deleting snapshot")
	assert.Equal(t, deleted, entries[2].DataFile)
}

func TestManifestRoundTripInheritedSnapshot(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	spec := testSpec(t)

	w, err := NewAppendManifestWriter(spec, storage.NewOutputFile(store, "m.avro"))
	require.NoError(t, err)
	require.NoError(t, w.Add(testFile("data/a.parquet", "eu", 1)))
	require.NoError(t, w.Close(ctx))

	_, entries := readAllEntries(t, store, "m.avro")
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].SnapshotID, "unbound entries stay null until commit assigns them")
}

func TestManifestRoundTripUnpartitioned(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	spec := Unpartitioned(testSchema())

	file := DataFile{
		FilePath:      "data/a.parquet",
		FileFormat:    FormatParquet,
		RecordCount:   4,
		FileSizeBytes: 400,
	}

	w, err := NewManifestWriter(1, spec, storage.NewOutputFile(store, "m.avro"), int64Ptr(11), nil)
	require.NoError(t, err)
	require.NoError(t, w.Add(file))
	require.NoError(t, w.Close(ctx))

	m, err := w.ToManifestFile()
	require.NoError(t, err)
	assert.Empty(t, m.Partitions)

	r, entries := readAllEntries(t, store, "m.avro")
	require.Len(t, entries, 1)
	assert.Empty(t, r.Spec().Fields)
	assert.Equal(t, file, entries[0].DataFile)
}

func TestManifestRoundTripBucketPartition(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())

	schema := testSchema()
	spec, err := NewPartitionSpec(schema, 2,
		PartitionField{SourceID: 1, Name: "id_bucket", Transform: "bucket[16]"})
	require.NoError(t, err)

	low := testFile("data/a.parquet", "", 6)
	low.Partition = []any{int32(3)}
	high := testFile("data/b.parquet", "", 4)
	high.Partition = []any{int32(9)}

	w, err := NewManifestWriter(1, spec, storage.NewOutputFile(store, "m.avro"), int64Ptr(42), nil)
	require.NoError(t, err)
	require.NoError(t, w.Add(low))
	require.NoError(t, w.Add(high))
	require.NoError(t, w.Close(ctx))

	m, err := w.ToManifestFile()
	require.NoError(t, err)
	require.Len(t, m.Partitions, 1)
	assert.Equal(t, []byte{3, 0, 0, 0}, m.Partitions[0].LowerBound)
	assert.Equal(t, []byte{9, 0, 0, 0}, m.Partitions[0].UpperBound)

	r, entries := readAllEntries(t, store, "m.avro")
	require.Len(t, entries, 2)

	require.Len(t, r.Spec().Fields, 1)
	assert.Equal(t, "bucket[16]", r.Spec().Fields[0].Transform)
	assert.Equal(t, []any{int32(3)}, entries[0].DataFile.Partition)
	assert.Equal(t, []any{int32(9)}, entries[1].DataFile.Partition)
}

func TestManifestRoundTripEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	spec := testSpec(t)

	w, err := NewManifestWriter(1, spec, storage.NewOutputFile(store, "m.avro"), int64Ptr(1), nil)
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx))

	_, entries := readAllEntries(t, store, "m.avro")
	assert.Empty(t, entries)
}

func TestCopyAppendManifestRejectsExisting(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())

	writeSourceManifest(t, store, "src.avro", func(w *ManifestWriter) {
		require.NoError(t, w.Add(testFile("data/a.parquet", "eu", 10)))
		require.NoError(t, w.Existing(testFile("data/b.parquet", "us", 20), 5))
	})

	r, err := OpenManifest(ctx, storage.NewInputFile(store, "src.avro"))
	require.NoError(t, err)
	defer r.Close()

	summary := NewSnapshotSummaryBuilder()
	_, err = CopyAppendManifest(ctx, r, storage.NewOutputFile(store, "dst.avro"), 900, summary)

	var sErr *InvalidStatusError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, StatusExisting, sErr.Status)
	assert.Equal(t, []Status{StatusAdded}, sErr.Allowed)
}

func TestCopyManifest(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())

	writeSourceManifest(t, store, "src.avro", func(w *ManifestWriter) {
		require.NoError(t, w.Add(testFile("data/a.parquet", "eu", 10)))
		require.NoError(t, w.Existing(testFile("data/b.parquet", "us", 20), 5))
	})

	r, err := OpenManifest(ctx, storage.NewInputFile(store, "src.avro"))
	require.NoError(t, err)
	defer r.Close()

	summary := NewSnapshotSummaryBuilder()
	copied, err := CopyManifest(ctx, r, storage.NewOutputFile(store, "dst.avro"), 900, summary,
		StatusAdded, StatusExisting, StatusDeleted)
	require.NoError(t, err)

	require.NotNil(t, copied.SnapshotID)
	assert.Equal(t, int64(900), *copied.SnapshotID)
	assert.Equal(t, int32(1), copied.AddedFilesCount)
	assert.Equal(t, int64(10), copied.AddedRowsCount)
	assert.Equal(t, int32(1), copied.ExistingFilesCount)
	assert.Equal(t, int64(20), copied.ExistingRowsCount)
	assert.Equal(t, int32(0), copied.DeletedFilesCount)

	built := summary.Build()
	assert.Equal(t, "1", built[SummaryAddedFiles], "only the added file is a change")
	assert.Equal(t, "10", built[SummaryAddedRecords])
	assert.NotContains(t, built, SummaryDeletedFiles)
	assert.Equal(t, "1", built[SummaryChangedPartitions])

	_, entries := readAllEntries(t, store, "dst.avro")
	require.Len(t, entries, 2)

	require.NotNil(t, entries[0].SnapshotID)
	assert.Equal(t, int64(900), *entries[0].SnapshotID, "added entries rebind to the copying snapshot")
	require.NotNil(t, entries[1].SnapshotID)
	assert.Equal(t, int64(5), *entries[1].SnapshotID, "existing entries keep their origin snapshot")
}

func TestCopyManifestCloseFailure(t *testing.T) {
	ctx := context.Background()
	base := storage.NewLocalStorage(t.TempDir())

	writeSourceManifest(t, base, "src.avro", func(w *ManifestWriter) {
		require.NoError(t, w.Add(testFile("data/a.parquet", "eu", 10)))
	})

	r, err := OpenManifest(ctx, storage.NewInputFile(base, "src.avro"))
	require.NoError(t, err)
	defer r.Close()

	failing := &failingStorage{Storage: base}
	summary := NewSnapshotSummaryBuilder()
	_, err = CopyAppendManifest(ctx, r, storage.NewOutputFile(failing, "dst.avro"), 900, summary)

	require.Error(t, err)
	assert.ErrorContains(t, err, "write rejected")
}

func TestCopyManifestCopyErrorWinsOverCloseError(t *testing.T) {
	ctx := context.Background()
	base := storage.NewLocalStorage(t.TempDir())

	writeSourceManifest(t, base, "src.avro", func(w *ManifestWriter) {
		require.NoError(t, w.Existing(testFile("data/b.parquet", "us", 20), 5))
	})

	r, err := OpenManifest(ctx, storage.NewInputFile(base, "src.avro"))
	require.NoError(t, err)
	defer r.Close()

	failing := &failingStorage{Storage: base}
	summary := NewSnapshotSummaryBuilder()
	_, err = CopyAppendManifest(ctx, r, storage.NewOutputFile(failing, "dst.avro"), 900, summary)

	var sErr *InvalidStatusError
	require.ErrorAs(t, err, &sErr, "the status failure should not be masked by the close failure")
	assert.Equal(t, StatusExisting, sErr.Status)
}

func TestCopyManifestLogsSuppressedCloseFailure(t *testing.T) {
	ctx := context.Background()
	base := storage.NewLocalStorage(t.TempDir())

	writeSourceManifest(t, base, "src.avro", func(w *ManifestWriter) {
		require.NoError(t, w.Existing(testFile("data/b.parquet", "us", 20), 5))
	})

	r, err := OpenManifest(ctx, storage.NewInputFile(base, "src.avro"))
	require.NoError(t, err)
	defer r.Close()

	h := &recordingHandler{}
	prev := slog.Default()
	slog.SetDefault(slog.New(h))
	defer slog.SetDefault(prev)

	failing := &failingStorage{Storage: base}
	summary := NewSnapshotSummaryBuilder()
	_, err = CopyAppendManifest(ctx, r, storage.NewOutputFile(failing, "dst.avro"), 900, summary)

	var sErr *InvalidStatusError
	require.ErrorAs(t, err, &sErr)

	require.Len(t, h.records, 1)
	assert.Equal(t, slog.LevelWarn, h.records[0].Level)
	assert.Equal(t, "suppressing manifest close failure", h.records[0].Message)
}
