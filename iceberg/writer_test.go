package iceberg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floe/storage"
)

func TestTableWriterFlush(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())
	schema := testSchema()
	spec := testSpec(t)

	tw, err := NewTableWriter(store, schema, spec, nil)
	require.NoError(t, err)

	ts := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC).UnixMicro()
	rows := []map[string]any{
		{"id": int64(1), "region": "eu", "amount": 10.5, "ts": ts},
		{"id": int64(2), "region": "eu", "amount": 7.25, "ts": ts},
		{"id": int64(3), "region": "us", "amount": 1.0, "ts": ts},
		{"id": int64(4), "region": "us", "ts": ts},
	}
	for _, row := range rows {
		require.NoError(t, tw.Write(row))
	}

	summary := NewSnapshotSummaryBuilder()
	manifest, err := tw.Flush(ctx, 500, summary)
	require.NoError(t, err)

	require.NotNil(t, manifest.SnapshotID)
	assert.Equal(t, int64(500), *manifest.SnapshotID)
	assert.Equal(t, int32(2), manifest.AddedFilesCount)
	assert.Equal(t, int64(4), manifest.AddedRowsCount)

	built := summary.Build()
	assert.Equal(t, "2", built[SummaryAddedFiles])
	assert.Equal(t, "4", built[SummaryAddedRecords])
	assert.Equal(t, "2", built[SummaryChangedPartitions])

	r, err := OpenManifest(ctx, storage.NewInputFile(store, manifest.ManifestPath))
	require.NoError(t, err)
	defer r.Close()

	byPartition := map[string]DataFile{}
	for r.Next() {
		e := r.Entry()
		assert.Equal(t, StatusAdded, e.Status)
		require.NotNil(t, e.SnapshotID)
		assert.Equal(t, int64(500), *e.SnapshotID)
		require.Len(t, e.DataFile.Partition, 1)
		byPartition[e.DataFile.Partition[0].(string)] = e.DataFile
	}
	require.NoError(t, r.Err())
	require.Len(t, byPartition, 2)

	eu := byPartition["eu"]
	assert.Equal(t, int64(2), eu.RecordCount)

	size, err := store.Head(ctx, eu.FilePath)
	require.NoError(t, err)
	assert.Equal(t, eu.FileSizeBytes, size, "descriptor size should match the uploaded object")

	assert.Equal(t, int64(2), eu.Metrics.ValueCounts[1])
	lo, err := decodeValue("long", eu.Metrics.LowerBounds[1])
	require.NoError(t, err)
	hi, err := decodeValue("long", eu.Metrics.UpperBounds[1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), lo)
	assert.Equal(t, int64(2), hi)
	assert.Equal(t, []byte("eu"), eu.Metrics.LowerBounds[2])
	assert.Equal(t, int64(0), eu.Metrics.NullValueCounts[3])

	us := byPartition["us"]
	assert.Equal(t, int64(2), us.RecordCount)
	assert.Equal(t, int64(2), us.Metrics.ValueCounts[3], "value counts include nulls")
	assert.Equal(t, int64(1), us.Metrics.NullValueCounts[3], "one row had no amount")
}

func TestTableWriterFlushResetsBatch(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStorage(t.TempDir())

	tw, err := NewTableWriter(store, testSchema(), testSpec(t), nil)
	require.NoError(t, err)

	ts := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC).UnixMicro()
	require.NoError(t, tw.Write(map[string]any{"id": int64(1), "region": "eu", "ts": ts}))

	first, err := tw.Flush(ctx, 1, NewSnapshotSummaryBuilder())
	require.NoError(t, err)
	assert.Equal(t, int32(1), first.AddedFilesCount)

	second, err := tw.Flush(ctx, 2, NewSnapshotSummaryBuilder())
	require.NoError(t, err)
	assert.Equal(t, int32(0), second.AddedFilesCount)
	assert.Equal(t, int64(0), second.AddedRowsCount)
}

func TestTableWriterMissingRequiredField(t *testing.T) {
	store := storage.NewLocalStorage(t.TempDir())

	tw, err := NewTableWriter(store, testSchema(), testSpec(t), nil)
	require.NoError(t, err)

	err = tw.Write(map[string]any{"id": int64(1), "ts": int64(0)})
	assert.ErrorContains(t, err, "missing required field")
}

func TestNewTableWriterUnknownType(t *testing.T) {
	store := storage.NewLocalStorage(t.TempDir())
	schema := &Schema{Fields: []Field{{ID: 1, Name: "u", Type: "uuid", Required: true}}}

	_, err := NewTableWriter(store, schema, Unpartitioned(schema), nil)
	assert.ErrorContains(t, err, "unsupported type")
}
