package iceberg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotSummaryBuilder(t *testing.T) {
	spec := testSpec(t)
	b := NewSnapshotSummaryBuilder()

	b.AddedFile(spec, testFile("data/a.parquet", "eu", 10))
	b.AddedFile(spec, testFile("data/b.parquet", "eu", 5))
	b.DeletedFile(spec, testFile("data/c.parquet", "us", 3))

	m := b.Build()
	assert.Equal(t, OperationAppend, m["operation"])
	assert.Equal(t, "2", m[SummaryAddedFiles])
	assert.Equal(t, "15", m[SummaryAddedRecords])
	assert.Equal(t, "1", m[SummaryDeletedFiles])
	assert.Equal(t, "3", m[SummaryDeletedRecords])
	assert.Equal(t, "2", m[SummaryChangedPartitions], "eu and us both changed")
}

func TestSnapshotSummaryBuilderOperation(t *testing.T) {
	b := NewSnapshotSummaryBuilder()
	b.SetOperation(OperationOverwrite)

	m := b.Build()
	assert.Equal(t, OperationOverwrite, m["operation"])
}

func TestSnapshotSummaryBuilderOmitsZeroCounts(t *testing.T) {
	b := NewSnapshotSummaryBuilder()

	m := b.Build()
	require.Len(t, m, 2)
	assert.Equal(t, OperationAppend, m["operation"])
	assert.Equal(t, "0", m[SummaryChangedPartitions])
	assert.NotContains(t, m, SummaryAddedFiles)
	assert.NotContains(t, m, SummaryDeletedFiles)
}

func TestSnapshotSummaryBuilderSamePartitionOnce(t *testing.T) {
	spec := testSpec(t)
	b := NewSnapshotSummaryBuilder()

	b.AddedFile(spec, testFile("data/a.parquet", "eu", 1))
	b.AddedFile(spec, testFile("data/b.parquet", "eu", 1))
	b.DeletedFile(spec, testFile("data/c.parquet", "eu", 1))

	m := b.Build()
	assert.Equal(t, "1", m[SummaryChangedPartitions])
}
