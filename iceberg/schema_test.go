package iceberg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaFieldLookup(t *testing.T) {
	schema := testSchema()

	f, ok := schema.FieldByID(2)
	require.True(t, ok)
	assert.Equal(t, "region", f.Name)

	f, ok = schema.FieldByName("ts")
	require.True(t, ok)
	assert.Equal(t, 4, f.ID)
	assert.Equal(t, "timestamp", f.Type)

	_, ok = schema.FieldByID(99)
	assert.False(t, ok)

	_, ok = schema.FieldByName("missing")
	assert.False(t, ok)
}
