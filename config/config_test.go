package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
warehouse:
  path: /data/warehouse
storage:
  backend: s3
  s3:
    bucket: lake
    prefix: tables/events
    region: us-east-1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/warehouse", cfg.Warehouse.Path)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "lake", cfg.Storage.S3.Bucket)
	assert.Equal(t, "tables/events", cfg.Storage.S3.Prefix)
	assert.Equal(t, "us-east-1", cfg.Storage.S3.Region)
	assert.Empty(t, cfg.Storage.S3.Endpoint)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, ".", cfg.Warehouse.Path)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
