package iceberg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"floe/storage"
)

type TableMetadata struct {
	FormatVersion   int               `json:"format-version"`
	TableUUID       string            `json:"table-uuid"`
	Location        string            `json:"location"`
	LastUpdated     int64             `json:"last-updated-ms"`
	LastColumnID    int               `json:"last-column-id"`
	SchemaID        int               `json:"schema-id"`
	Schemas         []Schema          `json:"schemas"`
	CurrentSchema   Schema            `json:"current-schema"`
	PartitionSpec   []PartitionSpec   `json:"partition-spec"`
	Properties      map[string]string `json:"properties"`
	CurrentSnapshot *Snapshot         `json:"current-snapshot"`
	Snapshots       []*Snapshot       `json:"snapshots"`
}

func NewTableMetadata(location string, schema Schema, spec *PartitionSpec) *TableMetadata {
	lastColumn := 0
	for _, f := range schema.Fields {
		if f.ID > lastColumn {
			lastColumn = f.ID
		}
	}

	return &TableMetadata{
		FormatVersion: 1,
		TableUUID:     uuid.New().String(),
		Location:      location,
		LastUpdated:   time.Now().UnixMilli(),
		LastColumnID:  lastColumn,
		SchemaID:      schema.SchemaID,
		Schemas:       []Schema{schema},
		CurrentSchema: schema,
		PartitionSpec: []PartitionSpec{*spec},
		Properties:    map[string]string{},
		Snapshots:     []*Snapshot{},
	}
}

// CurrentSpec rebinds the default partition spec to the current schema.
// Specs deserialized from JSON lose their schema binding and cannot be used
// for writing until rebound.
func (m *TableMetadata) CurrentSpec() (*PartitionSpec, error) {
	if len(m.PartitionSpec) == 0 {
		return Unpartitioned(&m.CurrentSchema), nil
	}
	spec := m.PartitionSpec[0]
	return NewPartitionSpec(&m.CurrentSchema, spec.SpecID, spec.Fields...)
}

// AppendSnapshot records a committed snapshot as current.
func (m *TableMetadata) AppendSnapshot(s *Snapshot) {
	m.CurrentSnapshot = s
	m.Snapshots = append(m.Snapshots, s)
	m.LastUpdated = s.TimestampMs
}

func ReadTableMetadata(ctx context.Context, store storage.Storage, path string) (*TableMetadata, error) {
	rc, err := store.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata: %w", err)
	}
	defer rc.Close()

	var metadata TableMetadata
	if err := json.NewDecoder(rc).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}

	return &metadata, nil
}

func WriteTableMetadata(ctx context.Context, store storage.Storage, path string, metadata *TableMetadata) error {
	buf := storage.NewBuffer()
	encoder := json.NewEncoder(buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(metadata); err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	if err := store.Write(ctx, path, buf.Reader()); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}

	return nil
}
