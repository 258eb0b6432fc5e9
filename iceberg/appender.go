package iceberg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/linkedin/goavro/v2"

	"floe/storage"
)

// Metrics reports the observable size of a manifest while it is being
// written. SizeBytes grows as blocks are flushed to the staging buffer.
type Metrics struct {
	RecordCount int64
	SizeBytes   int64
}

// manifestAppender encodes manifest entries into an Avro container file.
// The container is staged in memory and replaces the output object when the
// appender closes, so readers never observe a partially written manifest.
type manifestAppender struct {
	out     storage.OutputFile
	buf     *storage.Buffer
	ocf     *goavro.OCFWriter
	spec    *PartitionSpec
	records int64
}

func newManifestAppender(spec *PartitionSpec, out storage.OutputFile) (*manifestAppender, error) {
	entrySchema, err := manifestEntrySchema(spec)
	if err != nil {
		return nil, err
	}

	schemaJSON, err := json.Marshal(spec.Schema())
	if err != nil {
		return nil, fmt.Errorf("encoding schema metadata: %w", err)
	}
	specJSON, err := json.Marshal(spec.Fields)
	if err != nil {
		return nil, fmt.Errorf("encoding partition spec metadata: %w", err)
	}

	buf := storage.NewBuffer()
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               buf,
		Schema:          entrySchema,
		CompressionName: goavro.CompressionDeflateLabel,
		MetaData: map[string][]byte{
			metaSchemaKey:          schemaJSON,
			metaPartitionSpecKey:   specJSON,
			metaPartitionSpecIDKey: []byte(strconv.Itoa(spec.SpecID)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating avro writer: %w", err)
	}

	return &manifestAppender{
		out:  out,
		buf:  buf,
		ocf:  ocf,
		spec: spec,
	}, nil
}

func (a *manifestAppender) Append(e *ManifestEntry) error {
	datum, err := entryToAvro(e, a.spec)
	if err != nil {
		return err
	}
	if err := a.ocf.Append([]any{datum}); err != nil {
		return fmt.Errorf("appending manifest entry: %w", err)
	}
	a.records++
	return nil
}

func (a *manifestAppender) Metrics() Metrics {
	return Metrics{RecordCount: a.records, SizeBytes: a.buf.Size()}
}

func (a *manifestAppender) Length() int64 {
	return a.buf.Size()
}

// Close uploads the staged container. Callers must not call it twice.
func (a *manifestAppender) Close(ctx context.Context) error {
	if err := a.out.Write(ctx, a.buf.Reader()); err != nil {
		return fmt.Errorf("writing manifest %s: %w", a.out.Location(), err)
	}
	return nil
}
