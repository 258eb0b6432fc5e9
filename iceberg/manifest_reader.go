package iceberg

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/linkedin/goavro/v2"

	"floe/storage"
)

// ManifestReader iterates manifest entries in file order. Reading is lazy;
// callers drive it with Next and must Close the reader when done.
//
//	r, err := OpenManifest(ctx, in)
//	for r.Next() {
//		e := r.Entry()
//		...
//	}
//	if r.Err() != nil { ... }
type ManifestReader struct {
	rc    io.ReadCloser
	ocf   *goavro.OCFReader
	spec  *PartitionSpec
	entry *ManifestEntry
	err   error
}

// OpenManifest opens a manifest for reading. The table schema and partition
// spec are recovered from the container file metadata, so no table metadata
// is needed to interpret entries.
func OpenManifest(ctx context.Context, in storage.InputFile) (*ManifestReader, error) {
	rc, err := in.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening manifest %s: %w", in.Location(), err)
	}

	ocf, err := goavro.NewOCFReader(rc)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("reading manifest header %s: %w", in.Location(), err)
	}

	meta := ocf.MetaData()

	schemaJSON, ok := meta[metaSchemaKey]
	if !ok {
		rc.Close()
		return nil, fmt.Errorf("iceberg: manifest %s has no %q metadata", in.Location(), metaSchemaKey)
	}
	schema, err := ParseSchema(schemaJSON)
	if err != nil {
		rc.Close()
		return nil, err
	}

	specID, err := strconv.Atoi(string(meta[metaPartitionSpecIDKey]))
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("iceberg: manifest %s has no usable %q metadata: %w", in.Location(), metaPartitionSpecIDKey, err)
	}

	spec, err := ParsePartitionSpec(schema, specID, meta[metaPartitionSpecKey])
	if err != nil {
		rc.Close()
		return nil, err
	}

	return &ManifestReader{rc: rc, ocf: ocf, spec: spec}, nil
}

// Spec returns the partition spec the manifest was written with.
func (r *ManifestReader) Spec() *PartitionSpec {
	return r.spec
}

// Next advances to the next entry. It returns false at end of file or on
// the first error; Err tells the two apart.
func (r *ManifestReader) Next() bool {
	if r.err != nil {
		return false
	}

	if !r.ocf.Scan() {
		if err := r.ocf.Err(); err != nil {
			r.err = fmt.Errorf("scanning manifest: %w", err)
		}
		return false
	}

	datum, err := r.ocf.Read()
	if err != nil {
		r.err = fmt.Errorf("decoding manifest entry: %w", err)
		return false
	}

	entry, err := entryFromAvro(datum, r.spec)
	if err != nil {
		r.err = err
		return false
	}

	r.entry = entry
	return true
}

// Entry returns the current entry. It is valid after Next reports true and
// is replaced by the following Next call.
func (r *ManifestReader) Entry() *ManifestEntry {
	return r.entry
}

func (r *ManifestReader) Err() error {
	return r.err
}

func (r *ManifestReader) Close() error {
	return r.rc.Close()
}
