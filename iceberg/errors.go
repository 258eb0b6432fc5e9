package iceberg

import (
	"errors"
	"fmt"
)

var (
	// ErrWriterClosed is returned when an entry is appended to a manifest
	// writer after Close.
	ErrWriterClosed = errors.New("iceberg: manifest writer is closed")

	// ErrWriterNotClosed is returned when a manifest descriptor is requested
	// before the writer has been closed.
	ErrWriterNotClosed = errors.New("iceberg: manifest writer is not closed")

	// ErrUnsupportedTransform is wrapped by partition spec validation for
	// transforms the engine cannot evaluate.
	ErrUnsupportedTransform = errors.New("iceberg: unsupported partition transform")
)

// InvalidStatusError reports a manifest entry whose status is outside the set
// an operation accepts.
type InvalidStatusError struct {
	Status  Status
	Allowed []Status
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("iceberg: invalid manifest entry status: %s (allowed statuses: %v)", e.Status, e.Allowed)
}

// UnsupportedVersionError reports a table format version this writer cannot
// produce manifests for.
type UnsupportedVersionError struct {
	Version int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("iceberg: cannot write manifest for table version %d", e.Version)
}
