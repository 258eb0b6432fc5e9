package storage

import (
	"context"
	"io"
)

// Storage is the object store the table format writes through. Write always
// replaces the object at filepath, never appends to it.
type Storage interface {
	Write(ctx context.Context, filepath string, data io.Reader) error
	Read(ctx context.Context, filepath string) (io.ReadCloser, error)
	Head(ctx context.Context, filepath string) (int64, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// OutputFile names a location a writer will replace when it closes.
type OutputFile struct {
	store    Storage
	location string
}

func NewOutputFile(store Storage, location string) OutputFile {
	return OutputFile{store: store, location: location}
}

func (f OutputFile) Location() string {
	return f.location
}

func (f OutputFile) Write(ctx context.Context, data io.Reader) error {
	return f.store.Write(ctx, f.location, data)
}

func (f OutputFile) ToInputFile() InputFile {
	return InputFile{store: f.store, location: f.location}
}

// InputFile names an object expected to exist.
type InputFile struct {
	store    Storage
	location string
}

func NewInputFile(store Storage, location string) InputFile {
	return InputFile{store: store, location: location}
}

func (f InputFile) Location() string {
	return f.location
}

func (f InputFile) Open(ctx context.Context) (io.ReadCloser, error) {
	return f.store.Read(ctx, f.location)
}

func (f InputFile) Length(ctx context.Context) (int64, error) {
	return f.store.Head(ctx, f.location)
}
