package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStorage keeps objects under a root directory on the local
// filesystem. Paths use forward slashes regardless of platform.
type LocalStorage struct {
	root string
}

func NewLocalStorage(root string) *LocalStorage {
	return &LocalStorage{root: root}
}

func (l *LocalStorage) Write(ctx context.Context, name string, data io.Reader) error {
	fullPath := filepath.Join(l.root, filepath.FromSlash(name))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}

	if _, err := io.Copy(file, data); err != nil {
		file.Close()
		return fmt.Errorf("copying data: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}

	return nil
}

func (l *LocalStorage) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(l.root, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	return file, nil
}

func (l *LocalStorage) Head(ctx context.Context, name string) (int64, error) {
	info, err := os.Stat(filepath.Join(l.root, filepath.FromSlash(name)))
	if err != nil {
		return 0, fmt.Errorf("stating file: %w", err)
	}

	return info.Size(), nil
}

func (l *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing files: %w", err)
	}

	sort.Strings(files)
	return files, nil
}
