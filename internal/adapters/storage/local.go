package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// LocalStorage implements ObjectStorage for a local workflow directory.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage adapter.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// List returns all workflow files below the base directory. Keys use forward slashes.
func (s *LocalStorage) List(_ context.Context) ([]output.StorageObject, error) {
	var objects []output.StorageObject

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		key, ok := relativeKey("", filepath.ToSlash(rel))
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, output.StorageObject{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return objects, nil
}

// Download copies a file to the destination.
func (s *LocalStorage) Download(_ context.Context, key string, dest string) error {
	src, err := s.FullPath(key)
	if err != nil {
		return err
	}
	if src == dest {
		return nil
	}

	f, err := os.Open(src) //#nosec G304 -- key is checked to stay below basePath
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return copyToFile(dest, f)
}

// GetReader returns a reader for the given object.
func (s *LocalStorage) GetReader(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.FullPath(key)
	if err != nil {
		return nil, err
	}
	return os.Open(path) //#nosec G304 -- key is checked to stay below basePath
}

// Exists checks if a file exists.
func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.FullPath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// FullPath returns the full path for a key. Keys escaping the base directory are rejected.
func (s *LocalStorage) FullPath(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("key %q: %w", key, domain.ErrInvalidInput)
	}
	return filepath.Join(s.basePath, rel), nil
}
