// Package storage provides object storage adapters serving workflow definition files.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/operators"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// Config selects and configures a storage backend.
type Config struct {
	Type  output.StorageType
	Local string
	S3    S3Config
	Azure AzureConfig
	HTTP  HTTPConfig
}

// New creates the storage backend selected by cfg.Type.
func New(ctx context.Context, cfg Config) (output.ObjectStorage, error) {
	switch cfg.Type {
	case output.StorageTypeLocal, "":
		return NewLocalStorage(cfg.Local), nil
	case output.StorageTypeS3:
		return NewS3Storage(ctx, cfg.S3)
	case output.StorageTypeAzure:
		return NewAzureStorage(cfg.Azure)
	case output.StorageTypeHTTP:
		return NewHTTPStorage(cfg.HTTP), nil
	default:
		return nil, fmt.Errorf("storage type %q: %w", cfg.Type, domain.ErrUnsupported)
	}
}

// relativeKey strips prefix from an object name and reports whether the object is a
// workflow definition file.
func relativeKey(prefix, name string) (string, bool) {
	key := strings.TrimPrefix(strings.TrimPrefix(name, prefix), "/")
	if key == "" || !operators.IsWorkflowFile(key) {
		return "", false
	}
	return key, true
}

// joinKey returns the full object name of key below prefix.
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}

// fetchTo streams the object key of a remote backend into the local file dest.
func fetchTo(ctx context.Context, src interface {
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)
}, key, dest string) error {
	body, err := src.GetReader(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()
	return copyToFile(dest, body)
}

func copyToFile(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}
	f, err := os.Create(dest) //#nosec G304 -- dest is a controlled local path
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
