package application

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// DatasetCatalog opens the GeoPackage datasets that GeoPackageSource operators read.
type DatasetCatalog struct {
	mu       sync.RWMutex
	datasets map[string]*domain.Dataset
	repo     output.FeatureRepository
	logger   *slog.Logger
}

// NewDatasetCatalog creates an empty dataset catalog.
func NewDatasetCatalog(repo output.FeatureRepository, logger *slog.Logger) *DatasetCatalog {
	return &DatasetCatalog{
		datasets: make(map[string]*domain.Dataset),
		repo:     repo,
		logger:   logger,
	}
}

// LoadDirectory opens every GeoPackage file in dir. Files that fail to open are logged and skipped.
func (c *DatasetCatalog) LoadDirectory(ctx context.Context, dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !IsDatasetFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := c.Load(ctx, path); err != nil {
			c.logger.Error("failed to load dataset", "path", path, "error", err)
		}
	}
	return nil
}

// Load opens a dataset and creates spatial indices for its layers.
func (c *DatasetCatalog) Load(ctx context.Context, path string) error {
	c.logger.Info("loading dataset", "path", path)

	ds, err := c.repo.Open(ctx, path)
	if err != nil {
		return err
	}

	indexed := true
	for i, layer := range ds.Layers {
		if layer.HasIndex {
			continue
		}
		c.logger.Debug("creating spatial index", "dataset", ds.ID, "layer", layer.Name)
		if err := c.repo.CreateSpatialIndex(ctx, ds.ID, layer.Name); err != nil {
			c.logger.Warn("failed to create spatial index", "dataset", ds.ID, "layer", layer.Name, "error", err)
			indexed = false
			continue
		}
		ds.Layers[i].HasIndex = true
	}
	ds.Indexed = indexed
	ds.LoadedAt = time.Now()

	c.mu.Lock()
	c.datasets[ds.ID] = ds
	c.mu.Unlock()

	c.logger.Info("dataset loaded", "id", ds.ID, "layers", len(ds.Layers))
	return nil
}

// Unload closes a dataset.
func (c *DatasetCatalog) Unload(ctx context.Context, id string) error {
	c.mu.Lock()
	_, ok := c.datasets[id]
	delete(c.datasets, id)
	c.mu.Unlock()

	if !ok {
		return domain.ErrDatasetNotFound
	}
	return c.repo.Close(ctx, id)
}

// List returns the open datasets ordered by ID.
func (c *DatasetCatalog) List() []domain.Dataset {
	c.mu.RLock()
	out := make([]domain.Dataset, 0, len(c.datasets))
	for _, ds := range c.datasets {
		out = append(out, *ds)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsDatasetFile reports whether path names a GeoPackage file.
func IsDatasetFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gpkg")
}
