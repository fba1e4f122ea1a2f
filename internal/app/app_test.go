package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobrunner/geoflow/internal/adapters/watcher"
	"github.com/jobrunner/geoflow/internal/config"
	"github.com/jobrunner/geoflow/internal/domain"
)

const pointsWorkflow = `{"type":"Vector","operator":{"type":"MockPointSource","params":{"points":[{"x":1,"y":2}]}}}`

func testConfig(dir string) *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Host: "localhost", Port: 8080},
		Storage: config.StorageConfig{Type: "local", LocalPath: dir, Watch: true},
		Engine: config.EngineConfig{
			TileSize:            512,
			ExpressionCacheSize: 16,
			MaxTiles:            100,
			MaxFeatures:         100,
		},
		Projection: config.ProjectionConfig{Provider: config.ProjectionBuiltin},
		Sync:       config.SyncConfig{Enabled: true},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(t.Context(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		for _, w := range a.Watchers {
			_ = w.Stop()
		}
	})
	return a
}

func TestNew(t *testing.T) {
	a := newTestApp(t, testConfig(t.TempDir()))

	if a.SyncService == nil {
		t.Error("sync service not created")
	}
	if a.Metrics != nil || a.Store != nil || a.Consumer != nil {
		t.Error("disabled components were created")
	}
	if a.Datasets != nil {
		t.Error("dataset catalog created without a directory")
	}
	if len(a.Watchers) != 1 {
		t.Errorf("got %d watchers, want 1", len(a.Watchers))
	}
}

func TestNewUnknownStorage(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Storage.Type = "ftp"

	_, err := New(t.Context(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !errors.Is(err, domain.ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestWorkflowChangeHandler(t *testing.T) {
	dir := t.TempDir()
	a := newTestApp(t, testConfig(dir))
	ctx := context.Background()

	root, err := filepath.Abs(dir)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, "points.json")
	if err := os.WriteFile(path, []byte(pointsWorkflow), 0o600); err != nil {
		t.Fatal(err)
	}

	handle := a.workflowChangeHandler(root)
	if err := handle(ctx, watcher.Change{Path: path, Kind: watcher.Created}); err != nil {
		t.Fatalf("handling create: %v", err)
	}
	infos, _ := a.Registry.ListWorkflows(ctx)
	if len(infos) != 1 || infos[0].Source != "points.json" {
		t.Fatalf("workflows = %+v, want one from points.json", infos)
	}

	if err := handle(ctx, watcher.Change{Path: path, Kind: watcher.Removed}); err != nil {
		t.Fatalf("handling remove: %v", err)
	}
	if n := a.Registry.WorkflowCount(); n != 0 {
		t.Errorf("WorkflowCount() = %d, want 0", n)
	}
}

func TestHandleDatasetChangeRemovedUnknown(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Datasets.Directory = t.TempDir()
	a := newTestApp(t, cfg)

	change := watcher.Change{Path: filepath.Join(cfg.Datasets.Directory, "gone.gpkg"), Kind: watcher.Removed}
	if err := a.handleDatasetChange(context.Background(), change); err != nil {
		t.Errorf("handleDatasetChange() = %v, want nil", err)
	}
}
