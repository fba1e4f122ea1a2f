// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/jobrunner/geoflow/internal/adapters/events"
	"github.com/jobrunner/geoflow/internal/adapters/geopackage"
	httpAdapter "github.com/jobrunner/geoflow/internal/adapters/http"
	"github.com/jobrunner/geoflow/internal/adapters/metrics"
	"github.com/jobrunner/geoflow/internal/adapters/projection"
	"github.com/jobrunner/geoflow/internal/adapters/storage"
	"github.com/jobrunner/geoflow/internal/adapters/watcher"
	"github.com/jobrunner/geoflow/internal/adapters/workflowstore"
	"github.com/jobrunner/geoflow/internal/application"
	"github.com/jobrunner/geoflow/internal/config"
	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine/expression"
	"github.com/jobrunner/geoflow/internal/operators"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Storage       output.ObjectStorage
	Store         *workflowstore.RedisStore
	Repository    *geopackage.Repository
	Datasets      *application.DatasetCatalog
	Registry      *application.WorkflowRegistry
	QueryService  *application.QueryService
	HealthService *application.HealthService
	SyncService   *application.SyncService
	HTTPServer    *httpAdapter.Server
	Watchers      []*watcher.Watcher
	Consumer      *events.Consumer
	Metrics       *metrics.Collector

	closers []func() error
	wg      sync.WaitGroup
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector(cfg.Metrics.Namespace)
		metricsCollector = app.Metrics
	}

	objects, err := initStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	app.Storage = objects

	var store output.WorkflowStore
	if cfg.Registry.Redis.Enabled() {
		app.Store, err = workflowstore.NewRedisStore(ctx, workflowstore.RedisConfig{
			Address:  cfg.Registry.Redis.Address,
			Password: cfg.Registry.Redis.Password,
			DB:       cfg.Registry.Redis.DB,
			Prefix:   cfg.Registry.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing workflow store: %w", err)
		}
		app.closers = append(app.closers, app.Store.Close)
		store = app.Store
	}

	compiler := expression.NewCompiler(
		cfg.Engine.ExpressionCacheSize,
		expression.WithObserver(metricsCollector.IncExpressionCompilations),
	)

	transformer, err := app.initTransformer(ctx, cfg.Projection)
	if err != nil {
		return nil, fmt.Errorf("initializing projection: %w", err)
	}

	// Vector datasets are optional
	var features output.FeatureRepository
	if cfg.Datasets.Directory != "" {
		app.Repository = geopackage.NewRepository()
		app.Datasets = application.NewDatasetCatalog(app.Repository, logger)
		features = app.Repository
	}

	tiling := domain.TilingSpecification{
		TileShape: domain.GridShape{Rows: cfg.Engine.TileSize, Cols: cfg.Engine.TileSize},
	}
	ectx := application.NewExecutionContext(tiling, compiler, transformer, features, logger)

	app.Registry = application.NewWorkflowRegistry(ectx, objects, store, metricsCollector, logger)

	app.QueryService = application.NewQueryService(app.Registry, metricsCollector, logger, application.QueryServiceConfig{
		Timeout:        cfg.Engine.QueryTimeout,
		MaxTiles:       cfg.Engine.MaxTiles,
		MaxFeatures:    cfg.Engine.MaxFeatures,
		ChunkByteSize:  cfg.Engine.ChunkByteSize,
		PrefetchBuffer: cfg.Engine.PrefetchBuffer,
	})

	app.HealthService = application.NewHealthService(app.Registry, app.Datasets)

	services := httpAdapter.Services{
		Queries:   app.QueryService,
		Workflows: app.Registry,
		Health:    app.HealthService,
	}
	if cfg.Sync.Enabled {
		app.SyncService = application.NewSyncService(app.Registry, cfg.Sync.Interval, logger)
		services.Sync = app.SyncService
	}
	if app.Metrics != nil {
		services.Metrics = app.Metrics
	}
	app.HTTPServer = httpAdapter.NewServer(cfg.Server, services, cfg.Metrics.Path, logger)

	if err := app.initWatchers(); err != nil {
		logger.Warn("failed to initialize file watcher", "error", err)
	}

	if cfg.Events.Enabled {
		app.Consumer = events.New(events.Config{
			Brokers:             cfg.Events.Brokers,
			Topic:               cfg.Events.Topic,
			GroupID:             cfg.Events.GroupID,
			InitialOffsetOldest: cfg.Events.InitialOffsetOldest,
			Source:              application.SourceEvent,
		}, app.Registry, logger)
	}

	return app, nil
}

// Start loads datasets and workflows, starts the background components and serves
// HTTP until the server is shut down.
func (a *App) Start(ctx context.Context) error {
	if a.Datasets != nil {
		if err := a.Datasets.LoadDirectory(ctx, a.Config.Datasets.Directory); err != nil {
			a.Logger.Warn("failed to load datasets", "error", err)
		}
	}

	// Datasets must be open before workflows reading them initialize
	if err := a.Registry.Restore(ctx); err != nil {
		a.Logger.Warn("failed to restore workflows", "error", err)
	}
	if err := a.Registry.LoadAll(ctx); err != nil {
		a.Logger.Warn("failed to load workflows", "error", err)
	}

	for _, w := range a.Watchers {
		if err := w.Start(ctx); err != nil {
			a.Logger.Warn("failed to start file watcher", "error", err)
		}
	}

	if a.SyncService != nil {
		a.SyncService.Start(ctx)
	}

	if a.Consumer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.Consumer.Start(ctx); err != nil {
				a.Logger.Error("workflow event consumer stopped", "error", err)
			}
		}()
	}

	if err := a.HTTPServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down all components. The consumer stops when the
// context passed to Start is canceled.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	for _, w := range a.Watchers {
		_ = w.Stop()
	}

	if a.SyncService != nil {
		a.SyncService.Stop()
	}

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.Logger.Warn("workflow event consumer did not stop in time")
	}

	if a.Datasets != nil {
		for _, ds := range a.Datasets.List() {
			if err := a.Datasets.Unload(ctx, ds.ID); err != nil {
				a.Logger.Error("failed to close dataset", "id", ds.ID, "error", err)
			}
		}
	}

	var errs []error
	for _, closeFn := range a.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

func (a *App) initTransformer(ctx context.Context, cfg config.ProjectionConfig) (output.CoordinateTransformer, error) {
	switch cfg.Provider {
	case config.ProjectionSpatiaLite:
		t, err := geopackage.NewTransformer(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, t.Close)
		return t, nil
	default:
		return projection.NewBuiltin(), nil
	}
}

// initWatchers creates the hot-reload watchers for local workflow files and datasets.
func (a *App) initWatchers() error {
	cfg := a.Config
	if cfg.Storage.Watch && cfg.Storage.Type == string(output.StorageTypeLocal) {
		root, err := filepath.Abs(cfg.Storage.LocalPath)
		if err != nil {
			return err
		}
		w, err := watcher.New(watcher.Config{
			Paths:    []string{root},
			Debounce: cfg.Storage.Debounce,
			Match:    operators.IsWorkflowFile,
		}, a.workflowChangeHandler(root), a.Logger)
		if err != nil {
			return err
		}
		a.Watchers = append(a.Watchers, w)
	}

	if cfg.Datasets.Watch && a.Datasets != nil {
		w, err := watcher.New(watcher.Config{
			Paths:    []string{cfg.Datasets.Directory},
			Debounce: cfg.Storage.Debounce,
			Match:    application.IsDatasetFile,
		}, a.handleDatasetChange, a.Logger)
		if err != nil {
			return err
		}
		a.Watchers = append(a.Watchers, w)
	}
	return nil
}

// workflowChangeHandler maps changed files below root to storage keys and reloads them.
func (a *App) workflowChangeHandler(root string) watcher.Handler {
	return func(ctx context.Context, change watcher.Change) error {
		rel, err := filepath.Rel(root, change.Path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		a.Logger.Info("workflow file changed", "key", key, "change", change.Kind.String())

		if change.Kind == watcher.Removed {
			a.Registry.UnloadSource(ctx, key)
			return nil
		}
		return a.Registry.ReloadObject(ctx, key)
	}
}

func (a *App) handleDatasetChange(ctx context.Context, change watcher.Change) error {
	a.Logger.Info("dataset file changed", "path", change.Path, "change", change.Kind.String())

	id := geopackage.DeriveDatasetID(change.Path)
	if err := a.Datasets.Unload(ctx, id); err != nil && !errors.Is(err, domain.ErrDatasetNotFound) {
		a.Logger.Warn("failed to close dataset", "id", id, "error", err)
	}
	if change.Kind == watcher.Removed {
		return nil
	}
	return a.Datasets.Load(ctx, change.Path)
}

// initStorage initializes the configured workflow storage backend.
func initStorage(ctx context.Context, cfg config.StorageConfig) (output.ObjectStorage, error) {
	return storage.New(ctx, storage.Config{
		Type:  output.StorageType(cfg.Type),
		Local: cfg.LocalPath,
		S3: storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		},
		Azure: storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		},
		HTTP: storage.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
		},
	})
}
