// Package main provides the entry point for the geoflow workflow service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jobrunner/geoflow/internal/adapters/geopackage"
	"github.com/jobrunner/geoflow/internal/adapters/projection"
	"github.com/jobrunner/geoflow/internal/app"
	"github.com/jobrunner/geoflow/internal/application"
	"github.com/jobrunner/geoflow/internal/config"
	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine/expression"
	"github.com/jobrunner/geoflow/internal/logging"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "geoflow",
	Short: "geoflow - geospatial workflow query service",
	Long: `geoflow registers declarative raster and vector workflows and answers
spatio-temporal queries against them.

Features:
  - Tiled raster processing with expressions and band stacking
  - Vector sources from GeoPackage datasets with reprojection
  - Workflow definitions from local files, AWS S3, Azure or HTTP
  - Workflow persistence in Redis and registration via Kafka events
  - Prometheus metrics`,
	SilenceUsage: true,
	RunE:         runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("geoflow %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <workflow>",
	Short: "Initialize a workflow file and print its ID and result descriptor",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Run a single query against a workflow file and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (json, text, console)")

	// Server flags
	rootCmd.Flags().String("host", "", "server host")
	rootCmd.Flags().Int("port", 0, "server port")

	// Storage flags
	rootCmd.Flags().String("storage-type", "", "storage type (local, s3, azure, http)")
	rootCmd.Flags().String("storage-path", "", "local workflow directory")
	rootCmd.Flags().Bool("watch", false, "reload local workflow files on change")
	rootCmd.Flags().String("datasets", "", "GeoPackage dataset directory")

	runCmd.Flags().String("bbox", "", "query bounds as minx,miny,maxx,maxy")
	runCmd.Flags().Float64("resolution", 1, "raster resolution in units per pixel")
	runCmd.Flags().String("datasets", "", "GeoPackage dataset directory")
	validateCmd.Flags().String("datasets", "", "GeoPackage dataset directory")
	_ = runCmd.MarkFlagRequired("bbox")

	rootCmd.AddCommand(versionCmd, validateCmd, runCmd)
}

// loadConfig reads the configuration and applies the flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("storage-type") {
		cfg.Storage.Type, _ = flags.GetString("storage-type")
	}
	if flags.Changed("storage-path") {
		cfg.Storage.LocalPath, _ = flags.GetString("storage-path")
	}
	if flags.Changed("watch") {
		cfg.Storage.Watch, _ = flags.GetBool("watch")
	}
	if flags.Changed("datasets") {
		cfg.Datasets.Directory, _ = flags.GetString("datasets")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}, nil)
	slog.SetDefault(logger)

	logger.Info("starting geoflow",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage_type", cfg.Storage.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- application.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

// localEngine is an in-process registry and query service without storage or persistence.
type localEngine struct {
	registry *application.WorkflowRegistry
	queries  *application.QueryService
}

func newLocalEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*localEngine, error) {
	var features output.FeatureRepository
	if cfg.Datasets.Directory != "" {
		repo := geopackage.NewRepository()
		if err := application.NewDatasetCatalog(repo, logger).LoadDirectory(ctx, cfg.Datasets.Directory); err != nil {
			return nil, err
		}
		features = repo
	}

	tiling := domain.TilingSpecification{
		TileShape: domain.GridShape{Rows: cfg.Engine.TileSize, Cols: cfg.Engine.TileSize},
	}
	ectx := application.NewExecutionContext(tiling, expression.NewCompiler(cfg.Engine.ExpressionCacheSize),
		projection.NewBuiltin(), features, logger)
	registry := application.NewWorkflowRegistry(ectx, nil, nil, &output.NoOpMetrics{}, logger)

	return &localEngine{
		registry: registry,
		queries: application.NewQueryService(registry, &output.NoOpMetrics{}, logger, application.QueryServiceConfig{
			Timeout:        cfg.Engine.QueryTimeout,
			MaxTiles:       cfg.Engine.MaxTiles,
			MaxFeatures:    cfg.Engine.MaxFeatures,
			ChunkByteSize:  cfg.Engine.ChunkByteSize,
			PrefetchBuffer: cfg.Engine.PrefetchBuffer,
		}),
	}, nil
}

func cliLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.Config{Level: cfg.Logging.Level, Format: logging.FormatConsole}, os.Stderr)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	eng, err := newLocalEngine(ctx, cfg, cliLogger(cfg))
	if err != nil {
		return err
	}
	id, err := eng.registry.LoadFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("invalid workflow: %w", err)
	}
	descriptor, err := eng.registry.ResultDescriptor(ctx, id)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"id": id, "resultDescriptor": descriptor})
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	bboxFlag, _ := cmd.Flags().GetString("bbox")
	bbox, err := parseBBox(bboxFlag)
	if err != nil {
		return err
	}
	resolution, _ := cmd.Flags().GetFloat64("resolution")

	ctx := cmd.Context()
	eng, err := newLocalEngine(ctx, cfg, cliLogger(cfg))
	if err != nil {
		return err
	}

	id, err := eng.registry.LoadFile(ctx, args[0])
	if err != nil {
		return err
	}
	info, err := eng.registry.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}

	var result any
	switch info.Type {
	case domain.ResultRaster:
		result, err = eng.queries.QueryRaster(ctx, id, domain.RasterQueryRectangle{
			SpatialBounds: domain.SpatialPartition2D{
				UpperLeft:  domain.Coordinate2D{X: bbox.LowerLeft.X, Y: bbox.UpperRight.Y},
				LowerRight: domain.Coordinate2D{X: bbox.UpperRight.X, Y: bbox.LowerLeft.Y},
			},
			TimeInterval:      domain.DefaultTimeInterval(),
			SpatialResolution: domain.SpatialResolution{X: resolution, Y: resolution},
			Bands:             domain.FirstBand(),
		})
	case domain.ResultVector:
		result, err = eng.queries.QueryVector(ctx, id, vectorQuery(bbox, resolution))
	case domain.ResultPlot:
		result, err = eng.queries.QueryPlot(ctx, id, vectorQuery(bbox, resolution))
	}
	if err != nil {
		return err
	}
	return printJSON(result)
}

func vectorQuery(bbox domain.BoundingBox2D, resolution float64) domain.VectorQueryRectangle {
	return domain.VectorQueryRectangle{
		SpatialBounds:     bbox,
		TimeInterval:      domain.DefaultTimeInterval(),
		SpatialResolution: domain.SpatialResolution{X: resolution, Y: resolution},
	}
}

// parseBBox parses "minx,miny,maxx,maxy".
func parseBBox(s string) (domain.BoundingBox2D, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.BoundingBox2D{}, fmt.Errorf("bbox %q: want minx,miny,maxx,maxy: %w", s, domain.ErrInvalidInput)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.BoundingBox2D{}, fmt.Errorf("bbox %q: %w", s, domain.ErrInvalidInput)
		}
		v[i] = f
	}
	return domain.NewBoundingBox2D(v[0], v[1], v[2], v[3])
}
