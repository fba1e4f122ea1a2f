package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
	"github.com/jobrunner/geoflow/internal/logging"
	"github.com/jobrunner/geoflow/internal/operators"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// QueryService runs queries against registered workflows.
type QueryService struct {
	registry *WorkflowRegistry
	metrics  output.MetricsCollector
	logger   *slog.Logger
	cfg      QueryServiceConfig
}

// QueryServiceConfig holds configuration for the query service.
type QueryServiceConfig struct {
	Timeout        time.Duration
	MaxTiles       int
	MaxFeatures    int
	ChunkByteSize  int
	PrefetchBuffer int
}

// NewQueryService creates a new query service.
func NewQueryService(
	registry *WorkflowRegistry,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg QueryServiceConfig,
) *QueryService {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTiles == 0 {
		cfg.MaxTiles = 10000
	}
	if cfg.MaxFeatures == 0 {
		cfg.MaxFeatures = 100000
	}
	if cfg.ChunkByteSize == 0 {
		cfg.ChunkByteSize = engine.DefaultChunkByteSize
	}
	if cfg.PrefetchBuffer == 0 {
		cfg.PrefetchBuffer = engine.DefaultPrefetchBuffer
	}

	return &QueryService{
		registry: registry,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// QueryRaster runs a raster workflow and summarizes every emitted tile.
func (s *QueryService) QueryRaster(ctx context.Context, workflowID string, query domain.RasterQueryRectangle) (*domain.RasterResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	w, err := s.workflow(ctx, workflowID, domain.ResultRaster)
	if err != nil {
		return nil, err
	}

	ctx, qctx, cancel := s.begin(ctx, workflowID)
	defer cancel()
	start := time.Now()

	proc, err := w.Raster.QueryProcessor()
	if err != nil {
		return nil, s.fail(ctx, workflowID, start, err)
	}
	tiles, err := summarizeRaster(ctx, proc, query, qctx, s.cfg.MaxTiles)
	if err != nil {
		return nil, s.fail(ctx, workflowID, start, err)
	}

	s.metrics.AddTilesEmitted(workflowID, len(tiles))
	s.succeed(ctx, workflowID, start, "tiles", len(tiles))

	return &domain.RasterResult{
		WorkflowID: workflowID,
		DataType:   proc.DataType(),
		Tiles:      tiles,
		QueryTime:  time.Since(start),
	}, nil
}

// QueryVector runs a vector workflow and collects the emitted features as GeoJSON.
func (s *QueryService) QueryVector(ctx context.Context, workflowID string, query domain.VectorQueryRectangle) (*domain.VectorResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	w, err := s.workflow(ctx, workflowID, domain.ResultVector)
	if err != nil {
		return nil, err
	}

	ctx, qctx, cancel := s.begin(ctx, workflowID)
	defer cancel()
	start := time.Now()

	proc, err := w.Vector.QueryProcessor()
	if err != nil {
		return nil, s.fail(ctx, workflowID, start, err)
	}
	fc, err := collectVector(ctx, proc, query, qctx, s.cfg.MaxFeatures)
	if err != nil {
		return nil, s.fail(ctx, workflowID, start, err)
	}

	s.metrics.AddFeaturesEmitted(workflowID, len(fc.Features))
	s.succeed(ctx, workflowID, start, "features", len(fc.Features))

	return &domain.VectorResult{
		WorkflowID: workflowID,
		DataType:   proc.DataType(),
		Features:   fc,
		QueryTime:  time.Since(start),
	}, nil
}

// QueryPlot runs a plot workflow and returns its chart document.
func (s *QueryService) QueryPlot(ctx context.Context, workflowID string, query domain.PlotQueryRectangle) (json.RawMessage, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	w, err := s.workflow(ctx, workflowID, domain.ResultPlot)
	if err != nil {
		return nil, err
	}

	ctx, qctx, cancel := s.begin(ctx, workflowID)
	defer cancel()
	start := time.Now()

	proc, err := w.Plot.QueryProcessor()
	if err != nil {
		return nil, s.fail(ctx, workflowID, start, err)
	}
	doc, err := proc.Processor.PlotQuery(ctx, query, qctx)
	if err != nil {
		return nil, s.fail(ctx, workflowID, start, err)
	}

	s.succeed(ctx, workflowID, start, "format", proc.Format)
	return doc, nil
}

func (s *QueryService) workflow(ctx context.Context, id string, want domain.ResultType) (*operators.InitializedWorkflow, error) {
	w, err := s.registry.initialized(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Type != want {
		return nil, &domain.TypeMismatchError{Expected: string(want), Found: string(w.Type)}
	}
	return w, nil
}

// begin derives the query context, deadline and log fields of one query.
func (s *QueryService) begin(ctx context.Context, workflowID string) (context.Context, engine.QueryContext, context.CancelFunc) {
	queryID := uuid.NewString()
	ctx = logging.WithQueryID(logging.WithWorkflowID(ctx, workflowID), queryID)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	return ctx, engine.NewQueryContext(queryID, s.cfg.ChunkByteSize, s.cfg.PrefetchBuffer), cancel
}

func (s *QueryService) succeed(ctx context.Context, workflowID string, start time.Time, args ...any) {
	s.metrics.IncQueryCount(workflowID, true)
	s.metrics.ObserveQueryDuration(workflowID, time.Since(start))
	s.logger.DebugContext(ctx, "query finished", append(args, "duration", time.Since(start))...)
}

func (s *QueryService) fail(ctx context.Context, workflowID string, start time.Time, err error) error {
	s.metrics.IncQueryCount(workflowID, false)
	s.metrics.ObserveQueryDuration(workflowID, time.Since(start))
	s.logger.WarnContext(ctx, "query failed", "error", err)

	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("query timed out after %s: %w", s.cfg.Timeout, domain.ErrUnavailable)
	}
	var qe *domain.QueryError
	if errors.As(err, &qe) {
		if qe.WorkflowID == "" {
			qe.WorkflowID = workflowID
		}
		return err
	}
	return &domain.QueryError{WorkflowID: workflowID, Err: err}
}

func summarizeRaster(ctx context.Context, p engine.TypedRasterQueryProcessor, q domain.RasterQueryRectangle, qctx engine.QueryContext, limit int) ([]domain.TileSummary, error) {
	switch p.DataType() {
	case domain.U8:
		return summarizeTiles[uint8](ctx, p, q, qctx, limit)
	case domain.U16:
		return summarizeTiles[uint16](ctx, p, q, qctx, limit)
	case domain.U32:
		return summarizeTiles[uint32](ctx, p, q, qctx, limit)
	case domain.U64:
		return summarizeTiles[uint64](ctx, p, q, qctx, limit)
	case domain.I8:
		return summarizeTiles[int8](ctx, p, q, qctx, limit)
	case domain.I16:
		return summarizeTiles[int16](ctx, p, q, qctx, limit)
	case domain.I32:
		return summarizeTiles[int32](ctx, p, q, qctx, limit)
	case domain.I64:
		return summarizeTiles[int64](ctx, p, q, qctx, limit)
	case domain.F32:
		return summarizeTiles[float32](ctx, p, q, qctx, limit)
	case domain.F64:
		return summarizeTiles[float64](ctx, p, q, qctx, limit)
	default:
		return nil, fmt.Errorf("raster data type %s: %w", p.DataType(), domain.ErrUnsupported)
	}
}

func summarizeTiles[T domain.Pixel](ctx context.Context, t engine.TypedRasterQueryProcessor, q domain.RasterQueryRectangle, qctx engine.QueryContext, limit int) ([]domain.TileSummary, error) {
	p, err := engine.RasterProcessorAs[T](t)
	if err != nil {
		return nil, err
	}
	stream, err := p.RasterQuery(ctx, q, qctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	tiles := []domain.TileSummary{}
	for {
		tile, err := stream.Read(ctx)
		if errors.Is(err, engine.EOF) {
			return tiles, nil
		}
		if err != nil {
			return nil, err
		}
		if len(tiles) >= limit {
			return nil, fmt.Errorf("more than %d tiles: %w", limit, domain.ErrResultLimitExceeded)
		}
		tiles = append(tiles, domain.SummarizeTile(tile))
	}
}

func collectVector(ctx context.Context, p engine.TypedVectorQueryProcessor, q domain.VectorQueryRectangle, qctx engine.QueryContext, limit int) (*geojson.FeatureCollection, error) {
	switch p.DataType() {
	case domain.VectorData:
		return collectFeatures[domain.NoGeometry](ctx, p, q, qctx, limit)
	case domain.VectorMultiPoint:
		return collectFeatures[orb.MultiPoint](ctx, p, q, qctx, limit)
	case domain.VectorMultiLineString:
		return collectFeatures[orb.MultiLineString](ctx, p, q, qctx, limit)
	case domain.VectorMultiPolygon:
		return collectFeatures[orb.MultiPolygon](ctx, p, q, qctx, limit)
	default:
		return nil, fmt.Errorf("vector data type %s: %w", p.DataType(), domain.ErrUnsupported)
	}
}

func collectFeatures[G domain.Geometry](ctx context.Context, t engine.TypedVectorQueryProcessor, q domain.VectorQueryRectangle, qctx engine.QueryContext, limit int) (*geojson.FeatureCollection, error) {
	p, err := engine.VectorProcessorAs[G](t)
	if err != nil {
		return nil, err
	}
	stream, err := p.VectorQuery(ctx, q, qctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	fc := geojson.NewFeatureCollection()
	for {
		c, err := stream.Read(ctx)
		if errors.Is(err, engine.EOF) {
			return fc, nil
		}
		if err != nil {
			return nil, err
		}
		if len(fc.Features)+c.Len() > limit {
			return nil, fmt.Errorf("more than %d features: %w", limit, domain.ErrResultLimitExceeded)
		}
		domain.AppendGeoJSON(fc, c)
	}
}
