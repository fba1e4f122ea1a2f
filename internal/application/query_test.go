package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
	"github.com/jobrunner/geoflow/internal/operators"
)

func newTestQueryService(env *testEnv, cfg QueryServiceConfig) *QueryService {
	return NewQueryService(env.registry, env.metrics, testLogger(), cfg)
}

func register(t *testing.T, env *testEnv, def []byte) string {
	t.Helper()
	id, err := env.registry.Register(context.Background(), def, domain.WorkflowMetadata{}, SourceAPI)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return id
}

func TestQueryServiceDefaultConfig(t *testing.T) {
	svc := newTestQueryService(newTestEnv(), QueryServiceConfig{})

	if svc.cfg.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", svc.cfg.Timeout)
	}
	if svc.cfg.MaxTiles != 10000 {
		t.Errorf("MaxTiles = %d, want 10000", svc.cfg.MaxTiles)
	}
	if svc.cfg.MaxFeatures != 100000 {
		t.Errorf("MaxFeatures = %d, want 100000", svc.cfg.MaxFeatures)
	}
	if svc.cfg.ChunkByteSize != engine.DefaultChunkByteSize {
		t.Errorf("ChunkByteSize = %d, want %d", svc.cfg.ChunkByteSize, engine.DefaultChunkByteSize)
	}
}

func TestQueryServiceQueryRaster(t *testing.T) {
	env := newTestEnv()
	nd := uint8(0)
	withNoData := u8Tile(interval(10, 20), 0, 0, 6, 7, 8)
	withNoData.Grid.NoData = &nd
	id := register(t, env, rasterDefinition(t,
		u8Tile(interval(0, 10), 0, 1, 2, 3, 4),
		withNoData,
		u8Tile(interval(20, 30), 0),
	))

	svc := newTestQueryService(env, QueryServiceConfig{})
	result, err := svc.QueryRaster(context.Background(), id, rasterQuery())
	if err != nil {
		t.Fatalf("QueryRaster failed: %v", err)
	}

	if result.DataType != domain.U8 {
		t.Errorf("DataType = %v, want U8", result.DataType)
	}
	if len(result.Tiles) != 3 {
		t.Fatalf("len(Tiles) = %d, want 3", len(result.Tiles))
	}

	tests := []struct {
		name        string
		tile        domain.TileSummary
		validPixels int
		mean        float64
		empty       bool
	}{
		{"full tile", result.Tiles[0], 4, 2.5, false},
		{"no-data skipped", result.Tiles[1], 3, 7, false},
		{"empty tile", result.Tiles[2], 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tile.Empty != tt.empty {
				t.Errorf("Empty = %v, want %v", tt.tile.Empty, tt.empty)
			}
			if tt.tile.ValidPixels != tt.validPixels {
				t.Errorf("ValidPixels = %d, want %d", tt.tile.ValidPixels, tt.validPixels)
			}
			if tt.validPixels > 0 && (tt.tile.Mean == nil || *tt.tile.Mean != tt.mean) {
				t.Errorf("Mean = %v, want %v", tt.tile.Mean, tt.mean)
			}
		})
	}

	if env.metrics.tiles != 3 {
		t.Errorf("tiles emitted = %d, want 3", env.metrics.tiles)
	}
	if env.metrics.queries[true] != 1 {
		t.Errorf("successful queries = %d, want 1", env.metrics.queries[true])
	}
}

func TestQueryServiceQueryRasterLimit(t *testing.T) {
	env := newTestEnv()
	id := register(t, env, rasterDefinition(t,
		u8Tile(interval(0, 10), 0, 1, 2, 3, 4),
		u8Tile(interval(10, 20), 0, 1, 2, 3, 4),
	))

	svc := newTestQueryService(env, QueryServiceConfig{MaxTiles: 1})
	_, err := svc.QueryRaster(context.Background(), id, rasterQuery())
	if !errors.Is(err, domain.ErrResultLimitExceeded) {
		t.Fatalf("err = %v, want %v", err, domain.ErrResultLimitExceeded)
	}
	var qe *domain.QueryError
	if !errors.As(err, &qe) || qe.WorkflowID != id {
		t.Errorf("err = %v, want QueryError for %s", err, id)
	}
	if env.metrics.queries[false] != 1 {
		t.Errorf("failed queries = %d, want 1", env.metrics.queries[false])
	}
}

func TestQueryServiceQueryVector(t *testing.T) {
	env := newTestEnv()
	id := register(t, env, pointDefinition(t,
		domain.Coordinate2D{X: 1, Y: 2},
		domain.Coordinate2D{X: 3, Y: 4},
		domain.Coordinate2D{X: 5, Y: 6},
	))

	// One point per chunk
	svc := newTestQueryService(env, QueryServiceConfig{ChunkByteSize: 16})
	result, err := svc.QueryVector(context.Background(), id, vectorQuery())
	if err != nil {
		t.Fatalf("QueryVector failed: %v", err)
	}
	if result.DataType != domain.VectorMultiPoint {
		t.Errorf("DataType = %v, want MultiPoint", result.DataType)
	}
	if result.FeatureCount() != 3 {
		t.Fatalf("FeatureCount() = %d, want 3", result.FeatureCount())
	}
	if got := result.Features.Features[2].Geometry.Bound().Min; got.X() != 5 || got.Y() != 6 {
		t.Errorf("third feature at %v, want (5, 6)", got)
	}
	if env.metrics.features != 3 {
		t.Errorf("features emitted = %d, want 3", env.metrics.features)
	}

	limited := newTestQueryService(env, QueryServiceConfig{MaxFeatures: 2})
	if _, err := limited.QueryVector(context.Background(), id, vectorQuery()); !errors.Is(err, domain.ErrResultLimitExceeded) {
		t.Errorf("err = %v, want %v", err, domain.ErrResultLimitExceeded)
	}
}

func TestQueryServiceQueryPlot(t *testing.T) {
	env := newTestEnv()
	source := operators.NewMockRasterSource([]domain.RasterTile[uint8]{
		u8Tile(interval(0, 60_000), 0, 1, 2, 3, 4),
	}, rasterDescriptor(1))
	id := register(t, env, definition(t, domain.ResultPlot, &operators.TemporalRasterMeanPlot{
		Params:  operators.TemporalRasterMeanPlotParams{TimePosition: operators.TimeStart},
		Sources: engine.Sources{Rasters: []engine.RasterOperator{source}},
	}))

	q := vectorQuery()
	q.TimeInterval = interval(0, 120_000)
	raw, err := newTestQueryService(env, QueryServiceConfig{}).QueryPlot(context.Background(), id, q)
	if err != nil {
		t.Fatalf("QueryPlot failed: %v", err)
	}

	var chart operators.MeanChart
	if err := json.Unmarshal(raw, &chart); err != nil {
		t.Fatalf("invalid chart JSON: %v", err)
	}
	if len(chart.Values) != 1 || chart.Values[0] != 2.5 {
		t.Errorf("Values = %v, want [2.5]", chart.Values)
	}
}

func TestQueryServiceErrors(t *testing.T) {
	env := newTestEnv()
	rasterID := register(t, env, rasterDefinition(t))
	svc := newTestQueryService(env, QueryServiceConfig{})
	ctx := context.Background()

	invalid := rasterQuery()
	invalid.SpatialResolution = domain.SpatialResolution{X: 0, Y: 1}

	tests := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{"unknown workflow", func() error {
			_, err := svc.QueryRaster(ctx, "missing", rasterQuery())
			return err
		}, domain.ErrWorkflowNotFound},
		{"vector query on raster workflow", func() error {
			_, err := svc.QueryVector(ctx, rasterID, vectorQuery())
			return err
		}, domain.ErrInvalidInput},
		{"plot query on raster workflow", func() error {
			_, err := svc.QueryPlot(ctx, rasterID, vectorQuery())
			return err
		}, domain.ErrInvalidInput},
		{"invalid query", func() error {
			_, err := svc.QueryRaster(ctx, rasterID, invalid)
			return err
		}, domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
