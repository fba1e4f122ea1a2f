package operators

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

var testShape = domain.GridShape{Rows: 2, Cols: 2}

var testGeoTransform = domain.NewGeoTransform(domain.Coordinate2D{X: 0, Y: 2}, 1, -1)

func interval(start, end int64) domain.TimeInterval {
	return domain.TimeInterval{Start: domain.TimeInstance(start), End: domain.TimeInstance(end)}
}

func u8Tile(time domain.TimeInterval, band int, data ...uint8) domain.RasterTile[uint8] {
	return domain.RasterTile[uint8]{
		Time:               time,
		Band:               band,
		GlobalGeoTransform: testGeoTransform,
		Grid:               domain.Grid[uint8]{Shape: testShape, Data: data},
		CacheHint:          domain.MaxCacheHint(),
	}
}

func rasterDescriptor(dt domain.RasterDataType, bands int) domain.RasterResultDescriptor {
	return domain.RasterResultDescriptor{
		DataType:         dt,
		SpatialReference: domain.EPSG(domain.SRIDWGS84),
		Measurement:      domain.UnitlessMeasurement(),
		Bands:            bands,
	}
}

func rasterQuery(bands domain.BandSelection) domain.RasterQueryRectangle {
	return domain.RasterQueryRectangle{
		SpatialBounds: domain.SpatialPartition2D{
			UpperLeft:  domain.Coordinate2D{X: 0, Y: 2},
			LowerRight: domain.Coordinate2D{X: 2, Y: 0},
		},
		TimeInterval:      interval(0, 100),
		SpatialResolution: domain.SpatialResolution{X: 1, Y: 1},
		Bands:             bands,
	}
}

func vectorQuery(minX, minY, maxX, maxY float64) domain.VectorQueryRectangle {
	return domain.VectorQueryRectangle{
		SpatialBounds: domain.BoundingBox2D{
			LowerLeft:  domain.Coordinate2D{X: minX, Y: minY},
			UpperRight: domain.Coordinate2D{X: maxX, Y: maxY},
		},
		TimeInterval:      domain.DefaultTimeInterval(),
		SpatialResolution: domain.SpatialResolution{X: 1, Y: 1},
	}
}

// queryU8 initializes op and collects the tiles of a query.
func queryU8(t *testing.T, op engine.RasterOperator, q domain.RasterQueryRectangle) []domain.RasterTile[uint8] {
	t.Helper()
	ctx := context.Background()

	init, err := op.Initialize(ctx, engine.NewMockExecutionContext(engine.DefaultTilingSpecification()))
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	typed, err := init.QueryProcessor()
	if err != nil {
		t.Fatalf("QueryProcessor failed: %v", err)
	}
	p, err := typed.U8()
	if err != nil {
		t.Fatalf("U8 failed: %v", err)
	}
	s, err := p.RasterQuery(ctx, q, engine.NewMockQueryContext(1024))
	if err != nil {
		t.Fatalf("RasterQuery failed: %v", err)
	}
	tiles, err := engine.Collect(ctx, s)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	return tiles
}

// mockTransformer shifts geometries by a fixed offset per direction. It supports
// WGS84 <-> Web Mercator only.
type mockTransformer struct {
	dx, dy   float64
	failWith error
	calls    int
}

func (m *mockTransformer) Transform(_ context.Context, g orb.Geometry, from, to domain.SpatialReference) (orb.Geometry, error) {
	m.calls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	if !m.IsSupported(from, to) {
		return nil, domain.ErrUnsupportedProjection
	}
	dx, dy := m.dx, m.dy
	if from.Code == domain.SRIDWebMercator {
		dx, dy = -dx, -dy
	}
	return shift(g, dx, dy), nil
}

func (m *mockTransformer) IsSupported(from, to domain.SpatialReference) bool {
	known := map[int]bool{domain.SRIDWGS84: true, domain.SRIDWebMercator: true}
	return known[from.Code] && known[to.Code]
}

func shift(g orb.Geometry, dx, dy float64) orb.Geometry {
	move := func(p orb.Point) orb.Point { return orb.Point{p[0] + dx, p[1] + dy} }
	ring := func(r []orb.Point) []orb.Point {
		out := make([]orb.Point, len(r))
		for i, p := range r {
			out[i] = move(p)
		}
		return out
	}
	switch v := g.(type) {
	case orb.MultiPoint:
		return orb.MultiPoint(ring(v))
	case orb.Polygon:
		out := make(orb.Polygon, len(v))
		for i, r := range v {
			out[i] = ring(r)
		}
		return out
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(v))
		for i, l := range v {
			out[i] = ring(l)
		}
		return out
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(v))
		for i, p := range v {
			out[i] = shift(p, dx, dy).(orb.Polygon)
		}
		return out
	}
	panic(fmt.Sprintf("shift: unexpected %T", g))
}

// mockFeatureRepository serves one dataset with in-memory features.
type mockFeatureRepository struct {
	dataset  *domain.Dataset
	features []output.LayerFeature
	queries  []queryCall
	err      error
}

type queryCall struct {
	limit, offset int
}

var _ output.FeatureRepository = (*mockFeatureRepository)(nil)

func (m *mockFeatureRepository) Open(_ context.Context, _ string) (*domain.Dataset, error) {
	return m.dataset, nil
}

func (m *mockFeatureRepository) Close(_ context.Context, _ string) error { return nil }

func (m *mockFeatureRepository) Dataset(id string) (*domain.Dataset, bool) {
	if m.dataset == nil || m.dataset.ID != id {
		return nil, false
	}
	return m.dataset, true
}

func (m *mockFeatureRepository) GetLayers(_ context.Context, _ string) ([]domain.Layer, error) {
	return m.dataset.Layers, nil
}

func (m *mockFeatureRepository) QueryBBox(_ context.Context, _, _ string, bbox domain.BoundingBox2D, limit, offset int) ([]output.LayerFeature, error) {
	m.queries = append(m.queries, queryCall{limit: limit, offset: offset})
	if m.err != nil {
		return nil, m.err
	}
	var matches []output.LayerFeature
	for _, f := range m.features {
		if f.Geometry.Bound().Intersects(bbox.Bound()) {
			matches = append(matches, f)
		}
	}
	if offset >= len(matches) {
		return nil, nil
	}
	return matches[offset:min(offset+limit, len(matches))], nil
}

func (m *mockFeatureRepository) CreateSpatialIndex(_ context.Context, _, _ string) error {
	return nil
}

// failingRaster emits n tiles and then fails.
func failingRaster(n int, err error) engine.RasterQueryProcessor[uint8] {
	return engine.RasterQueryFunc[uint8](func(context.Context, domain.RasterQueryRectangle, engine.QueryContext) (engine.Stream[domain.RasterTile[uint8]], error) {
		i := 0
		return engine.NewFuncStream(func(context.Context) (domain.RasterTile[uint8], error) {
			if i >= n {
				return domain.RasterTile[uint8]{}, err
			}
			i++
			return u8Tile(interval(int64(i), int64(i+1)), 0, 1, 2, 3, 4), nil
		}, nil), nil
	})
}

var errBoom = errors.New("boom")
