package operators

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
)

// bytesPerPoint is the size of one coordinate pair when sizing chunks.
const bytesPerPoint = 16

// MockPointSourceParams lists the points to emit.
type MockPointSourceParams struct {
	Points []domain.Coordinate2D `json:"points"`
}

// MockPointSource emits one single-point feature per coordinate in WGS84.
type MockPointSource struct {
	Params MockPointSourceParams
}

// TypeName implements engine.VectorOperator.
func (m *MockPointSource) TypeName() string { return TypeMockPointSource }

func (m *MockPointSource) params() any             { return m.Params }
func (m *MockPointSource) sources() engine.Sources { return engine.Sources{} }

// Initialize implements engine.VectorOperator.
func (m *MockPointSource) Initialize(_ context.Context, _ engine.ExecutionContext) (engine.InitializedVectorOperator, error) {
	name, err := engine.ComputeCanonicalName(TypeMockPointSource, m.Params)
	if err != nil {
		return nil, err
	}

	desc := domain.VectorResultDescriptor{
		DataType:         domain.VectorMultiPoint,
		SpatialReference: domain.EPSG(domain.SRIDWGS84),
		Columns:          map[string]domain.ColumnInfo{},
	}
	if len(m.Params.Points) > 0 {
		var mp orb.MultiPoint
		for _, p := range m.Params.Points {
			mp = append(mp, orb.Point{p.X, p.Y})
		}
		box := domain.BoundingBoxFromBound(mp.Bound())
		desc.BBox = &box
	}

	return &initializedMockPoints{points: m.Params.Points, desc: desc, name: name}, nil
}

type initializedMockPoints struct {
	points []domain.Coordinate2D
	desc   domain.VectorResultDescriptor
	name   engine.CanonicalName
}

func (m *initializedMockPoints) ResultDescriptor() domain.VectorResultDescriptor { return m.desc }
func (m *initializedMockPoints) CanonicalName() engine.CanonicalName           { return m.name }

func (m *initializedMockPoints) QueryProcessor() (engine.TypedVectorQueryProcessor, error) {
	return engine.NewTypedVectorProcessor[orb.MultiPoint](&MockPointProcessor{points: m.points}), nil
}

// MockPointProcessor emits its points in chunks sized by the query's chunk byte size.
type MockPointProcessor struct {
	points []domain.Coordinate2D
}

// NewMockPointProcessor returns a processor for the given points.
func NewMockPointProcessor(points []domain.Coordinate2D) *MockPointProcessor {
	return &MockPointProcessor{points: points}
}

// VectorQuery implements engine.VectorQueryProcessor.
func (p *MockPointProcessor) VectorQuery(_ context.Context, _ domain.VectorQueryRectangle, qctx engine.QueryContext) (engine.Stream[domain.FeatureCollection[orb.MultiPoint]], error) {
	chunkSize := max(1, qctx.ChunkByteSize()/bytesPerPoint)

	var chunks []domain.FeatureCollection[orb.MultiPoint]
	for start := 0; start < len(p.points); start += chunkSize {
		end := min(start+chunkSize, len(p.points))
		c := domain.FeatureCollection[orb.MultiPoint]{
			Features:  make([]domain.Feature[orb.MultiPoint], 0, end-start),
			CacheHint: domain.MaxCacheHint(),
		}
		for _, pt := range p.points[start:end] {
			c.Features = append(c.Features, domain.Feature[orb.MultiPoint]{
				Geometry: orb.MultiPoint{{pt.X, pt.Y}},
				Time:     domain.DefaultTimeInterval(),
			})
		}
		chunks = append(chunks, c)
	}
	return engine.SliceStream(chunks), nil
}
