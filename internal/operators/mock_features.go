package operators

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
)

// MockFeatureCollectionSourceParams holds inline GeoJSON collections. Feature times are
// read from the numeric "start" and "end" properties, in milliseconds.
type MockFeatureCollectionSourceParams struct {
	DataType         domain.VectorDataType        `json:"dataType"`
	SpatialReference domain.SpatialReference      `json:"spatialReference"`
	Collections      []*geojson.FeatureCollection `json:"collections"`
}

// MockFeatureCollectionSource emits fixed feature collections of any geometry kind.
type MockFeatureCollectionSource struct {
	Params MockFeatureCollectionSourceParams
}

// TypeName implements engine.VectorOperator.
func (m *MockFeatureCollectionSource) TypeName() string { return TypeMockFeatureCollectionSource }

func (m *MockFeatureCollectionSource) params() any             { return m.Params }
func (m *MockFeatureCollectionSource) sources() engine.Sources { return engine.Sources{} }

// Initialize implements engine.VectorOperator.
func (m *MockFeatureCollectionSource) Initialize(_ context.Context, _ engine.ExecutionContext) (engine.InitializedVectorOperator, error) {
	name, err := engine.ComputeCanonicalName(TypeMockFeatureCollectionSource, m.Params)
	if err != nil {
		return nil, err
	}

	desc := domain.VectorResultDescriptor{
		DataType:         m.Params.DataType,
		SpatialReference: m.Params.SpatialReference,
		Columns:          map[string]domain.ColumnInfo{},
	}

	var (
		bound orb.Bound
		found bool
		times []*domain.TimeInterval
	)
	for _, c := range m.Params.Collections {
		if c == nil {
			continue
		}
		for _, f := range c.Features {
			for k, v := range f.Properties {
				if k == "start" || k == "end" {
					continue
				}
				if t, ok := columnType(v); ok {
					desc.Columns[k] = domain.ColumnInfo{DataType: t, Measurement: domain.UnitlessMeasurement()}
				}
			}
			ti := featureTime(f.Properties)
			times = append(times, &ti)
			if f.Geometry == nil || m.Params.DataType == domain.VectorData {
				continue
			}
			if found {
				bound = bound.Union(f.Geometry.Bound())
			} else {
				bound, found = f.Geometry.Bound(), true
			}
		}
	}
	if found {
		box := domain.BoundingBoxFromBound(bound)
		desc.BBox = &box
	}
	desc.Time = domain.TimeIntervalExtent(times)

	return &initializedMockFeatures{params: m.Params, desc: desc, name: name}, nil
}

type initializedMockFeatures struct {
	params MockFeatureCollectionSourceParams
	desc   domain.VectorResultDescriptor
	name   engine.CanonicalName
}

func (m *initializedMockFeatures) ResultDescriptor() domain.VectorResultDescriptor { return m.desc }
func (m *initializedMockFeatures) CanonicalName() engine.CanonicalName           { return m.name }

func (m *initializedMockFeatures) QueryProcessor() (engine.TypedVectorQueryProcessor, error) {
	switch m.params.DataType {
	case domain.VectorData:
		return mockFeatureProcessor[domain.NoGeometry](m.params.Collections)
	case domain.VectorMultiPoint:
		return mockFeatureProcessor[orb.MultiPoint](m.params.Collections)
	case domain.VectorMultiLineString:
		return mockFeatureProcessor[orb.MultiLineString](m.params.Collections)
	case domain.VectorMultiPolygon:
		return mockFeatureProcessor[orb.MultiPolygon](m.params.Collections)
	}
	return engine.TypedVectorQueryProcessor{}, fmt.Errorf("vector data type %v: %w", m.params.DataType, domain.ErrUnsupported)
}

func mockFeatureProcessor[G domain.Geometry](collections []*geojson.FeatureCollection) (engine.TypedVectorQueryProcessor, error) {
	typed := make([]domain.FeatureCollection[G], 0, len(collections))
	for ci, c := range collections {
		out := domain.FeatureCollection[G]{CacheHint: domain.MaxCacheHint()}
		if c != nil {
			for fi, f := range c.Features {
				g, ok := promote[G](f.Geometry)
				if !ok {
					return engine.TypedVectorQueryProcessor{}, &domain.TypeMismatchError{
						Expected: domain.VectorDataTypeOf[G]().String(),
						Found:    fmt.Sprintf("collections[%d].features[%d]: %T", ci, fi, f.Geometry),
					}
				}
				out.Features = append(out.Features, domain.Feature[G]{
					ID:         int64(fi),
					Geometry:   g,
					Time:       featureTime(f.Properties),
					Properties: withoutTime(f.Properties),
				})
			}
		}
		typed = append(typed, out)
	}

	return engine.NewTypedVectorProcessor[G](engine.VectorQueryFunc[G](
		func(_ context.Context, q domain.VectorQueryRectangle, _ engine.QueryContext) (engine.Stream[domain.FeatureCollection[G]], error) {
			if err := q.Validate(); err != nil {
				return nil, err
			}
			out := make([]domain.FeatureCollection[G], 0, len(typed))
			for _, c := range typed {
				filtered := c.Filter(func(f domain.Feature[G]) bool {
					return q.TimeInterval.Intersects(f.Time) && intersectsQuery(f.Geometry, q.SpatialBounds)
				})
				if !filtered.IsEmpty() {
					out = append(out, filtered)
				}
			}
			return engine.SliceStream(out), nil
		})), nil
}

func featureTime(props geojson.Properties) domain.TimeInterval {
	t := domain.DefaultTimeInterval()
	if v, ok := props["start"].(float64); ok {
		t.Start = domain.TimeInstance(v)
	}
	if v, ok := props["end"].(float64); ok {
		t.End = domain.TimeInstance(v)
	}
	if t.Validate() != nil {
		return domain.DefaultTimeInterval()
	}
	return t
}

func withoutTime(props geojson.Properties) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k != "start" && k != "end" {
			out[k] = v
		}
	}
	return out
}
