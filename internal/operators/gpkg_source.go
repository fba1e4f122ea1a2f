package operators

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// estimatedFeatureBytes sizes GeoPackage pages from the chunk byte size.
const estimatedFeatureBytes = 256

// GeoPackageSourceParams selects a layer of a loaded dataset.
type GeoPackageSourceParams struct {
	Dataset string `json:"dataset"`
	Layer   string `json:"layer"`
}

// GeoPackageSource reads the features of a GeoPackage layer.
type GeoPackageSource struct {
	Params GeoPackageSourceParams
}

// TypeName implements engine.VectorOperator.
func (g *GeoPackageSource) TypeName() string { return TypeGeoPackageSource }

func (g *GeoPackageSource) params() any             { return g.Params }
func (g *GeoPackageSource) sources() engine.Sources { return engine.Sources{} }

// Initialize implements engine.VectorOperator.
func (g *GeoPackageSource) Initialize(_ context.Context, ectx engine.ExecutionContext) (engine.InitializedVectorOperator, error) {
	repo, err := ectx.FeatureRepository()
	if err != nil {
		return nil, err
	}

	ds, ok := repo.Dataset(g.Params.Dataset)
	if !ok {
		return nil, fmt.Errorf("%s: %w", g.Params.Dataset, domain.ErrDatasetNotFound)
	}
	layer, ok := ds.GetLayer(g.Params.Layer)
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", g.Params.Dataset, g.Params.Layer, domain.ErrLayerNotFound)
	}

	name, err := engine.ComputeCanonicalName(TypeGeoPackageSource, g.Params)
	if err != nil {
		return nil, err
	}

	desc := domain.VectorResultDescriptor{
		DataType:         layer.VectorDataType(),
		SpatialReference: layer.SpatialReference(),
		Columns:          map[string]domain.ColumnInfo{},
		BBox:             layer.Extent,
	}

	ectx.Logger().Debug("Initialized GeoPackage source",
		"dataset", g.Params.Dataset,
		"layer", g.Params.Layer,
		"geometry_type", layer.GeometryType,
		"srid", layer.SRID)

	return &initializedGeoPackage{repo: repo, params: g.Params, desc: desc, name: name}, nil
}

type initializedGeoPackage struct {
	repo   output.FeatureRepository
	params GeoPackageSourceParams
	desc   domain.VectorResultDescriptor
	name   engine.CanonicalName
}

func (g *initializedGeoPackage) ResultDescriptor() domain.VectorResultDescriptor { return g.desc }
func (g *initializedGeoPackage) CanonicalName() engine.CanonicalName           { return g.name }

func (g *initializedGeoPackage) QueryProcessor() (engine.TypedVectorQueryProcessor, error) {
	switch g.desc.DataType {
	case domain.VectorData:
		return engine.NewTypedVectorProcessor[domain.NoGeometry](newLayerProcessor[domain.NoGeometry](g)), nil
	case domain.VectorMultiPoint:
		return engine.NewTypedVectorProcessor[orb.MultiPoint](newLayerProcessor[orb.MultiPoint](g)), nil
	case domain.VectorMultiLineString:
		return engine.NewTypedVectorProcessor[orb.MultiLineString](newLayerProcessor[orb.MultiLineString](g)), nil
	case domain.VectorMultiPolygon:
		return engine.NewTypedVectorProcessor[orb.MultiPolygon](newLayerProcessor[orb.MultiPolygon](g)), nil
	}
	return engine.TypedVectorQueryProcessor{}, fmt.Errorf("vector data type %v: %w", g.desc.DataType, domain.ErrUnsupported)
}

// layerProcessor pages through the features of one layer intersecting the query box.
type layerProcessor[G domain.Geometry] struct {
	repo    output.FeatureRepository
	dataset string
	layer   string
}

func newLayerProcessor[G domain.Geometry](g *initializedGeoPackage) *layerProcessor[G] {
	return &layerProcessor[G]{repo: g.repo, dataset: g.params.Dataset, layer: g.params.Layer}
}

func (p *layerProcessor[G]) VectorQuery(_ context.Context, q domain.VectorQueryRectangle, qctx engine.QueryContext) (engine.Stream[domain.FeatureCollection[G]], error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	limit := max(1, qctx.ChunkByteSize()/estimatedFeatureBytes)
	offset := 0
	done := false

	return engine.NewFuncStream(func(ctx context.Context) (domain.FeatureCollection[G], error) {
		var zero domain.FeatureCollection[G]
		if done {
			return zero, engine.EOF
		}

		rows, err := p.repo.QueryBBox(ctx, p.dataset, p.layer, q.SpatialBounds, limit, offset)
		if err != nil {
			return zero, &domain.QueryError{Operator: TypeGeoPackageSource, Err: err}
		}
		offset += len(rows)
		done = len(rows) < limit
		if len(rows) == 0 {
			return zero, engine.EOF
		}

		out := domain.FeatureCollection[G]{
			Features:  make([]domain.Feature[G], 0, len(rows)),
			CacheHint: domain.NoCache(),
		}
		for _, r := range rows {
			g, ok := promote[G](r.Geometry)
			if !ok {
				return zero, &domain.TypeMismatchError{
					Expected: domain.VectorDataTypeOf[G]().String(),
					Found:    fmt.Sprintf("feature %d: %T", r.ID, r.Geometry),
				}
			}
			out.Features = append(out.Features, domain.Feature[G]{
				ID:         r.ID,
				Geometry:   g,
				Time:       domain.DefaultTimeInterval(),
				Properties: r.Properties,
			})
		}
		return out, nil
	}, nil), nil
}
