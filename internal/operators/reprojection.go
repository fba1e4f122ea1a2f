package operators

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// bboxDensification is the number of points per edge used to project query boxes.
const bboxDensification = 8

// ReprojectionParams names the output spatial reference.
type ReprojectionParams struct {
	TargetSpatialReference domain.SpatialReference `json:"targetSpatialReference"`
}

// Reprojection projects the features of its vector source into another spatial reference.
type Reprojection struct {
	Params  ReprojectionParams
	Sources engine.Sources
}

// NewReprojection reprojects source into target.
func NewReprojection(source engine.VectorOperator, target domain.SpatialReference) *Reprojection {
	return &Reprojection{
		Params:  ReprojectionParams{TargetSpatialReference: target},
		Sources: engine.Sources{Vectors: []engine.VectorOperator{source}},
	}
}

// TypeName implements engine.VectorOperator.
func (r *Reprojection) TypeName() string { return TypeReprojection }

func (r *Reprojection) params() any             { return r.Params }
func (r *Reprojection) sources() engine.Sources { return r.Sources }

// Initialize implements engine.VectorOperator.
func (r *Reprojection) Initialize(ctx context.Context, ectx engine.ExecutionContext) (engine.InitializedVectorOperator, error) {
	init, err := engine.InitializeSources(ctx, ectx, TypeReprojection, r.Sources, [2]int{0, 1}, [2]int{1, 2})
	if err != nil {
		return nil, err
	}
	source := init.Vectors[0]
	in := source.ResultDescriptor()
	target := r.Params.TargetSpatialReference

	if in.SpatialReference.IsUnknown() {
		return nil, domain.ErrUnknownSpatialRefInput
	}
	if target.IsUnknown() {
		return nil, fmt.Errorf("target: %w", domain.ErrInvalidSpatialRef)
	}

	transformer, err := ectx.CoordinateTransformer()
	if err != nil {
		return nil, err
	}
	if !transformer.IsSupported(in.SpatialReference, target) {
		return nil, fmt.Errorf("%s to %s: %w", in.SpatialReference, target, domain.ErrUnsupportedProjection)
	}

	desc := in
	desc.SpatialReference = target
	if in.BBox != nil {
		box, err := projectBox(ctx, transformer, *in.BBox, in.SpatialReference, target)
		if err != nil {
			ectx.Logger().Warn("Cannot project source extent",
				"from", in.SpatialReference,
				"to", target,
				"error", err)
			desc.BBox = nil
		} else {
			desc.BBox = &box
		}
	}

	name, err := engine.ComputeCanonicalName(TypeReprojection, r.Params, init.Names()...)
	if err != nil {
		return nil, err
	}

	return &initializedReprojection{
		source:      source,
		transformer: transformer,
		from:        in.SpatialReference,
		to:          target,
		desc:        desc,
		name:        name,
	}, nil
}

type initializedReprojection struct {
	source      engine.InitializedVectorOperator
	transformer output.CoordinateTransformer
	from, to    domain.SpatialReference
	desc        domain.VectorResultDescriptor
	name        engine.CanonicalName
}

func (r *initializedReprojection) ResultDescriptor() domain.VectorResultDescriptor { return r.desc }
func (r *initializedReprojection) CanonicalName() engine.CanonicalName           { return r.name }

func (r *initializedReprojection) QueryProcessor() (engine.TypedVectorQueryProcessor, error) {
	typed, err := r.source.QueryProcessor()
	if err != nil {
		return engine.TypedVectorQueryProcessor{}, err
	}

	switch typed.DataType() {
	case domain.VectorData:
		// Data-only collections have nothing to project.
		return typed, nil
	case domain.VectorMultiPoint:
		return reprojectionProcessor[orb.MultiPoint](r, typed)
	case domain.VectorMultiLineString:
		return reprojectionProcessor[orb.MultiLineString](r, typed)
	case domain.VectorMultiPolygon:
		return reprojectionProcessor[orb.MultiPolygon](r, typed)
	}
	return engine.TypedVectorQueryProcessor{}, fmt.Errorf("vector data type %v: %w", typed.DataType(), domain.ErrUnsupported)
}

func reprojectionProcessor[G domain.Geometry](r *initializedReprojection, typed engine.TypedVectorQueryProcessor) (engine.TypedVectorQueryProcessor, error) {
	src, err := engine.VectorProcessorAs[G](typed)
	if err != nil {
		return engine.TypedVectorQueryProcessor{}, err
	}
	return engine.NewTypedVectorProcessor[G](&ReprojectionProcessor[G]{
		source:      src,
		transformer: r.transformer,
		from:        r.from,
		to:          r.to,
	}), nil
}

// ReprojectionProcessor rewrites a query into the source's spatial reference and
// projects every emitted feature into the target's.
type ReprojectionProcessor[G domain.Geometry] struct {
	source      engine.VectorQueryProcessor[G]
	transformer output.CoordinateTransformer
	from, to    domain.SpatialReference
}

// NewReprojectionProcessor projects the output of source from one spatial reference to another.
func NewReprojectionProcessor[G domain.Geometry](source engine.VectorQueryProcessor[G], transformer output.CoordinateTransformer, from, to domain.SpatialReference) *ReprojectionProcessor[G] {
	return &ReprojectionProcessor[G]{source: source, transformer: transformer, from: from, to: to}
}

// VectorQuery implements engine.VectorQueryProcessor.
func (p *ReprojectionProcessor[G]) VectorQuery(ctx context.Context, q domain.VectorQueryRectangle, qctx engine.QueryContext) (engine.Stream[domain.FeatureCollection[G]], error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	box, err := projectBox(ctx, p.transformer, q.SpatialBounds, p.to, p.from)
	if err != nil {
		return nil, err
	}
	sourceQuery := q
	sourceQuery.SpatialBounds = box

	s, err := p.source.VectorQuery(ctx, sourceQuery, qctx)
	if err != nil {
		return nil, err
	}
	return engine.MapStream(s, p.project), nil
}

func (p *ReprojectionProcessor[G]) project(ctx context.Context, c domain.FeatureCollection[G]) (domain.FeatureCollection[G], error) {
	out := domain.FeatureCollection[G]{
		Features:  make([]domain.Feature[G], len(c.Features)),
		CacheHint: c.CacheHint,
	}
	for i, f := range c.Features {
		g, ok := any(f.Geometry).(orb.Geometry)
		if !ok {
			return domain.FeatureCollection[G]{}, &domain.ReprojectionError{From: p.from, To: p.to,
				Err: fmt.Errorf("feature %d has no geometry: %w", f.ID, domain.ErrInvalidInput)}
		}
		projected, err := p.transformer.Transform(ctx, g, p.from, p.to)
		if err != nil {
			return domain.FeatureCollection[G]{}, &domain.ReprojectionError{From: p.from, To: p.to, Err: err}
		}
		typed, ok := projected.(G)
		if !ok {
			return domain.FeatureCollection[G]{}, &domain.ReprojectionError{From: p.from, To: p.to,
				Err: fmt.Errorf("projected %T, expected %T: %w", projected, f.Geometry, domain.ErrInternal)}
		}
		f.Geometry = typed
		out.Features[i] = f
	}
	return out, nil
}

func projectBox(ctx context.Context, t output.CoordinateTransformer, box domain.BoundingBox2D, from, to domain.SpatialReference) (domain.BoundingBox2D, error) {
	projected, err := t.Transform(ctx, orb.Polygon{box.DensifiedRing(bboxDensification)}, from, to)
	if err != nil {
		return domain.BoundingBox2D{}, &domain.ReprojectionError{From: from, To: to, Err: err}
	}
	out := domain.BoundingBoxFromBound(projected.Bound())
	if err := out.Validate(); err != nil {
		return domain.BoundingBox2D{}, &domain.ReprojectionError{From: from, To: to, Err: err}
	}
	return out, nil
}
