package engine

import (
	"context"

	"github.com/jobrunner/geoflow/internal/domain"
)

// RasterOperator is an uninitialized raster operator as decoded from a workflow.
type RasterOperator interface {
	TypeName() string
	Initialize(ctx context.Context, ectx ExecutionContext) (InitializedRasterOperator, error)
}

// VectorOperator is an uninitialized vector operator.
type VectorOperator interface {
	TypeName() string
	Initialize(ctx context.Context, ectx ExecutionContext) (InitializedVectorOperator, error)
}

// PlotOperator is an uninitialized plot operator.
type PlotOperator interface {
	TypeName() string
	Initialize(ctx context.Context, ectx ExecutionContext) (InitializedPlotOperator, error)
}

// InitializedRasterOperator is immutable and safe for concurrent queries.
type InitializedRasterOperator interface {
	ResultDescriptor() domain.RasterResultDescriptor
	QueryProcessor() (TypedRasterQueryProcessor, error)
	CanonicalName() CanonicalName
}

// InitializedVectorOperator is immutable and safe for concurrent queries.
type InitializedVectorOperator interface {
	ResultDescriptor() domain.VectorResultDescriptor
	QueryProcessor() (TypedVectorQueryProcessor, error)
	CanonicalName() CanonicalName
}

// InitializedPlotOperator is immutable and safe for concurrent queries.
type InitializedPlotOperator interface {
	ResultDescriptor() domain.PlotResultDescriptor
	QueryProcessor() (TypedPlotQueryProcessor, error)
	CanonicalName() CanonicalName
}

// Sources holds the inputs of an operator.
type Sources struct {
	Rasters []RasterOperator
	Vectors []VectorOperator
}

// InitializedSources holds the initialized inputs of an operator.
type InitializedSources struct {
	Rasters []InitializedRasterOperator
	Vectors []InitializedVectorOperator
}

// Names returns the canonical names of all inputs, rasters first.
func (s InitializedSources) Names() []CanonicalName {
	names := make([]CanonicalName, 0, len(s.Rasters)+len(s.Vectors))
	for _, r := range s.Rasters {
		names = append(names, r.CanonicalName())
	}
	for _, v := range s.Vectors {
		names = append(names, v.CanonicalName())
	}
	return names
}

// InitializeSources checks the input counts and initializes every input. Ranges are
// half-open.
func InitializeSources(ctx context.Context, ectx ExecutionContext, operator string, s Sources, rasters, vectors [2]int) (InitializedSources, error) {
	if err := domain.CheckInputCount(operator, domain.RasterSources, rasters[0], rasters[1], len(s.Rasters)); err != nil {
		return InitializedSources{}, err
	}
	if err := domain.CheckInputCount(operator, domain.VectorSources, vectors[0], vectors[1], len(s.Vectors)); err != nil {
		return InitializedSources{}, err
	}

	var out InitializedSources
	for _, r := range s.Rasters {
		init, err := r.Initialize(ctx, ectx)
		if err != nil {
			return InitializedSources{}, err
		}
		out.Rasters = append(out.Rasters, init)
	}
	for _, v := range s.Vectors {
		init, err := v.Initialize(ctx, ectx)
		if err != nil {
			return InitializedSources{}, err
		}
		out.Vectors = append(out.Vectors, init)
	}
	return out, nil
}
