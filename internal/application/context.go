package application

import (
	"log/slog"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
	"github.com/jobrunner/geoflow/internal/engine/expression"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// ExecutionContext provides the service's capabilities to operators. Capabilities that
// are not configured are reported as missing.
type ExecutionContext struct {
	tiling      domain.TilingSpecification
	compiler    *expression.Compiler
	transformer output.CoordinateTransformer
	features    output.FeatureRepository
	logger      *slog.Logger
}

var _ engine.ExecutionContext = (*ExecutionContext)(nil)

// NewExecutionContext creates an execution context. transformer and features may be nil.
func NewExecutionContext(
	tiling domain.TilingSpecification,
	compiler *expression.Compiler,
	transformer output.CoordinateTransformer,
	features output.FeatureRepository,
	logger *slog.Logger,
) *ExecutionContext {
	return &ExecutionContext{
		tiling:      tiling,
		compiler:    compiler,
		transformer: transformer,
		features:    features,
		logger:      logger,
	}
}

// TilingSpecification implements engine.ExecutionContext.
func (e *ExecutionContext) TilingSpecification() domain.TilingSpecification {
	return e.tiling
}

// Compiler implements engine.ExecutionContext.
func (e *ExecutionContext) Compiler() *expression.Compiler {
	return e.compiler
}

// CoordinateTransformer implements engine.ExecutionContext.
func (e *ExecutionContext) CoordinateTransformer() (output.CoordinateTransformer, error) {
	if e.transformer == nil {
		return nil, engine.MissingCapability("coordinate transformer")
	}
	return e.transformer, nil
}

// FeatureRepository implements engine.ExecutionContext.
func (e *ExecutionContext) FeatureRepository() (output.FeatureRepository, error) {
	if e.features == nil {
		return nil, engine.MissingCapability("feature repository")
	}
	return e.features, nil
}

// Logger implements engine.ExecutionContext.
func (e *ExecutionContext) Logger() *slog.Logger {
	return e.logger
}
