package engine

import (
	"io"
	"log/slog"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine/expression"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// MockExecutionContext is an ExecutionContext for tests and one-off runs. Capabilities
// left nil are reported as missing.
type MockExecutionContext struct {
	Tiling      domain.TilingSpecification
	Expressions *expression.Compiler
	Transformer output.CoordinateTransformer
	Features    output.FeatureRepository
	Log         *slog.Logger
}

var _ ExecutionContext = (*MockExecutionContext)(nil)

// NewMockExecutionContext returns a context with the given tiling specification and
// a small expression cache.
func NewMockExecutionContext(tiling domain.TilingSpecification) *MockExecutionContext {
	return &MockExecutionContext{
		Tiling:      tiling,
		Expressions: expression.NewCompiler(16),
	}
}

// DefaultTilingSpecification is a 512x512 grid anchored at the origin.
func DefaultTilingSpecification() domain.TilingSpecification {
	return domain.TilingSpecification{TileShape: domain.GridShape{Rows: 512, Cols: 512}}
}

// TilingSpecification implements ExecutionContext.
func (m *MockExecutionContext) TilingSpecification() domain.TilingSpecification {
	return m.Tiling
}

// Compiler implements ExecutionContext.
func (m *MockExecutionContext) Compiler() *expression.Compiler {
	if m.Expressions == nil {
		m.Expressions = expression.NewCompiler(16)
	}
	return m.Expressions
}

// CoordinateTransformer implements ExecutionContext.
func (m *MockExecutionContext) CoordinateTransformer() (output.CoordinateTransformer, error) {
	if m.Transformer == nil {
		return nil, MissingCapability("coordinate transformer")
	}
	return m.Transformer, nil
}

// FeatureRepository implements ExecutionContext.
func (m *MockExecutionContext) FeatureRepository() (output.FeatureRepository, error) {
	if m.Features == nil {
		return nil, MissingCapability("feature repository")
	}
	return m.Features, nil
}

// Logger implements ExecutionContext.
func (m *MockExecutionContext) Logger() *slog.Logger {
	if m.Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m.Log
}

// MockQueryContext is a QueryContext with settable fields.
type MockQueryContext struct {
	ChunkBytes int
	Prefetch   int
	ID         string
}

var _ QueryContext = (*MockQueryContext)(nil)

// NewMockQueryContext returns a query context with the given chunk byte size.
func NewMockQueryContext(chunkByteSize int) *MockQueryContext {
	return &MockQueryContext{ChunkBytes: chunkByteSize, Prefetch: DefaultPrefetchBuffer, ID: "test"}
}

// ChunkByteSize implements QueryContext.
func (m *MockQueryContext) ChunkByteSize() int { return m.ChunkBytes }

// PrefetchBuffer implements QueryContext.
func (m *MockQueryContext) PrefetchBuffer() int { return m.Prefetch }

// QueryID implements QueryContext.
func (m *MockQueryContext) QueryID() string { return m.ID }
