package engine

import (
	"fmt"
	"log/slog"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine/expression"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// Default query settings.
const (
	DefaultChunkByteSize  = 1 << 20
	DefaultPrefetchBuffer = 1
)

// ExecutionContext provides the capabilities operators need during initialization.
// Optional capabilities return ErrMissingCapability when not configured.
type ExecutionContext interface {
	// TilingSpecification returns the global tiling grid for raster sources.
	TilingSpecification() domain.TilingSpecification

	// Compiler returns the shared expression compiler.
	Compiler() *expression.Compiler

	// CoordinateTransformer returns the projection capability.
	CoordinateTransformer() (output.CoordinateTransformer, error)

	// FeatureRepository returns access to the registered vector datasets.
	FeatureRepository() (output.FeatureRepository, error)

	// Logger returns the logger operators should use.
	Logger() *slog.Logger
}

// QueryContext carries per-query settings.
type QueryContext interface {
	// ChunkByteSize is the target size of one feature collection chunk.
	ChunkByteSize() int

	// PrefetchBuffer is the number of items read ahead by prefetching streams.
	PrefetchBuffer() int

	// QueryID identifies the query in logs.
	QueryID() string
}

// MissingCapability returns the error for an unconfigured capability.
func MissingCapability(name string) error {
	return fmt.Errorf("%s: %w", name, domain.ErrMissingCapability)
}

type queryContext struct {
	chunkByteSize  int
	prefetchBuffer int
	queryID        string
}

// NewQueryContext returns a QueryContext. Non-positive sizes fall back to the defaults.
func NewQueryContext(queryID string, chunkByteSize, prefetchBuffer int) QueryContext {
	if chunkByteSize <= 0 {
		chunkByteSize = DefaultChunkByteSize
	}
	if prefetchBuffer < 0 {
		prefetchBuffer = DefaultPrefetchBuffer
	}
	return &queryContext{
		chunkByteSize:  chunkByteSize,
		prefetchBuffer: prefetchBuffer,
		queryID:        queryID,
	}
}

func (q *queryContext) ChunkByteSize() int  { return q.chunkByteSize }
func (q *queryContext) PrefetchBuffer() int { return q.prefetchBuffer }
func (q *queryContext) QueryID() string     { return q.queryID }
