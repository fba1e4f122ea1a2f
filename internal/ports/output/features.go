package output

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/jobrunner/geoflow/internal/domain"
)

// LayerFeature is a feature as read from a dataset layer.
type LayerFeature struct {
	ID         int64
	Geometry   orb.Geometry
	Properties map[string]any
}

// FeatureRepository defines the secondary port for vector dataset access.
type FeatureRepository interface {
	// Open opens a dataset file and returns its metadata.
	Open(ctx context.Context, path string) (*domain.Dataset, error)

	// Close closes a dataset.
	Close(ctx context.Context, datasetID string) error

	// Dataset returns an open dataset by ID.
	Dataset(datasetID string) (*domain.Dataset, bool)

	// GetLayers returns all layers in a dataset.
	GetLayers(ctx context.Context, datasetID string) ([]domain.Layer, error)

	// QueryBBox returns up to limit features of a layer intersecting bbox, skipping the
	// first offset matches. bbox is given in the layer's spatial reference.
	QueryBBox(ctx context.Context, datasetID, layer string, bbox domain.BoundingBox2D, limit, offset int) ([]LayerFeature, error)

	// CreateSpatialIndex creates a spatial index for a layer.
	CreateSpatialIndex(ctx context.Context, datasetID, layer string) error
}

// CoordinateTransformer defines the secondary port for coordinate transformations.
type CoordinateTransformer interface {
	// Transform projects a geometry between two spatial references.
	Transform(ctx context.Context, g orb.Geometry, from, to domain.SpatialReference) (orb.Geometry, error)

	// IsSupported checks if a transformation is supported.
	IsSupported(from, to domain.SpatialReference) bool
}

// WorkflowRecord is a persisted workflow definition.
type WorkflowRecord struct {
	ID         string                  `json:"id"`
	Definition []byte                  `json:"definition"` // workflow JSON
	Source     string                  `json:"source,omitempty"`
	Metadata   domain.WorkflowMetadata `json:"metadata"`
}

// WorkflowStore defines the secondary port for persisting registered workflows.
type WorkflowStore interface {
	// Save stores or replaces a workflow.
	Save(ctx context.Context, record WorkflowRecord) error

	// Load returns a stored workflow.
	Load(ctx context.Context, id string) (*WorkflowRecord, error)

	// Delete removes a workflow. Deleting a missing workflow is not an error.
	Delete(ctx context.Context, id string) error

	// List returns all stored workflows.
	List(ctx context.Context) ([]WorkflowRecord, error)
}
