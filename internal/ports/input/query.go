// Package input defines the primary/driving ports of the application.
package input

import (
	"context"
	"encoding/json"

	"github.com/jobrunner/geoflow/internal/domain"
)

// QueryService defines the primary port for running workflow queries.
type QueryService interface {
	// QueryRaster runs a raster workflow and summarizes the emitted tiles.
	QueryRaster(ctx context.Context, workflowID string, query domain.RasterQueryRectangle) (*domain.RasterResult, error)

	// QueryVector runs a vector workflow and collects the emitted features.
	QueryVector(ctx context.Context, workflowID string, query domain.VectorQueryRectangle) (*domain.VectorResult, error)

	// QueryPlot runs a plot workflow and returns the chart document.
	QueryPlot(ctx context.Context, workflowID string, query domain.PlotQueryRectangle) (json.RawMessage, error)
}

// WorkflowService defines the primary port for workflow management.
type WorkflowService interface {
	// Register decodes, initializes and stores a workflow and returns its ID.
	// Registering the same definition twice yields the same ID.
	Register(ctx context.Context, definition []byte, metadata domain.WorkflowMetadata, source string) (string, error)

	// ListWorkflows returns all registered workflows.
	ListWorkflows(ctx context.Context) ([]domain.WorkflowInfo, error)

	// GetWorkflow returns a workflow by ID.
	GetWorkflow(ctx context.Context, id string) (*domain.WorkflowInfo, error)

	// Definition returns the canonical JSON of a workflow.
	Definition(ctx context.Context, id string) (json.RawMessage, error)

	// ResultDescriptor returns what a workflow produces.
	ResultDescriptor(ctx context.Context, id string) (*domain.TypedResultDescriptor, error)

	// Delete unregisters a workflow.
	Delete(ctx context.Context, id string) error
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy         bool              // Overall health status
	Ready           bool              // Ready to accept requests
	WorkflowsLoaded int               // Number of registered workflows
	WorkflowsReady  int               // Number of queryable workflows
	Components      map[string]string // Component statuses
}
