package application

import (
	"context"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/ports/input"
)

// HealthService provides health check functionality.
type HealthService struct {
	registry *WorkflowRegistry
	datasets *DatasetCatalog
}

// NewHealthService creates a new health service. datasets may be nil.
func NewHealthService(registry *WorkflowRegistry, datasets *DatasetCatalog) *HealthService {
	return &HealthService{
		registry: registry,
		datasets: datasets,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true
}

// IsReady returns true if the service is ready to accept requests.
func (s *HealthService) IsReady(ctx context.Context) bool {
	workflows, err := s.registry.ListWorkflows(ctx)
	if err != nil {
		return false
	}

	// Ready if at least one workflow is ready
	for _, w := range workflows {
		if w.IsReady() {
			return true
		}
	}

	// Also ready if no workflows are registered yet
	return len(workflows) == 0
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	workflows, _ := s.registry.ListWorkflows(ctx)

	ready := 0
	for _, w := range workflows {
		if w.IsReady() {
			ready++
		}
	}

	components := map[string]string{
		"storage": "disabled",
		"store":   "disabled",
	}
	if s.registry.storage != nil {
		components["storage"] = "ok"
	}
	if s.registry.store != nil {
		components["store"] = "ok"
	}
	if s.datasets != nil {
		components["datasets"] = "ok"
		for _, ds := range s.datasets.List() {
			if !ds.IsReady() {
				components["datasets"] = "degraded"
				break
			}
		}
	}

	return input.HealthDetails{
		Healthy:         s.IsHealthy(ctx),
		Ready:           s.IsReady(ctx),
		WorkflowsLoaded: len(workflows),
		WorkflowsReady:  ready,
		Components:      components,
	}
}

// WorkflowHealth contains health info for a single workflow.
type WorkflowHealth struct {
	ID     string
	Status domain.WorkflowStatus
	Ready  bool
}

// GetWorkflowHealth returns health info for all workflows.
func (s *HealthService) GetWorkflowHealth(ctx context.Context) []WorkflowHealth {
	workflows, _ := s.registry.ListWorkflows(ctx)

	health := make([]WorkflowHealth, len(workflows))
	for i, w := range workflows {
		health[i] = WorkflowHealth{
			ID:     w.ID,
			Status: w.Status,
			Ready:  w.IsReady(),
		}
	}
	return health
}
