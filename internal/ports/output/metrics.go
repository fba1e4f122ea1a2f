package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncQueryCount increments the query counter.
	IncQueryCount(workflowID string, success bool)

	// ObserveQueryDuration records query duration.
	ObserveQueryDuration(workflowID string, duration time.Duration)

	// AddTilesEmitted counts raster tiles returned by queries.
	AddTilesEmitted(workflowID string, n int)

	// AddFeaturesEmitted counts features returned by queries.
	AddFeaturesEmitted(workflowID string, n int)

	// IncExpressionCompilations counts expression compilations and cache hits.
	IncExpressionCompilations(cacheHit bool)

	// SetWorkflowsLoaded sets the number of registered workflows.
	SetWorkflowsLoaded(count int)

	// SetWorkflowsReady sets the number of queryable workflows.
	SetWorkflowsReady(count int)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncQueryCount implements MetricsCollector.
func (n *NoOpMetrics) IncQueryCount(_ string, _ bool) {}

// ObserveQueryDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveQueryDuration(_ string, _ time.Duration) {}

// AddTilesEmitted implements MetricsCollector.
func (n *NoOpMetrics) AddTilesEmitted(_ string, _ int) {}

// AddFeaturesEmitted implements MetricsCollector.
func (n *NoOpMetrics) AddFeaturesEmitted(_ string, _ int) {}

// IncExpressionCompilations implements MetricsCollector.
func (n *NoOpMetrics) IncExpressionCompilations(_ bool) {}

// SetWorkflowsLoaded implements MetricsCollector.
func (n *NoOpMetrics) SetWorkflowsLoaded(_ int) {}

// SetWorkflowsReady implements MetricsCollector.
func (n *NoOpMetrics) SetWorkflowsReady(_ int) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}
