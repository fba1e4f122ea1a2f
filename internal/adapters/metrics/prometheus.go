// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jobrunner/geoflow/internal/ports/output"
)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	gatherer prometheus.Gatherer

	queryCounter        *prometheus.CounterVec
	queryDuration       *prometheus.HistogramVec
	tilesEmitted        *prometheus.CounterVec
	featuresEmitted     *prometheus.CounterVec
	compilations        *prometheus.CounterVec
	workflowsLoaded     prometheus.Gauge
	workflowsReady      prometheus.Gauge
	storageOperations   *prometheus.CounterVec
	storageDuration     *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var _ output.MetricsCollector = (*Collector)(nil)

// NewCollector creates a collector registered with the default Prometheus registry.
func NewCollector(namespace string) *Collector {
	return NewCollectorWith(namespace, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewCollectorWith creates a collector on a custom registry.
func NewCollectorWith(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	if namespace == "" {
		namespace = "geoflow"
	}
	f := factory{promauto.With(reg), namespace}

	return &Collector{
		gatherer: gatherer,

		queryCounter:    f.counter("queries_total", "Total number of workflow queries", "workflow_id", "status"),
		queryDuration:   f.histogram("query_duration_seconds", "Query duration in seconds", "workflow_id"),
		tilesEmitted:    f.counter("raster_tiles_total", "Raster tiles returned by queries", "workflow_id"),
		featuresEmitted: f.counter("features_total", "Features returned by queries", "workflow_id"),
		compilations:    f.counter("expression_compilations_total", "Expression compilations by cache result", "cache"),
		workflowsLoaded: f.gauge("workflows_loaded", "Number of registered workflows"),
		workflowsReady:  f.gauge("workflows_ready", "Number of queryable workflows"),

		storageOperations: f.counter("storage_operations_total", "Workflow storage operations by outcome", "operation", "status"),
		storageDuration:   f.histogram("storage_duration_seconds", "Workflow storage operation latency in seconds", "operation"),

		httpRequestsTotal:   f.counter("http_requests_total", "HTTP requests by route and status class", "method", "path", "status"),
		httpRequestDuration: f.histogram("http_request_duration_seconds", "HTTP request latency in seconds", "method", "path"),
	}
}

// factory registers namespaced metrics.
type factory struct {
	auto      promauto.Factory
	namespace string
}

func (f factory) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return f.auto.NewCounterVec(prometheus.CounterOpts{Namespace: f.namespace, Name: name, Help: help}, labels)
}

func (f factory) histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return f.auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: f.namespace,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, labels)
}

func (f factory) gauge(name, help string) prometheus.Gauge {
	return f.auto.NewGauge(prometheus.GaugeOpts{Namespace: f.namespace, Name: name, Help: help})
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// IncQueryCount counts a finished query by outcome.
func (c *Collector) IncQueryCount(workflowID string, success bool) {
	c.queryCounter.WithLabelValues(workflowID, status(success)).Inc()
}

// ObserveQueryDuration records the latency of a query.
func (c *Collector) ObserveQueryDuration(workflowID string, duration time.Duration) {
	c.queryDuration.WithLabelValues(workflowID).Observe(duration.Seconds())
}

// AddTilesEmitted counts raster tiles returned by a query.
func (c *Collector) AddTilesEmitted(workflowID string, n int) {
	c.tilesEmitted.WithLabelValues(workflowID).Add(float64(n))
}

// AddFeaturesEmitted counts features returned by a query.
func (c *Collector) AddFeaturesEmitted(workflowID string, n int) {
	c.featuresEmitted.WithLabelValues(workflowID).Add(float64(n))
}

// IncExpressionCompilations counts a compilation or a compiled-program cache hit.
func (c *Collector) IncExpressionCompilations(cacheHit bool) {
	label := "miss"
	if cacheHit {
		label = "hit"
	}
	c.compilations.WithLabelValues(label).Inc()
}

// SetWorkflowsLoaded sets the number of registered workflows.
func (c *Collector) SetWorkflowsLoaded(count int) {
	c.workflowsLoaded.Set(float64(count))
}

// SetWorkflowsReady sets the number of ready workflows.
func (c *Collector) SetWorkflowsReady(count int) {
	c.workflowsReady.Set(float64(count))
}

// IncStorageOperations counts a storage call by outcome.
func (c *Collector) IncStorageOperations(operation string, success bool) {
	c.storageOperations.WithLabelValues(operation, status(success)).Inc()
}

// ObserveStorageDuration records the latency of a storage call.
func (c *Collector) ObserveStorageDuration(operation string, duration time.Duration) {
	c.storageDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
