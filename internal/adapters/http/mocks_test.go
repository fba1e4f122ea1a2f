package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/jobrunner/geoflow/internal/application"
	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/ports/input"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockQueries implements input.QueryService.
type mockQueries struct {
	raster *domain.RasterResult
	vector *domain.VectorResult
	plot   json.RawMessage
	err    error

	rasterQuery domain.RasterQueryRectangle
	vectorQuery domain.VectorQueryRectangle
}

func (m *mockQueries) QueryRaster(_ context.Context, _ string, q domain.RasterQueryRectangle) (*domain.RasterResult, error) {
	m.rasterQuery = q
	return m.raster, m.err
}

func (m *mockQueries) QueryVector(_ context.Context, _ string, q domain.VectorQueryRectangle) (*domain.VectorResult, error) {
	m.vectorQuery = q
	return m.vector, m.err
}

func (m *mockQueries) QueryPlot(_ context.Context, _ string, q domain.PlotQueryRectangle) (json.RawMessage, error) {
	m.vectorQuery = q
	return m.plot, m.err
}

// mockWorkflows implements input.WorkflowService over a fixed set of workflows.
type mockWorkflows struct {
	workflows   map[string]domain.WorkflowInfo
	registerErr error
	registered  [][]byte
	deleted     []string
}

func newMockWorkflows(infos ...domain.WorkflowInfo) *mockWorkflows {
	m := &mockWorkflows{workflows: make(map[string]domain.WorkflowInfo)}
	for _, info := range infos {
		m.workflows[info.ID] = info
	}
	return m
}

func (m *mockWorkflows) Register(_ context.Context, definition []byte, _ domain.WorkflowMetadata, _ string) (string, error) {
	if m.registerErr != nil {
		return "", m.registerErr
	}
	m.registered = append(m.registered, definition)
	return "new-id", nil
}

func (m *mockWorkflows) ListWorkflows(context.Context) ([]domain.WorkflowInfo, error) {
	infos := make([]domain.WorkflowInfo, 0, len(m.workflows))
	for _, info := range m.workflows {
		infos = append(infos, info)
	}
	return infos, nil
}

func (m *mockWorkflows) GetWorkflow(_ context.Context, id string) (*domain.WorkflowInfo, error) {
	info, ok := m.workflows[id]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return &info, nil
}

func (m *mockWorkflows) Definition(_ context.Context, id string) (json.RawMessage, error) {
	if _, ok := m.workflows[id]; !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return json.RawMessage(`{"type":"Vector"}`), nil
}

func (m *mockWorkflows) ResultDescriptor(_ context.Context, id string) (*domain.TypedResultDescriptor, error) {
	info, ok := m.workflows[id]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return &domain.TypedResultDescriptor{Type: info.Type}, nil
}

func (m *mockWorkflows) Delete(_ context.Context, id string) error {
	if _, ok := m.workflows[id]; !ok {
		return domain.ErrWorkflowNotFound
	}
	delete(m.workflows, id)
	m.deleted = append(m.deleted, id)
	return nil
}

// mockHealth implements input.HealthChecker.
type mockHealth struct {
	healthy bool
	ready   bool
}

func (m *mockHealth) IsHealthy(context.Context) bool { return m.healthy }
func (m *mockHealth) IsReady(context.Context) bool   { return m.ready }

func (m *mockHealth) GetHealthDetails(context.Context) input.HealthDetails {
	return input.HealthDetails{Healthy: m.healthy, Ready: m.ready, Components: map[string]string{"storage": "ok"}}
}

// mockSyncer implements Syncer.
type mockSyncer struct {
	result application.SyncResult
	err    error
}

func (m *mockSyncer) TriggerSync(context.Context) (application.SyncResult, error) {
	return m.result, m.err
}

// mockMetrics implements MetricsExporter.
type mockMetrics struct {
	requests int
}

func (m *mockMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("requests_total 1\n"))
	})
}

func (m *mockMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requests++
		next.ServeHTTP(w, r)
	})
}
