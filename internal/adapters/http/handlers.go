package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/jobrunner/geoflow/internal/application"
	"github.com/jobrunner/geoflow/internal/domain"
)

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":           boolToStatus(details.Healthy),
		"ready":            details.Ready,
		"workflows_loaded": details.WorkflowsLoaded,
		"workflows_ready":  details.WorkflowsReady,
		"components":       details.Components,
	})
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleListWorkflows returns all registered workflows.
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.workflows.ListWorkflows(r.Context())
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

// handleRegisterWorkflow registers the workflow in the request body, JSON or YAML.
func (s *Server) handleRegisterWorkflow(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	id, err := s.workflows.Register(r.Context(), body, domain.WorkflowMetadata{}, application.SourceAPI)
	if err != nil {
		s.handleError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/workflows/"+id)
	s.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleGetWorkflow returns a workflow with its canonical definition.
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	info, err := s.workflows.GetWorkflow(r.Context(), id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	definition, err := s.workflows.Definition(r.Context(), id)
	if err != nil {
		s.handleError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflow":   info,
		"definition": definition,
	})
}

// handleDeleteWorkflow unregisters a workflow.
func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.workflows.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWorkflowMetadata returns the result descriptor of a workflow.
func (s *Server) handleWorkflowMetadata(w http.ResponseWriter, r *http.Request) {
	descriptor, err := s.workflows.ResultDescriptor(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, descriptor)
}

// handleQuery runs a workflow. The body is a query rectangle matching the workflow's
// result type; omitted time, resolution and bands take defaults.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	info, err := s.workflows.GetWorkflow(r.Context(), id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	body, err := s.readBody(w, r)
	if err != nil {
		s.handleError(w, err)
		return
	}

	switch info.Type {
	case domain.ResultRaster:
		query := domain.RasterQueryRectangle{
			TimeInterval:      domain.DefaultTimeInterval(),
			SpatialResolution: defaultResolution,
			Bands:             domain.FirstBand(),
		}
		if err := decodeQuery(body, &query); err != nil {
			s.handleError(w, err)
			return
		}
		result, err := s.queries.QueryRaster(r.Context(), id, query)
		if err != nil {
			s.handleError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)

	case domain.ResultVector:
		query := vectorDefaults()
		if err := decodeQuery(body, &query); err != nil {
			s.handleError(w, err)
			return
		}
		result, err := s.queries.QueryVector(r.Context(), id, query)
		if err != nil {
			s.handleError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, result)

	case domain.ResultPlot:
		query := vectorDefaults()
		if err := decodeQuery(body, &query); err != nil {
			s.handleError(w, err)
			return
		}
		chart, err := s.queries.QueryPlot(r.Context(), id, query)
		if err != nil {
			s.handleError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(chart)

	default:
		s.handleError(w, fmt.Errorf("result type %q: %w", info.Type, domain.ErrUnsupported))
	}
}

var defaultResolution = domain.SpatialResolution{X: 1, Y: 1}

func vectorDefaults() domain.VectorQueryRectangle {
	return domain.VectorQueryRectangle{
		TimeInterval:      domain.DefaultTimeInterval(),
		SpatialResolution: defaultResolution,
	}
}

// decodeQuery decodes a query rectangle, rejecting unknown fields.
func decodeQuery(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{
			Field:      "query",
			Value:      string(body),
			Constraint: "query rectangle",
			Message:    err.Error(),
		}
	}
	return nil
}

// readBody reads the request body up to the configured limit.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("request body exceeds %d bytes: %w", tooLarge.Limit, domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("reading request body: %w", domain.ErrInvalidInput)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("request body is empty: %w", domain.ErrInvalidInput)
	}
	return body, nil
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// handleSync handles the sync trigger endpoint.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.syncer.TriggerSync(r.Context())
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// statusFor maps an error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, application.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes the error response for err. Internal errors are logged and their
// details withheld.
func (s *Server) handleError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusTooManyRequests:
		w.Header().Set("Retry-After", strconv.Itoa(int(application.DefaultSyncCooldown.Seconds())))
		s.writeError(w, status, "Rate limit exceeded. Try again in 30 seconds.")
	case http.StatusInternalServerError:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, status, "Internal error")
	default:
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			s.writeError(w, status, validationErr.Message)
			return
		}
		s.writeError(w, status, err.Error())
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
