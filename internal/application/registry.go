// Package application contains the application services.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
	"github.com/jobrunner/geoflow/internal/operators"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// Workflow sources that are not storage keys or local paths.
const (
	SourceAPI   = "api"
	SourceStore = "store"
	SourceEvent = "event"
)

// loadConcurrency bounds parallel reads during LoadAll.
const loadConcurrency = 4

// WorkflowRegistry manages registered workflows.
type WorkflowRegistry struct {
	mu        sync.RWMutex
	workflows map[string]*workflowEntry
	ectx      engine.ExecutionContext
	storage   output.ObjectStorage
	store     output.WorkflowStore
	metrics   output.MetricsCollector
	logger    *slog.Logger
}

type workflowEntry struct {
	Info        domain.WorkflowInfo
	Definition  json.RawMessage
	Initialized *operators.InitializedWorkflow
}

// NewWorkflowRegistry creates a new workflow registry. storage and store may be nil.
func NewWorkflowRegistry(
	ectx engine.ExecutionContext,
	storage output.ObjectStorage,
	store output.WorkflowStore,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *WorkflowRegistry {
	return &WorkflowRegistry{
		workflows: make(map[string]*workflowEntry),
		ectx:      ectx,
		storage:   storage,
		store:     store,
		metrics:   metrics,
		logger:    logger,
	}
}

// workflowFile is the optional metadata next to the workflow in a definition file.
type workflowFile struct {
	Metadata *domain.WorkflowMetadata `json:"metadata"`
}

// Register decodes and initializes a workflow and returns its ID. A definition that is
// already registered keeps its ID and is not initialized again.
func (r *WorkflowRegistry) Register(ctx context.Context, definition []byte, metadata domain.WorkflowMetadata, source string) (string, error) {
	normalized, err := operators.NormalizeDefinition(definition)
	if err != nil {
		return "", err
	}

	var file workflowFile
	if err := json.Unmarshal(normalized, &file); err == nil && file.Metadata != nil && metadata.Title == "" {
		metadata = *file.Metadata
	}

	w, err := operators.ParseWorkflow(normalized)
	if err != nil {
		return "", err
	}
	id, err := operators.WorkflowID(w)
	if err != nil {
		return "", err
	}
	canonical, err := w.CanonicalJSON()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if existing, ok := r.workflows[id]; ok {
		existing.Info.Metadata = metadata
		r.mu.Unlock()
		r.logger.Debug("workflow already registered", "id", id, "source", source)
		return id, nil
	}
	entry := &workflowEntry{
		Info: domain.WorkflowInfo{
			ID:           id,
			Type:         w.Type,
			Source:       source,
			Status:       domain.StatusLoading,
			Metadata:     metadata,
			RegisteredAt: time.Now(),
		},
		Definition: canonical,
	}
	r.workflows[id] = entry
	r.mu.Unlock()

	r.logger.Info("registering workflow", "id", id, "type", w.Type, "source", source)

	initialized, err := w.Initialize(ctx, r.ectx)
	if err != nil {
		r.mu.Lock()
		delete(r.workflows, id)
		r.mu.Unlock()
		r.logger.Error("failed to initialize workflow", "id", id, "source", source, "error", err)
		return "", err
	}

	r.mu.Lock()
	entry.Initialized = initialized
	entry.Info.Status = domain.StatusReady
	r.mu.Unlock()

	if r.store != nil && source != SourceStore {
		record := output.WorkflowRecord{ID: id, Definition: canonical, Source: source, Metadata: metadata}
		if err := r.store.Save(ctx, record); err != nil {
			r.logger.Warn("failed to persist workflow", "id", id, "error", err)
		}
	}

	r.updateMetrics()
	r.logger.Info("workflow registered", "id", id, "type", w.Type)

	return id, nil
}

// Delete unregisters a workflow and removes it from the workflow store.
func (r *WorkflowRegistry) Delete(ctx context.Context, id string) error {
	r.logger.Info("deleting workflow", "id", id)

	r.mu.Lock()
	entry, ok := r.workflows[id]
	if !ok {
		r.mu.Unlock()
		return domain.ErrWorkflowNotFound
	}
	entry.Info.Status = domain.StatusUnloading
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Delete(ctx, id); err != nil {
			r.logger.Error("failed to delete stored workflow", "id", id, "error", err)
			return err
		}
	}

	r.mu.Lock()
	delete(r.workflows, id)
	r.mu.Unlock()

	r.updateMetrics()
	return nil
}

// ListWorkflows returns all registered workflows ordered by registration time.
func (r *WorkflowRegistry) ListWorkflows(_ context.Context) ([]domain.WorkflowInfo, error) {
	r.mu.RLock()
	workflows := make([]domain.WorkflowInfo, 0, len(r.workflows))
	for _, entry := range r.workflows {
		workflows = append(workflows, entry.Info)
	}
	r.mu.RUnlock()

	sort.Slice(workflows, func(i, j int) bool {
		if workflows[i].RegisteredAt.Equal(workflows[j].RegisteredAt) {
			return workflows[i].ID < workflows[j].ID
		}
		return workflows[i].RegisteredAt.Before(workflows[j].RegisteredAt)
	})
	return workflows, nil
}

// GetWorkflow returns a specific workflow by ID.
func (r *WorkflowRegistry) GetWorkflow(_ context.Context, id string) (*domain.WorkflowInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.workflows[id]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	info := entry.Info
	return &info, nil
}

// Definition returns the canonical JSON of a workflow.
func (r *WorkflowRegistry) Definition(_ context.Context, id string) (json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.workflows[id]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return entry.Definition, nil
}

// ResultDescriptor returns the descriptor of a ready workflow.
func (r *WorkflowRegistry) ResultDescriptor(ctx context.Context, id string) (*domain.TypedResultDescriptor, error) {
	initialized, err := r.initialized(ctx, id)
	if err != nil {
		return nil, err
	}
	desc := initialized.Descriptor
	return &desc, nil
}

// initialized returns the operator tree of a ready workflow and marks it as queried.
func (r *WorkflowRegistry) initialized(_ context.Context, id string) (*operators.InitializedWorkflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.workflows[id]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	if entry.Info.Status != domain.StatusReady {
		return nil, fmt.Errorf("workflow %s is %s: %w", id, entry.Info.Status, domain.ErrNotReady)
	}
	entry.Info.LastQueried = time.Now()
	return entry.Initialized, nil
}

// IsReady returns true if a workflow is ready for queries.
func (r *WorkflowRegistry) IsReady(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.workflows[id]
	return ok && entry.Info.Status == domain.StatusReady
}

// WorkflowCount returns the number of registered workflows.
func (r *WorkflowRegistry) WorkflowCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workflows)
}

// updateMetrics updates the metrics collector with current workflow counts.
func (r *WorkflowRegistry) updateMetrics() {
	r.mu.RLock()
	total := len(r.workflows)
	ready := 0
	for _, entry := range r.workflows {
		if entry.Info.Status == domain.StatusReady {
			ready++
		}
	}
	r.mu.RUnlock()

	r.metrics.SetWorkflowsLoaded(total)
	r.metrics.SetWorkflowsReady(ready)
}

// Restore registers all workflows from the workflow store.
func (r *WorkflowRegistry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	records, err := r.store.List(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if _, err := r.Register(ctx, rec.Definition, rec.Metadata, SourceStore); err != nil {
			r.logger.Error("failed to restore workflow", "id", rec.ID, "error", err)
		}
	}
	r.logger.Info("workflows restored", "count", len(records))
	return nil
}

// LoadAll registers all workflow files from storage.
func (r *WorkflowRegistry) LoadAll(ctx context.Context) error {
	if r.storage == nil {
		return nil
	}
	r.logger.Info("loading all workflows from storage")

	objects, err := r.listWorkflowFiles(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for _, obj := range objects {
		g.Go(func() error {
			if err := r.loadObject(gctx, obj.Key); err != nil {
				r.logger.Error("failed to load workflow", "key", obj.Key, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// LoadFile registers a workflow file from the local filesystem.
func (r *WorkflowRegistry) LoadFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path comes from the watched workflow directory
	if err != nil {
		return "", err
	}
	return r.Register(ctx, data, domain.WorkflowMetadata{}, path)
}

// UnloadSource unregisters every workflow that was loaded from source.
func (r *WorkflowRegistry) UnloadSource(ctx context.Context, source string) int {
	removed := 0
	for _, id := range r.idsBySource(func(s string) bool { return s == source }) {
		if err := r.Delete(ctx, id); err != nil {
			r.logger.Error("failed to unload workflow", "id", id, "source", source, "error", err)
			continue
		}
		removed++
	}
	return removed
}

// ReloadObject replaces the workflows loaded from the storage object key with its
// current content.
func (r *WorkflowRegistry) ReloadObject(ctx context.Context, key string) error {
	if r.storage == nil {
		return domain.ErrStorageUnavailable
	}
	r.UnloadSource(ctx, key)
	return r.loadObject(ctx, key)
}

func (r *WorkflowRegistry) loadObject(ctx context.Context, key string) error {
	start := time.Now()
	reader, err := r.storage.GetReader(ctx, key)
	if err != nil {
		return &domain.StorageError{Operation: "read", Key: key, Err: err}
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	r.metrics.ObserveStorageDuration("read", time.Since(start))
	r.metrics.IncStorageOperations("read", err == nil)
	if err != nil {
		return &domain.StorageError{Operation: "read", Key: key, Err: err}
	}

	_, err = r.Register(ctx, data, domain.WorkflowMetadata{}, key)
	return err
}

func (r *WorkflowRegistry) listWorkflowFiles(ctx context.Context) ([]output.StorageObject, error) {
	objects, err := r.storage.List(ctx)
	r.metrics.IncStorageOperations("list", err == nil)
	if err != nil {
		return nil, &domain.StorageError{Operation: "list", Err: err}
	}

	files := objects[:0:0]
	for _, obj := range objects {
		if operators.IsWorkflowFile(obj.Key) {
			files = append(files, obj)
		}
	}
	return files, nil
}

// SyncStats contains statistics from a sync operation.
type SyncStats struct {
	Added   int
	Removed int
}

// Sync synchronizes with storage, registering new workflow files and removing
// workflows whose file no longer exists. Workflows registered through the API or
// restored from the store are left alone.
func (r *WorkflowRegistry) Sync(ctx context.Context) (SyncStats, error) {
	if r.storage == nil {
		return SyncStats{}, nil
	}
	r.logger.Info("syncing workflows from storage")

	objects, err := r.listWorkflowFiles(ctx)
	if err != nil {
		return SyncStats{}, err
	}

	remote := make(map[string]bool, len(objects))
	for _, obj := range objects {
		remote[obj.Key] = true
	}

	stats := SyncStats{}

	// Add new workflows
	for _, obj := range objects {
		if len(r.idsBySource(func(s string) bool { return s == obj.Key })) > 0 {
			r.logger.Debug("workflow already loaded, skipping", "key", obj.Key)
			continue
		}
		if err := r.loadObject(ctx, obj.Key); err != nil {
			r.logger.Error("failed to load workflow", "key", obj.Key, "error", err)
			continue
		}
		stats.Added++
		r.logger.Info("new workflow synced", "key", obj.Key)
	}

	// Remove workflows whose file is gone
	gone := r.idsBySource(func(s string) bool {
		return operators.IsWorkflowFile(s) && !remote[s] && !isLocalPath(s)
	})
	for _, id := range gone {
		r.logger.Info("removing workflow not in storage", "id", id)
		if err := r.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrWorkflowNotFound) {
			r.logger.Error("failed to remove workflow", "id", id, "error", err)
			continue
		}
		stats.Removed++
	}

	r.logger.Info("sync completed", "added", stats.Added, "removed", stats.Removed, "total", r.WorkflowCount())
	return stats, nil
}

func (r *WorkflowRegistry) idsBySource(match func(string) bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, entry := range r.workflows {
		if match(entry.Info.Source) {
			ids = append(ids, id)
		}
	}
	return ids
}

// isLocalPath reports whether a source is an absolute path registered by the watcher.
func isLocalPath(source string) bool {
	return len(source) > 0 && source[0] == os.PathSeparator
}
