package application

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
	"github.com/jobrunner/geoflow/internal/operators"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockStorage implements output.ObjectStorage for testing.
type mockStorage struct {
	mu      sync.Mutex
	files   map[string]string
	listErr error
	reads   int
}

func (m *mockStorage) List(_ context.Context) ([]output.StorageObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	objects := make([]output.StorageObject, 0, len(m.files))
	for key, content := range m.files {
		objects = append(objects, output.StorageObject{Key: key, Size: int64(len(content))})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (m *mockStorage) Download(_ context.Context, _, _ string) error {
	return nil
}

func (m *mockStorage) GetReader(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	content, ok := m.files[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (m *mockStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[key]
	return ok, nil
}

func (m *mockStorage) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
}

// mockStore implements output.WorkflowStore in memory.
type mockStore struct {
	mu      sync.Mutex
	records map[string]output.WorkflowRecord
	saveErr error
}

func newMockStore() *mockStore {
	return &mockStore{records: make(map[string]output.WorkflowRecord)}
}

func (m *mockStore) Save(_ context.Context, record output.WorkflowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[record.ID] = record
	return nil
}

func (m *mockStore) Load(_ context.Context, id string) (*output.WorkflowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return &rec, nil
}

func (m *mockStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *mockStore) List(_ context.Context) ([]output.WorkflowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]output.WorkflowRecord, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, rec)
	}
	return records, nil
}

// mockRepository implements output.FeatureRepository for testing.
type mockRepository struct {
	datasets map[string]*domain.Dataset
	openErr  error
	indexErr error
	indexed  []string
	closed   []string
}

func (m *mockRepository) Open(_ context.Context, path string) (*domain.Dataset, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	if ds, ok := m.datasets[path]; ok {
		cp := *ds
		cp.Layers = append([]domain.Layer(nil), ds.Layers...)
		return &cp, nil
	}
	return &domain.Dataset{ID: path, Name: path, Path: path}, nil
}

func (m *mockRepository) Close(_ context.Context, id string) error {
	m.closed = append(m.closed, id)
	return nil
}

func (m *mockRepository) Dataset(id string) (*domain.Dataset, bool) {
	for _, ds := range m.datasets {
		if ds.ID == id {
			return ds, true
		}
	}
	return nil, false
}

func (m *mockRepository) GetLayers(_ context.Context, id string) ([]domain.Layer, error) {
	if ds, ok := m.Dataset(id); ok {
		return ds.Layers, nil
	}
	return nil, domain.ErrDatasetNotFound
}

func (m *mockRepository) QueryBBox(_ context.Context, _, _ string, _ domain.BoundingBox2D, _, _ int) ([]output.LayerFeature, error) {
	return nil, nil
}

func (m *mockRepository) CreateSpatialIndex(_ context.Context, id, layer string) error {
	if m.indexErr != nil {
		return m.indexErr
	}
	m.indexed = append(m.indexed, id+"/"+layer)
	return nil
}

// mockMetrics records the calls the services make.
type mockMetrics struct {
	output.NoOpMetrics
	mu        sync.Mutex
	queries   map[bool]int
	tiles     int
	features  int
	loaded    int
	ready     int
	storageOK int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{queries: make(map[bool]int)}
}

func (m *mockMetrics) IncQueryCount(_ string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries[success]++
}

func (m *mockMetrics) AddTilesEmitted(_ string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiles += n
}

func (m *mockMetrics) AddFeaturesEmitted(_ string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features += n
}

func (m *mockMetrics) SetWorkflowsLoaded(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = count
}

func (m *mockMetrics) SetWorkflowsReady(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = count
}

func (m *mockMetrics) IncStorageOperations(_ string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.storageOK++
	}
}

func (m *mockMetrics) ObserveQueryDuration(_ string, _ time.Duration) {}

var testShape = domain.GridShape{Rows: 2, Cols: 2}

func interval(start, end int64) domain.TimeInterval {
	return domain.TimeInterval{Start: domain.TimeInstance(start), End: domain.TimeInstance(end)}
}

func u8Tile(t domain.TimeInterval, band int, data ...uint8) domain.RasterTile[uint8] {
	return domain.RasterTile[uint8]{
		Time:               t,
		Band:               band,
		GlobalGeoTransform: domain.NewGeoTransform(domain.Coordinate2D{X: 0, Y: 2}, 1, -1),
		Grid:               domain.Grid[uint8]{Shape: testShape, Data: data},
	}
}

func rasterDescriptor(bands int) domain.RasterResultDescriptor {
	return domain.RasterResultDescriptor{
		DataType:         domain.U8,
		SpatialReference: domain.EPSG(domain.SRIDWGS84),
		Measurement:      domain.UnitlessMeasurement(),
		Bands:            bands,
	}
}

func rasterQuery() domain.RasterQueryRectangle {
	return domain.RasterQueryRectangle{
		SpatialBounds: domain.SpatialPartition2D{
			UpperLeft:  domain.Coordinate2D{X: 0, Y: 2},
			LowerRight: domain.Coordinate2D{X: 2, Y: 0},
		},
		TimeInterval:      interval(0, 100),
		SpatialResolution: domain.SpatialResolution{X: 1, Y: 1},
		Bands:             domain.FirstBand(),
	}
}

func vectorQuery() domain.VectorQueryRectangle {
	return domain.VectorQueryRectangle{
		SpatialBounds: domain.BoundingBox2D{
			LowerLeft:  domain.Coordinate2D{X: -180, Y: -90},
			UpperRight: domain.Coordinate2D{X: 180, Y: 90},
		},
		TimeInterval:      interval(0, 100),
		SpatialResolution: domain.SpatialResolution{X: 1, Y: 1},
	}
}

// definition encodes an operator as a workflow definition.
func definition(t *testing.T, typ domain.ResultType, op any) []byte {
	t.Helper()
	data, err := json.Marshal(operators.Workflow{Type: typ, Operator: op})
	if err != nil {
		t.Fatalf("marshal workflow: %v", err)
	}
	return data
}

func rasterDefinition(t *testing.T, tiles ...domain.RasterTile[uint8]) []byte {
	t.Helper()
	return definition(t, domain.ResultRaster, operators.NewMockRasterSource(tiles, rasterDescriptor(1)))
}

func pointDefinition(t *testing.T, points ...domain.Coordinate2D) []byte {
	t.Helper()
	return definition(t, domain.ResultVector, &operators.MockPointSource{
		Params: operators.MockPointSourceParams{Points: points},
	})
}

type testEnv struct {
	registry *WorkflowRegistry
	storage  *mockStorage
	store    *mockStore
	metrics  *mockMetrics
}

func newTestEnv() *testEnv {
	env := &testEnv{
		storage: &mockStorage{files: make(map[string]string)},
		store:   newMockStore(),
		metrics: newMockMetrics(),
	}
	ectx := engine.NewMockExecutionContext(engine.DefaultTilingSpecification())
	env.registry = NewWorkflowRegistry(ectx, env.storage, env.store, env.metrics, testLogger())
	return env
}
