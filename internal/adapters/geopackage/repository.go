package geopackage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/paulmach/orb/encoding/wkt"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// Repository implements output.FeatureRepository over GeoPackage files.
type Repository struct {
	mu          sync.RWMutex
	connections map[string]*sql.DB
	datasets    map[string]*domain.Dataset
}

var _ output.FeatureRepository = (*Repository)(nil)

// NewRepository creates a new GeoPackage repository.
func NewRepository() *Repository {
	return &Repository{
		connections: make(map[string]*sql.DB),
		datasets:    make(map[string]*domain.Dataset),
	}
}

// Open opens a GeoPackage file and reads its feature layers.
func (r *Repository) Open(ctx context.Context, path string) (*domain.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := DeriveDatasetID(path)
	if ds, ok := r.datasets[id]; ok {
		return ds, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}

	// Read-write so that missing R-tree indices can be added; feature data is never modified
	db, err := openDB(ctx, fmt.Sprintf("file:%s?cache=shared", path))
	if err != nil {
		return nil, &domain.StorageError{Operation: "open", Key: path, Err: err}
	}

	layers, err := readLayers(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	ds := &domain.Dataset{
		ID:     id,
		Name:   id,
		Path:   path,
		Size:   info.Size(),
		Layers: layers,
	}
	ds.Indexed = allIndexed(ds.Layers)

	r.connections[id] = db
	r.datasets[id] = ds
	return ds, nil
}

// Close closes a dataset.
func (r *Repository) Close(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	db, ok := r.connections[id]
	if !ok {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}

	delete(r.connections, id)
	delete(r.datasets, id)
	return nil
}

// Dataset returns an open dataset.
func (r *Repository) Dataset(id string) (*domain.Dataset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.datasets[id]
	return ds, ok
}

// GetLayers returns all feature layers of a dataset.
func (r *Repository) GetLayers(_ context.Context, id string) ([]domain.Layer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ds, ok := r.datasets[id]
	if !ok {
		return nil, domain.ErrDatasetNotFound
	}
	return ds.Layers, nil
}

func (r *Repository) layer(id, name string) (*sql.DB, domain.Layer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ds, ok := r.datasets[id]
	if !ok {
		return nil, domain.Layer{}, domain.ErrDatasetNotFound
	}
	layer, ok := ds.GetLayer(name)
	if !ok {
		return nil, domain.Layer{}, domain.ErrLayerNotFound
	}
	return r.connections[id], *layer, nil
}

// QueryBBox returns up to limit features whose bounding box intersects bbox, ordered by
// row id and skipping the first offset matches.
func (r *Repository) QueryBBox(ctx context.Context, id, layerName string, bbox domain.BoundingBox2D, limit, offset int) ([]output.LayerFeature, error) {
	db, layer, err := r.layer(id, layerName)
	if err != nil {
		return nil, err
	}

	var query string
	if layer.HasIndex {
		query = fmt.Sprintf(`
			SELECT t.*, AsText(CastAutomagic(t."%[1]s"))
			FROM "%[2]s" t
			INNER JOIN "%[3]s" r ON t.rowid = r.id
			WHERE r.minx <= ? AND r.maxx >= ? AND r.miny <= ? AND r.maxy >= ?
			ORDER BY t.rowid
			LIMIT ? OFFSET ?
		`, layer.GeometryColumn, layer.Name, rtreeName(layer)) //#nosec G201 -- names read from gpkg_contents
	} else {
		query = fmt.Sprintf(`
			SELECT t.*, AsText(CastAutomagic(t."%[1]s"))
			FROM "%[2]s" t
			WHERE MbrMinX(CastAutomagic(t."%[1]s")) <= ? AND MbrMaxX(CastAutomagic(t."%[1]s")) >= ?
			  AND MbrMinY(CastAutomagic(t."%[1]s")) <= ? AND MbrMaxY(CastAutomagic(t."%[1]s")) >= ?
			ORDER BY t.rowid
			LIMIT ? OFFSET ?
		`, layer.GeometryColumn, layer.Name) //#nosec G201 -- names read from gpkg_contents
	}

	ll, ur := bbox.LowerLeft, bbox.UpperRight
	rows, err := db.QueryContext(ctx, query, ur.X, ll.X, ur.Y, ll.Y, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying layer %s: %w", layer.Name, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var features []output.LayerFeature
	for rows.Next() {
		f, err := scanFeature(rows, columns, layer.GeometryColumn)
		if err != nil {
			return nil, fmt.Errorf("reading layer %s: %w", layer.Name, err)
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

// scanFeature converts a row of "SELECT t.*, AsText(geom)" into a feature.
func scanFeature(rows *sql.Rows, columns []string, geomColumn string) (output.LayerFeature, error) {
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return output.LayerFeature{}, err
	}

	f := output.LayerFeature{Properties: make(map[string]any)}
	last := len(columns) - 1
	for i, col := range columns[:last] {
		switch {
		case col == geomColumn:
		case strings.EqualFold(col, "fid"):
			if v, ok := values[i].(int64); ok {
				f.ID = v
			}
		case values[i] == nil:
		default:
			if b, ok := values[i].([]byte); ok {
				f.Properties[col] = string(b)
				continue
			}
			f.Properties[col] = values[i]
		}
	}

	text, ok := values[last].(string)
	if !ok {
		if b, isBytes := values[last].([]byte); isBytes {
			text, ok = string(b), true
		}
	}
	if ok && text != "" {
		g, err := wkt.Unmarshal(text)
		if err != nil {
			return output.LayerFeature{}, fmt.Errorf("feature %d: %w", f.ID, err)
		}
		f.Geometry = g
	}
	return f, nil
}

// CreateSpatialIndex creates the GeoPackage R-tree of a layer if it is missing.
// The R-tree is created directly since SpatiaLite's CreateSpatialIndex() requires a
// geometry_columns table that GeoPackages lack.
func (r *Repository) CreateSpatialIndex(ctx context.Context, id, layerName string) error {
	db, layer, err := r.layer(id, layerName)
	if err != nil {
		return err
	}

	exists, err := tableExists(ctx, db, rtreeName(layer))
	if err != nil {
		return err
	}
	if !exists {
		if err := buildRTree(ctx, db, layer); err != nil {
			return &domain.StorageError{Operation: "index", Key: id + "/" + layerName, Err: err}
		}
	}

	r.mu.Lock()
	if ds, ok := r.datasets[id]; ok {
		for i := range ds.Layers {
			if ds.Layers[i].Name == layerName {
				ds.Layers[i].HasIndex = true
			}
		}
		ds.Indexed = allIndexed(ds.Layers)
	}
	r.mu.Unlock()
	return nil
}

func buildRTree(ctx context.Context, db *sql.DB, layer domain.Layer) error {
	table := rtreeName(layer)
	create := fmt.Sprintf(`CREATE VIRTUAL TABLE "%s" USING rtree(id, minx, maxx, miny, maxy)`, table) //#nosec G201 -- names read from gpkg_contents
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("creating R-tree table: %w", err)
	}

	populate := fmt.Sprintf(`
		INSERT INTO "%[1]s" (id, minx, maxx, miny, maxy)
		SELECT rowid,
			MbrMinX(CastAutomagic("%[2]s")), MbrMaxX(CastAutomagic("%[2]s")),
			MbrMinY(CastAutomagic("%[2]s")), MbrMaxY(CastAutomagic("%[2]s"))
		FROM "%[3]s"
		WHERE "%[2]s" IS NOT NULL
	`, table, layer.GeometryColumn, layer.Name) //#nosec G201 -- names read from gpkg_contents
	if _, err := db.ExecContext(ctx, populate); err != nil {
		_, _ = db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, table))
		return fmt.Errorf("populating R-tree index: %w", err)
	}
	return nil
}

// readLayers reads the feature layers from gpkg_contents.
func readLayers(ctx context.Context, db *sql.DB) ([]domain.Layer, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			c.table_name,
			COALESCE(c.description, ''),
			g.column_name,
			g.geometry_type_name,
			g.srs_id,
			c.min_x, c.min_y, c.max_x, c.max_y
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON c.table_name = g.table_name
		WHERE c.data_type = 'features'
		ORDER BY c.table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("reading layers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var layers []domain.Layer
	for rows.Next() {
		var (
			l                      domain.Layer
			minX, minY, maxX, maxY sql.NullFloat64
		)
		if err := rows.Scan(&l.Name, &l.Description, &l.GeometryColumn, &l.GeometryType, &l.SRID,
			&minX, &minY, &maxX, &maxY); err != nil {
			return nil, fmt.Errorf("scanning layer: %w", err)
		}
		if minX.Valid && minY.Valid && maxX.Valid && maxY.Valid {
			if box, err := domain.NewBoundingBox2D(minX.Float64, minY.Float64, maxX.Float64, maxY.Float64); err == nil {
				l.Extent = &box
			}
		}
		layers = append(layers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range layers {
		l := &layers[i]
		count := fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, l.Name) //#nosec G201 -- name read from gpkg_contents
		_ = db.QueryRowContext(ctx, count).Scan(&l.FeatureCount)
		l.HasIndex, _ = tableExists(ctx, db, rtreeName(*l))
	}
	return layers, nil
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&count)
	return count > 0, err
}

func allIndexed(layers []domain.Layer) bool {
	for _, l := range layers {
		if !l.HasIndex {
			return false
		}
	}
	return true
}

// rtreeName is the GeoPackage R-tree extension table of a layer.
func rtreeName(l domain.Layer) string {
	return fmt.Sprintf("rtree_%s_%s", l.Name, l.GeometryColumn)
}

// DeriveDatasetID derives a dataset ID from the file name without extension.
func DeriveDatasetID(path string) string {
	base := filepath.Base(path)
	if path == "" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
