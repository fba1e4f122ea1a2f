package geopackage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// Transformer implements output.CoordinateTransformer with SpatiaLite's PROJ bindings.
// It runs on an in-memory database carrying the full spatial_ref_sys table.
type Transformer struct {
	db *sql.DB

	mu    sync.Mutex
	known map[int]bool
}

var _ output.CoordinateTransformer = (*Transformer)(nil)

// NewTransformer opens the in-memory SpatiaLite database.
func NewTransformer(ctx context.Context) (*Transformer, error) {
	db, err := openDB(ctx, ":memory:")
	if err != nil {
		return nil, err
	}
	// A single connection: every new :memory: connection would be an empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "SELECT InitSpatialMetaDataFull(1)"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing spatial metadata: %w", err)
	}

	return &Transformer{db: db, known: make(map[int]bool)}, nil
}

// Transform projects g from one EPSG reference to another.
func (t *Transformer) Transform(ctx context.Context, g orb.Geometry, from, to domain.SpatialReference) (orb.Geometry, error) {
	if from == to {
		return g, nil
	}
	if !t.IsSupported(from, to) {
		return nil, &domain.ReprojectionError{From: from, To: to, Err: domain.ErrUnsupported}
	}

	var text sql.NullString
	err := t.db.QueryRowContext(ctx,
		"SELECT AsText(Transform(GeomFromText(?, ?), ?))",
		wkt.MarshalString(g), from.Code, to.Code,
	).Scan(&text)
	if err != nil {
		return nil, &domain.ReprojectionError{From: from, To: to, Err: err}
	}
	if !text.Valid {
		return nil, &domain.ReprojectionError{From: from, To: to, Err: fmt.Errorf("transformation returned no geometry")}
	}

	projected, err := wkt.Unmarshal(text.String)
	if err != nil {
		return nil, &domain.ReprojectionError{From: from, To: to, Err: err}
	}
	return projected, nil
}

// IsSupported reports whether both references are EPSG codes present in spatial_ref_sys.
func (t *Transformer) IsSupported(from, to domain.SpatialReference) bool {
	return t.knows(from) && t.knows(to)
}

func (t *Transformer) knows(ref domain.SpatialReference) bool {
	if !strings.EqualFold(ref.Authority, "EPSG") {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if ok, cached := t.known[ref.Code]; cached {
		return ok
	}

	var count int
	err := t.db.QueryRow(
		"SELECT COUNT(*) FROM spatial_ref_sys WHERE auth_name = 'epsg' AND auth_srid = ?", ref.Code,
	).Scan(&count)
	ok := err == nil && count > 0
	if err == nil {
		t.known[ref.Code] = ok
	}
	return ok
}

// Close releases the database.
func (t *Transformer) Close() error {
	return t.db.Close()
}
