// Package projection provides coordinate transformers that need no native libraries.
package projection

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/ports/output"
)

// Builtin projects between WGS 84 and spherical Web Mercator using orb/project.
type Builtin struct{}

var _ output.CoordinateTransformer = Builtin{}

// NewBuiltin creates a builtin transformer.
func NewBuiltin() Builtin {
	return Builtin{}
}

// Transform projects a copy of g. The input geometry is not modified.
func (b Builtin) Transform(ctx context.Context, g orb.Geometry, from, to domain.SpatialReference) (orb.Geometry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, okFrom := canonical(from)
	dst, okTo := canonical(to)
	if !okFrom || !okTo {
		return nil, &domain.ReprojectionError{From: from, To: to, Err: domain.ErrUnsupported}
	}
	if src == dst || g == nil {
		return g, nil
	}

	proj := project.WGS84.ToMercator
	if src == domain.SRIDWebMercator {
		proj = project.Mercator.ToWGS84
	}
	return project.Geometry(orb.Clone(g), proj), nil
}

// IsSupported reports whether both references are WGS 84 or Web Mercator.
func (b Builtin) IsSupported(from, to domain.SpatialReference) bool {
	_, okFrom := canonical(from)
	_, okTo := canonical(to)
	return okFrom && okTo
}

// canonical folds the legacy Google Mercator code into 3857.
func canonical(ref domain.SpatialReference) (int, bool) {
	if ref.Authority != "EPSG" {
		return 0, false
	}
	switch ref.Code {
	case domain.SRIDWGS84:
		return domain.SRIDWGS84, true
	case domain.SRIDWebMercator, domain.SRIDGoogleMerc:
		return domain.SRIDWebMercator, true
	default:
		return 0, false
	}
}
