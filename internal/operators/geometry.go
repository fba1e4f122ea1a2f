package operators

import (
	"github.com/paulmach/orb"

	"github.com/jobrunner/geoflow/internal/domain"
)

// promote converts g to the geometry kind G, lifting single geometries to their
// multi variant.
func promote[G domain.Geometry](g orb.Geometry) (G, bool) {
	var zero G
	var out any
	switch any(zero).(type) {
	case domain.NoGeometry:
		return zero, true
	case orb.MultiPoint:
		switch v := g.(type) {
		case orb.Point:
			out = orb.MultiPoint{v}
		case orb.MultiPoint:
			out = v
		}
	case orb.MultiLineString:
		switch v := g.(type) {
		case orb.LineString:
			out = orb.MultiLineString{v}
		case orb.MultiLineString:
			out = v
		}
	case orb.MultiPolygon:
		switch v := g.(type) {
		case orb.Polygon:
			out = orb.MultiPolygon{v}
		case orb.MultiPolygon:
			out = v
		}
	}
	typed, ok := out.(G)
	return typed, ok
}

// columnType maps a decoded property value to a column type.
func columnType(v any) (domain.FeatureDataType, bool) {
	switch v.(type) {
	case float64, float32:
		return domain.FeatureFloat, true
	case int, int32, int64:
		return domain.FeatureInt, true
	case string:
		return domain.FeatureText, true
	case bool:
		return domain.FeatureBool, true
	}
	return "", false
}

// intersectsQuery reports whether a feature's geometry touches the query box.
// Data-only features always match.
func intersectsQuery[G domain.Geometry](g G, box domain.BoundingBox2D) bool {
	if _, ok := any(g).(domain.NoGeometry); ok {
		return true
	}
	return g.Bound().Intersects(box.Bound())
}
