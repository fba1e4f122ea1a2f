package domain

import (
	"github.com/paulmach/orb"
)

// Geometry is the set of geometry kinds a feature collection can hold.
type Geometry interface {
	orb.MultiPoint | orb.MultiLineString | orb.MultiPolygon | NoGeometry
	Bound() orb.Bound
	GeoJSONType() string
}

// NoGeometry is the geometry of data-only collections.
type NoGeometry struct{}

// Bound returns an empty bound.
func (NoGeometry) Bound() orb.Bound { return orb.Bound{} }

// GeoJSONType returns an empty type.
func (NoGeometry) GeoJSONType() string { return "" }

// Dimensions returns -1, as there is no geometry.
func (NoGeometry) Dimensions() int { return -1 }

// VectorDataTypeOf returns the VectorDataType of the geometry type G.
func VectorDataTypeOf[G Geometry]() VectorDataType {
	var zero G
	switch any(zero).(type) {
	case orb.MultiPoint:
		return VectorMultiPoint
	case orb.MultiLineString:
		return VectorMultiLineString
	case orb.MultiPolygon:
		return VectorMultiPolygon
	default:
		return VectorData
	}
}

// Feature is one geometry with its validity time and attributes.
type Feature[G Geometry] struct {
	ID         int64          // Source feature id, 0 if unknown
	Geometry   G              // Geometry data
	Time       TimeInterval   // Validity
	Properties map[string]any // Attribute data
}

// GetProperty returns a property value by key.
func (f *Feature[G]) GetProperty(key string) (any, bool) {
	if f.Properties == nil {
		return nil, false
	}
	v, ok := f.Properties[key]
	return v, ok
}

// GetStringProperty returns a property as string.
func (f *Feature[G]) GetStringProperty(key string) string {
	if v, ok := f.GetProperty(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetFloatProperty returns a numeric property as float64.
func (f *Feature[G]) GetFloatProperty(key string) (float64, bool) {
	v, ok := f.GetProperty(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// FeatureCollection is one chunk of a vector stream.
type FeatureCollection[G Geometry] struct {
	Features  []Feature[G]
	CacheHint CacheHint
}

// Len returns the number of features.
func (c FeatureCollection[G]) Len() int {
	return len(c.Features)
}

// IsEmpty reports whether the collection has no features.
func (c FeatureCollection[G]) IsEmpty() bool {
	return len(c.Features) == 0
}

// Bound returns the bound of all geometries. It is the zero bound for empty or
// data-only collections.
func (c FeatureCollection[G]) Bound() orb.Bound {
	var b orb.Bound
	first := true
	for _, f := range c.Features {
		if f.Geometry.GeoJSONType() == "" {
			continue
		}
		fb := f.Geometry.Bound()
		if first {
			b, first = fb, false
			continue
		}
		b = b.Union(fb)
	}
	return b
}

// CoordinateCount returns the number of coordinates of all geometries.
func (c FeatureCollection[G]) CoordinateCount() int {
	n := 0
	for _, f := range c.Features {
		n += CountCoordinates(any(f.Geometry))
	}
	return n
}

// CountCoordinates returns the number of points in g.
func CountCoordinates(g any) int {
	switch v := g.(type) {
	case orb.Point:
		return 1
	case orb.MultiPoint:
		return len(v)
	case orb.LineString:
		return len(v)
	case orb.MultiLineString:
		n := 0
		for _, l := range v {
			n += len(l)
		}
		return n
	case orb.Ring:
		return len(v)
	case orb.Polygon:
		n := 0
		for _, r := range v {
			n += len(r)
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range v {
			n += CountCoordinates(p)
		}
		return n
	}
	return 0
}

// Filter returns the features for which keep reports true.
func (c FeatureCollection[G]) Filter(keep func(Feature[G]) bool) FeatureCollection[G] {
	out := FeatureCollection[G]{CacheHint: c.CacheHint}
	for _, f := range c.Features {
		if keep(f) {
			out.Features = append(out.Features, f)
		}
	}
	return out
}
