// Package domain contains the value types shared by the engine: spatial and temporal
// bounds, band selections, data types, result descriptors, query rectangles, raster
// tiles and feature collections.
package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Common SRID constants.
const (
	SRIDWGS84        = 4326   // WGS 84
	SRIDWebMercator  = 3857   // Web Mercator
	SRIDGoogleMerc   = 900913 // Legacy Google Mercator alias of 3857
	SRIDETRS89UTM32N = 25832  // ETRS89 / UTM zone 32N
	SRIDETRS89UTM33N = 25833  // ETRS89 / UTM zone 33N
)

// Projection represents a coordinate reference system.
type Projection struct {
	SRID int    // EPSG Code
	Name string // Human-readable name
}

// CommonProjections contains frequently used projections.
var CommonProjections = map[int]Projection{
	SRIDWGS84:        {SRID: SRIDWGS84, Name: "WGS 84"},
	SRIDWebMercator:  {SRID: SRIDWebMercator, Name: "Web Mercator"},
	SRIDGoogleMerc:   {SRID: SRIDGoogleMerc, Name: "Google Mercator"},
	SRIDETRS89UTM32N: {SRID: SRIDETRS89UTM32N, Name: "ETRS89 / UTM zone 32N"},
	SRIDETRS89UTM33N: {SRID: SRIDETRS89UTM33N, Name: "ETRS89 / UTM zone 33N"},
}

// IsKnownSRID returns true if the SRID is in the common projections list.
func IsKnownSRID(srid int) bool {
	_, ok := CommonProjections[srid]
	return ok
}

// SpatialReference identifies a coordinate reference system by authority and code.
// The zero value is the unknown reference, resolved at runtime by sources.
type SpatialReference struct {
	Authority string
	Code      int
}

// EPSG returns the EPSG spatial reference with the given code.
func EPSG(code int) SpatialReference {
	return SpatialReference{Authority: "EPSG", Code: code}
}

// UnknownSpatialReference is the unresolved spatial reference.
var UnknownSpatialReference = SpatialReference{}

// IsUnknown reports whether the reference is unresolved.
func (s SpatialReference) IsUnknown() bool {
	return s.Authority == ""
}

// String returns the AUTHORITY:CODE form, or "unknown".
func (s SpatialReference) String() string {
	if s.IsUnknown() {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", s.Authority, s.Code)
}

// ParseSpatialReference parses "EPSG:4326" style references and "unknown".
func ParseSpatialReference(text string) (SpatialReference, error) {
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, "unknown") {
		return UnknownSpatialReference, nil
	}

	authority, code, ok := strings.Cut(text, ":")
	if !ok || authority == "" {
		return SpatialReference{}, fmt.Errorf("%q: %w", text, ErrInvalidSpatialRef)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n <= 0 {
		return SpatialReference{}, fmt.Errorf("%q: %w", text, ErrInvalidSpatialRef)
	}

	return SpatialReference{Authority: strings.ToUpper(authority), Code: n}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (s SpatialReference) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SpatialReference) UnmarshalText(text []byte) error {
	ref, err := ParseSpatialReference(string(text))
	if err != nil {
		return err
	}
	*s = ref
	return nil
}

// Coordinate2D is a planar coordinate.
type Coordinate2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox2D is an axis-aligned extent. It is well-formed when min <= max on both axes.
type BoundingBox2D struct {
	LowerLeft  Coordinate2D `json:"lowerLeftCoordinate"`
	UpperRight Coordinate2D `json:"upperRightCoordinate"`
}

// NewBoundingBox2D creates a bounding box and validates it.
func NewBoundingBox2D(minX, minY, maxX, maxY float64) (BoundingBox2D, error) {
	b := BoundingBox2D{
		LowerLeft:  Coordinate2D{X: minX, Y: minY},
		UpperRight: Coordinate2D{X: maxX, Y: maxY},
	}
	return b, b.Validate()
}

// Validate checks that the box is not inverted and has finite bounds.
func (b BoundingBox2D) Validate() error {
	for _, v := range []float64{b.LowerLeft.X, b.LowerLeft.Y, b.UpperRight.X, b.UpperRight.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{
				Field:      "spatialBounds",
				Value:      b,
				Constraint: "finite",
				Message:    "bounds must be finite numbers",
			}
		}
	}
	if b.LowerLeft.X > b.UpperRight.X || b.LowerLeft.Y > b.UpperRight.Y {
		return &ValidationError{
			Field:      "spatialBounds",
			Value:      b,
			Constraint: "min <= max",
			Message:    "lower left must not exceed upper right",
		}
	}
	return nil
}

// Contains checks if a coordinate is within the box (inclusive).
func (b BoundingBox2D) Contains(c Coordinate2D) bool {
	return c.X >= b.LowerLeft.X && c.X <= b.UpperRight.X &&
		c.Y >= b.LowerLeft.Y && c.Y <= b.UpperRight.Y
}

// Intersects reports whether the two boxes share at least one point.
func (b BoundingBox2D) Intersects(o BoundingBox2D) bool {
	return b.LowerLeft.X <= o.UpperRight.X && o.LowerLeft.X <= b.UpperRight.X &&
		b.LowerLeft.Y <= o.UpperRight.Y && o.LowerLeft.Y <= b.UpperRight.Y
}

// Extend returns the smallest box covering both boxes.
func (b BoundingBox2D) Extend(o BoundingBox2D) BoundingBox2D {
	return BoundingBox2D{
		LowerLeft: Coordinate2D{
			X: math.Min(b.LowerLeft.X, o.LowerLeft.X),
			Y: math.Min(b.LowerLeft.Y, o.LowerLeft.Y),
		},
		UpperRight: Coordinate2D{
			X: math.Max(b.UpperRight.X, o.UpperRight.X),
			Y: math.Max(b.UpperRight.Y, o.UpperRight.Y),
		},
	}
}

// Width returns the width of the box.
func (b BoundingBox2D) Width() float64 {
	return math.Abs(b.UpperRight.X - b.LowerLeft.X)
}

// Height returns the height of the box.
func (b BoundingBox2D) Height() float64 {
	return math.Abs(b.UpperRight.Y - b.LowerLeft.Y)
}

// Center returns the center coordinate of the box.
func (b BoundingBox2D) Center() Coordinate2D {
	return Coordinate2D{
		X: (b.LowerLeft.X + b.UpperRight.X) / 2,
		Y: (b.LowerLeft.Y + b.UpperRight.Y) / 2,
	}
}

// BoundingBoxExtent returns the union of all known boxes. A nil entry means the
// extent of that input is unknown, which makes the whole extent unknown.
func BoundingBoxExtent(boxes []*BoundingBox2D) *BoundingBox2D {
	if len(boxes) == 0 {
		return nil
	}
	var out *BoundingBox2D
	for _, b := range boxes {
		if b == nil {
			return nil
		}
		if out == nil {
			c := *b
			out = &c
			continue
		}
		e := out.Extend(*b)
		out = &e
	}
	return out
}

// SpatialResolution is the pixel size along both axes.
type SpatialResolution struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Validate checks that both axes are strictly positive.
func (r SpatialResolution) Validate() error {
	if !(r.X > 0) || !(r.Y > 0) {
		return &ValidationError{
			Field:      "spatialResolution",
			Value:      r,
			Constraint: "> 0",
			Message:    "resolution must be strictly positive on both axes",
		}
	}
	return nil
}

// Min returns the component-wise minimum.
func (r SpatialResolution) Min(o SpatialResolution) SpatialResolution {
	return SpatialResolution{X: math.Min(r.X, o.X), Y: math.Min(r.Y, o.Y)}
}

// MinResolution returns the component-wise minimum of all resolutions, or nil if
// any resolution is unknown.
func MinResolution(resolutions []*SpatialResolution) *SpatialResolution {
	if len(resolutions) == 0 {
		return nil
	}
	var out *SpatialResolution
	for _, r := range resolutions {
		if r == nil {
			return nil
		}
		if out == nil {
			c := *r
			out = &c
			continue
		}
		m := out.Min(*r)
		out = &m
	}
	return out
}

// SpatialPartition2D is a raster extent given by its upper-left and lower-right corners.
// It is well-formed when upper left x < lower right x and upper left y > lower right y.
type SpatialPartition2D struct {
	UpperLeft  Coordinate2D `json:"upperLeftCoordinate"`
	LowerRight Coordinate2D `json:"lowerRightCoordinate"`
}

// NewSpatialPartition2D creates a partition and validates it.
func NewSpatialPartition2D(upperLeft, lowerRight Coordinate2D) (SpatialPartition2D, error) {
	p := SpatialPartition2D{UpperLeft: upperLeft, LowerRight: lowerRight}
	return p, p.Validate()
}

// Validate checks that the partition is non-empty and not inverted.
func (p SpatialPartition2D) Validate() error {
	if p.UpperLeft.X >= p.LowerRight.X || p.UpperLeft.Y <= p.LowerRight.Y {
		return &ValidationError{
			Field:      "spatialBounds",
			Value:      p,
			Constraint: "upper left strictly above and left of lower right",
			Message:    "spatial partition is empty or inverted",
		}
	}
	return p.BoundingBox().Validate()
}

// BoundingBox returns the partition as a bounding box.
func (p SpatialPartition2D) BoundingBox() BoundingBox2D {
	return BoundingBox2D{
		LowerLeft:  Coordinate2D{X: p.UpperLeft.X, Y: p.LowerRight.Y},
		UpperRight: Coordinate2D{X: p.LowerRight.X, Y: p.UpperLeft.Y},
	}
}

// Intersects reports whether the two partitions overlap with positive area.
func (p SpatialPartition2D) Intersects(o SpatialPartition2D) bool {
	return p.UpperLeft.X < o.LowerRight.X && o.UpperLeft.X < p.LowerRight.X &&
		p.LowerRight.Y < o.UpperLeft.Y && o.LowerRight.Y < p.UpperLeft.Y
}

// Extend returns the smallest partition covering both.
func (p SpatialPartition2D) Extend(o SpatialPartition2D) SpatialPartition2D {
	return SpatialPartition2D{
		UpperLeft: Coordinate2D{
			X: math.Min(p.UpperLeft.X, o.UpperLeft.X),
			Y: math.Max(p.UpperLeft.Y, o.UpperLeft.Y),
		},
		LowerRight: Coordinate2D{
			X: math.Max(p.LowerRight.X, o.LowerRight.X),
			Y: math.Min(p.LowerRight.Y, o.LowerRight.Y),
		},
	}
}

// PartitionFromBoundingBox converts a bounding box into a partition.
func PartitionFromBoundingBox(b BoundingBox2D) SpatialPartition2D {
	return SpatialPartition2D{
		UpperLeft:  Coordinate2D{X: b.LowerLeft.X, Y: b.UpperRight.Y},
		LowerRight: Coordinate2D{X: b.UpperRight.X, Y: b.LowerLeft.Y},
	}
}

// SpatialPartitionExtent returns the union of all partitions, or nil if any is unknown.
func SpatialPartitionExtent(partitions []*SpatialPartition2D) *SpatialPartition2D {
	if len(partitions) == 0 {
		return nil
	}
	var out *SpatialPartition2D
	for _, p := range partitions {
		if p == nil {
			return nil
		}
		if out == nil {
			c := *p
			out = &c
			continue
		}
		e := out.Extend(*p)
		out = &e
	}
	return out
}
