package expression

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// DataType is the type of an expression value.
type DataType int

// Data types.
const (
	Number DataType = iota
	MultiPoint
	MultiLineString
	MultiPolygon
)

var dataTypeNames = [...]string{"number", "multipoint", "multilinestring", "multipolygon"}

// String returns the type name.
func (t DataType) String() string {
	if t < 0 || int(t) >= len(dataTypeNames) {
		return fmt.Sprintf("DataType(%d)", int(t))
	}
	return dataTypeNames[t]
}

// Suffix returns the one-letter code used in generated function names.
func (t DataType) Suffix() byte {
	switch t {
	case MultiPoint:
		return 'p'
	case MultiLineString:
		return 'l'
	case MultiPolygon:
		return 'q'
	default:
		return 'n'
	}
}

// Value is an optional number or geometry. Values with Valid false are no-data.
type Value struct {
	Type     DataType
	Valid    bool
	Number   float64
	Geometry orb.Geometry
}

// Num returns a valid number.
func Num(f float64) Value {
	return Value{Type: Number, Valid: true, Number: f}
}

// None returns an absent number.
func None() Value {
	return Value{Type: Number}
}

// NoneOf returns an absent value of type t.
func NoneOf(t DataType) Value {
	return Value{Type: t}
}

// Geom returns a valid geometry value. Only multi geometries are accepted.
func Geom(g orb.Geometry) (Value, error) {
	switch g.(type) {
	case orb.MultiPoint:
		return Value{Type: MultiPoint, Valid: true, Geometry: g}, nil
	case orb.MultiLineString:
		return Value{Type: MultiLineString, Valid: true, Geometry: g}, nil
	case orb.MultiPolygon:
		return Value{Type: MultiPolygon, Valid: true, Geometry: g}, nil
	}
	return Value{}, fmt.Errorf("geometry %T: %w", g, ErrTypeMismatch)
}

// Float returns the number and whether it is present.
func (v Value) Float() (float64, bool) {
	if !v.Valid || v.Type != Number {
		return 0, false
	}
	return v.Number, true
}

// String formats the value for debugging.
func (v Value) String() string {
	if !v.Valid {
		return "None"
	}
	if v.Type == Number {
		return fmt.Sprintf("Some(%g)", v.Number)
	}
	return fmt.Sprintf("Some(%s)", v.Geometry.GeoJSONType())
}

// compareOptional orders absent values before all numbers, as optional values do.
func compareOptional(a, b Value) int {
	switch {
	case !a.Valid && !b.Valid:
		return 0
	case !a.Valid:
		return -1
	case !b.Valid:
		return 1
	}
	switch {
	case a.Number < b.Number:
		return -1
	case a.Number > b.Number:
		return 1
	case a.Number == b.Number:
		return 0
	}
	// NaN is unordered
	return math.MinInt
}
