package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// RasterDataType is the pixel type of a raster output.
type RasterDataType int

// Raster data types.
const (
	U8 RasterDataType = iota
	U16
	U32
	U64
	I8
	I16
	I32
	I64
	F32
	F64
)

var rasterDataTypeNames = [...]string{"U8", "U16", "U32", "U64", "I8", "I16", "I32", "I64", "F32", "F64"}

// RasterDataTypes lists all raster data types.
var RasterDataTypes = []RasterDataType{U8, U16, U32, U64, I8, I16, I32, I64, F32, F64}

// String returns the type name, e.g. "U8".
func (t RasterDataType) String() string {
	if t < 0 || int(t) >= len(rasterDataTypeNames) {
		return "RasterDataType(" + strconv.Itoa(int(t)) + ")"
	}
	return rasterDataTypeNames[t]
}

// ParseRasterDataType parses a type name.
func ParseRasterDataType(s string) (RasterDataType, error) {
	for i, name := range rasterDataTypeNames {
		if name == s {
			return RasterDataType(i), nil
		}
	}
	return 0, &ValidationError{
		Field:      "dataType",
		Value:      s,
		Constraint: "one of U8..F64",
		Message:    "unknown raster data type",
	}
}

// IsFloat reports whether the type is a floating point type.
func (t RasterDataType) IsFloat() bool {
	return t == F32 || t == F64
}

// MinValue returns the smallest representable value as float64.
func (t RasterDataType) MinValue() float64 {
	switch t {
	case U8, U16, U32, U64:
		return 0
	case I8:
		return math.MinInt8
	case I16:
		return math.MinInt16
	case I32:
		return math.MinInt32
	case I64:
		return math.MinInt64
	case F32:
		return -math.MaxFloat32
	default:
		return -math.MaxFloat64
	}
}

// MaxValue returns the largest representable value as float64.
func (t RasterDataType) MaxValue() float64 {
	switch t {
	case U8:
		return math.MaxUint8
	case U16:
		return math.MaxUint16
	case U32:
		return math.MaxUint32
	case U64:
		return math.MaxUint64
	case I8:
		return math.MaxInt8
	case I16:
		return math.MaxInt16
	case I32:
		return math.MaxInt32
	case I64:
		return math.MaxInt64
	case F32:
		return math.MaxFloat32
	default:
		return math.MaxFloat64
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t RasterDataType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *RasterDataType) UnmarshalText(text []byte) error {
	v, err := ParseRasterDataType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// VectorDataType is the geometry kind of a feature collection.
type VectorDataType int

// Vector data types. Data is a collection without geometries.
const (
	VectorData VectorDataType = iota
	VectorMultiPoint
	VectorMultiLineString
	VectorMultiPolygon
)

var vectorDataTypeNames = [...]string{"Data", "MultiPoint", "MultiLineString", "MultiPolygon"}

// String returns the type name.
func (t VectorDataType) String() string {
	if t < 0 || int(t) >= len(vectorDataTypeNames) {
		return "VectorDataType(" + strconv.Itoa(int(t)) + ")"
	}
	return vectorDataTypeNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t VectorDataType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *VectorDataType) UnmarshalText(text []byte) error {
	for i, name := range vectorDataTypeNames {
		if name == string(text) {
			*t = VectorDataType(i)
			return nil
		}
	}
	return &ValidationError{
		Field:      "dataType",
		Value:      string(text),
		Constraint: "Data|MultiPoint|MultiLineString|MultiPolygon",
		Message:    "unknown vector data type",
	}
}

// MeasurementKind distinguishes the measurement variants.
type MeasurementKind string

// Measurement kinds.
const (
	Unitless       MeasurementKind = "unitless"
	Continuous     MeasurementKind = "continuous"
	Classification MeasurementKind = "classification"
)

// Measurement describes what a raster's values mean.
type Measurement struct {
	Kind        MeasurementKind
	Measurement string         // Continuous and Classification
	Unit        string         // Continuous only
	Classes     map[int]string // Classification only
}

// UnitlessMeasurement returns the unitless measurement.
func UnitlessMeasurement() Measurement {
	return Measurement{Kind: Unitless}
}

// ContinuousMeasurement returns a continuous measurement with an optional unit.
func ContinuousMeasurement(measurement, unit string) Measurement {
	return Measurement{Kind: Continuous, Measurement: measurement, Unit: unit}
}

// String returns a short label.
func (m Measurement) String() string {
	switch m.Kind {
	case Continuous:
		if m.Unit != "" {
			return fmt.Sprintf("%s (%s)", m.Measurement, m.Unit)
		}
		return m.Measurement
	case Classification:
		return m.Measurement
	default:
		return "unitless"
	}
}

// Equal compares two measurements including their classes.
func (m Measurement) Equal(o Measurement) bool {
	if m.Kind != o.Kind || m.Measurement != o.Measurement || m.Unit != o.Unit || len(m.Classes) != len(o.Classes) {
		return false
	}
	for k, v := range m.Classes {
		if o.Classes[k] != v {
			return false
		}
	}
	return true
}

type measurementJSON struct {
	Type        MeasurementKind   `json:"type"`
	Measurement string            `json:"measurement,omitempty"`
	Unit        string            `json:"unit,omitempty"`
	Classes     map[string]string `json:"classes,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m Measurement) MarshalJSON() ([]byte, error) {
	kind := m.Kind
	if kind == "" {
		kind = Unitless
	}
	out := measurementJSON{Type: kind, Measurement: m.Measurement, Unit: m.Unit}
	if len(m.Classes) > 0 {
		keys := make([]int, 0, len(m.Classes))
		for k := range m.Classes {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		out.Classes = make(map[string]string, len(keys))
		for _, k := range keys {
			out.Classes[strconv.Itoa(k)] = m.Classes[k]
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Measurement) UnmarshalJSON(data []byte) error {
	var raw measurementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Type {
	case "", Unitless:
		*m = UnitlessMeasurement()
	case Continuous:
		*m = ContinuousMeasurement(raw.Measurement, raw.Unit)
	case Classification:
		classes := make(map[int]string, len(raw.Classes))
		for k, v := range raw.Classes {
			n, err := strconv.Atoi(k)
			if err != nil {
				return fmt.Errorf("classification key %q: %w", k, ErrInvalidInput)
			}
			classes[n] = v
		}
		*m = Measurement{Kind: Classification, Measurement: raw.Measurement, Classes: classes}
	default:
		return fmt.Errorf("unknown measurement type %q: %w", raw.Type, ErrInvalidInput)
	}
	return nil
}
