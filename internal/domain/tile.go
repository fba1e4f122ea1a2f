package domain

import (
	"fmt"
	"math"
	"time"
)

// Pixel is the set of raster pixel types.
type Pixel interface {
	uint8 | uint16 | uint32 | uint64 | int8 | int16 | int32 | int64 | float32 | float64
}

// DataTypeOf returns the RasterDataType of the pixel type T.
func DataTypeOf[T Pixel]() RasterDataType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return U8
	case uint16:
		return U16
	case uint32:
		return U32
	case uint64:
		return U64
	case int8:
		return I8
	case int16:
		return I16
	case int32:
		return I32
	case int64:
		return I64
	case float32:
		return F32
	default:
		return F64
	}
}

// PixelFromFloat converts f to T, saturating at the type's bounds. NaN maps to zero
// for integer types.
func PixelFromFloat[T Pixel](f float64) T {
	dt := DataTypeOf[T]()
	if dt.IsFloat() {
		return T(f)
	}
	if math.IsNaN(f) {
		return 0
	}
	switch {
	case f <= dt.MinValue():
		return boundPixel[T](dt, false)
	case f >= dt.MaxValue():
		return boundPixel[T](dt, true)
	}
	return T(f)
}

func boundPixel[T Pixel](dt RasterDataType, upper bool) T {
	var lo int64
	var hi uint64
	switch dt {
	case U8:
		hi = math.MaxUint8
	case U16:
		hi = math.MaxUint16
	case U32:
		hi = math.MaxUint32
	case U64:
		hi = math.MaxUint64
	case I8:
		lo, hi = math.MinInt8, math.MaxInt8
	case I16:
		lo, hi = math.MinInt16, math.MaxInt16
	case I32:
		lo, hi = math.MinInt32, math.MaxInt32
	case I64:
		lo, hi = math.MinInt64, math.MaxInt64
	}
	if upper {
		return T(hi)
	}
	return T(lo)
}

// GridShape is the size of a 2D grid in pixels.
type GridShape struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Len returns the number of pixels.
func (s GridShape) Len() int {
	return s.Rows * s.Cols
}

// TilePosition is the index of a tile in the global tiling grid. Indices may be negative.
type TilePosition struct {
	Y int `json:"y"`
	X int `json:"x"`
}

// GeoTransform maps pixel indices to coordinates.
type GeoTransform struct {
	Origin     Coordinate2D `json:"originCoordinate"`
	XPixelSize float64      `json:"xPixelSize"`
	YPixelSize float64      `json:"yPixelSize"`
}

// NewGeoTransform returns a north-up transform. yPixelSize is usually negative.
func NewGeoTransform(origin Coordinate2D, xPixelSize, yPixelSize float64) GeoTransform {
	return GeoTransform{Origin: origin, XPixelSize: xPixelSize, YPixelSize: yPixelSize}
}

// PixelToCoordinate returns the upper-left coordinate of the pixel at (y, x).
func (g GeoTransform) PixelToCoordinate(y, x int) Coordinate2D {
	return Coordinate2D{
		X: g.Origin.X + float64(x)*g.XPixelSize,
		Y: g.Origin.Y + float64(y)*g.YPixelSize,
	}
}

// CoordinateToPixel returns the pixel containing c.
func (g GeoTransform) CoordinateToPixel(c Coordinate2D) (y, x int) {
	x = int(math.Floor((c.X - g.Origin.X) / g.XPixelSize))
	y = int(math.Floor((c.Y - g.Origin.Y) / g.YPixelSize))
	return y, x
}

// TilingSpecification defines the global tiling grid raster sources produce tiles in.
type TilingSpecification struct {
	Origin    Coordinate2D `json:"originCoordinate"`
	TileShape GridShape    `json:"tileSizeInPixels"`
}

// Grid is a row-major pixel buffer. A grid without data is empty: every pixel is no-data.
type Grid[T Pixel] struct {
	Shape  GridShape
	Data   []T
	NoData *T
}

// NewGrid creates a grid and checks that the data fits the shape.
func NewGrid[T Pixel](shape GridShape, data []T, noData *T) (Grid[T], error) {
	if len(data) != shape.Len() {
		return Grid[T]{}, &ValidationError{
			Field:      "data",
			Value:      len(data),
			Constraint: fmt.Sprintf("== %d", shape.Len()),
			Message:    "grid data length does not match its shape",
		}
	}
	return Grid[T]{Shape: shape, Data: data, NoData: noData}, nil
}

// EmptyGrid creates a grid where all pixels are no-data.
func EmptyGrid[T Pixel](shape GridShape) Grid[T] {
	return Grid[T]{Shape: shape}
}

// IsEmpty reports whether the grid carries no pixel data.
func (g Grid[T]) IsEmpty() bool {
	return g.Data == nil
}

// IsNoData reports whether v is the grid's no-data value or NaN.
func (g Grid[T]) IsNoData(v T) bool {
	if v != v {
		return true
	}
	return g.NoData != nil && *g.NoData == v
}

// At returns the pixel at (y, x) and whether it holds valid data.
func (g Grid[T]) At(y, x int) (T, bool) {
	var zero T
	if g.IsEmpty() || y < 0 || x < 0 || y >= g.Shape.Rows || x >= g.Shape.Cols {
		return zero, false
	}
	v := g.Data[y*g.Shape.Cols+x]
	if g.IsNoData(v) {
		return zero, false
	}
	return v, true
}

// CacheHint tells consumers how long a tile may be cached.
type CacheHint struct {
	MaxAge time.Duration
}

// NoCache returns a hint that forbids caching.
func NoCache() CacheHint {
	return CacheHint{}
}

// MaxCacheHint returns a hint that allows indefinite caching.
func MaxCacheHint() CacheHint {
	return CacheHint{MaxAge: time.Duration(math.MaxInt64)}
}

// Merge returns the shorter of the two hints.
func (c CacheHint) Merge(o CacheHint) CacheHint {
	return CacheHint{MaxAge: min(c.MaxAge, o.MaxAge)}
}

// RasterTile is one tile of one band at one time of a raster stream.
type RasterTile[T Pixel] struct {
	Time               TimeInterval
	TilePosition       TilePosition
	Band               int
	GlobalGeoTransform GeoTransform
	Grid               Grid[T]
	CacheHint          CacheHint
}

// IsEmpty reports whether the tile carries no pixel data.
func (t RasterTile[T]) IsEmpty() bool {
	return t.Grid.IsEmpty()
}

// TileGeoTransform returns the transform of the tile's upper-left pixel.
func (t RasterTile[T]) TileGeoTransform() GeoTransform {
	origin := t.GlobalGeoTransform.PixelToCoordinate(
		t.TilePosition.Y*t.Grid.Shape.Rows, t.TilePosition.X*t.Grid.Shape.Cols)
	return NewGeoTransform(origin, t.GlobalGeoTransform.XPixelSize, t.GlobalGeoTransform.YPixelSize)
}

// SpatialPartition returns the area the tile covers.
func (t RasterTile[T]) SpatialPartition() SpatialPartition2D {
	gt := t.TileGeoTransform()
	return SpatialPartition2D{
		UpperLeft:  gt.Origin,
		LowerRight: gt.PixelToCoordinate(t.Grid.Shape.Rows, t.Grid.Shape.Cols),
	}
}

// MapPixels applies fn to every valid pixel and returns a grid of type U. Pixels that are
// no-data, or for which fn reports false, become the output no-data value.
func MapPixels[T, U Pixel](g Grid[T], noData U, fn func(T) (U, bool)) Grid[U] {
	out := Grid[U]{Shape: g.Shape, NoData: &noData}
	if g.IsEmpty() {
		return out
	}
	out.Data = make([]U, len(g.Data))
	for i, v := range g.Data {
		if g.IsNoData(v) {
			out.Data[i] = noData
			continue
		}
		r, ok := fn(v)
		if !ok {
			r = noData
		}
		out.Data[i] = r
	}
	return out
}
