package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/jobrunner/geoflow/internal/domain"
)

// RasterQueryProcessor answers raster queries with a stream of tiles of pixel type T.
type RasterQueryProcessor[T domain.Pixel] interface {
	RasterQuery(ctx context.Context, query domain.RasterQueryRectangle, qctx QueryContext) (Stream[domain.RasterTile[T]], error)
}

// VectorQueryProcessor answers vector queries with a stream of feature collections.
type VectorQueryProcessor[G domain.Geometry] interface {
	VectorQuery(ctx context.Context, query domain.VectorQueryRectangle, qctx QueryContext) (Stream[domain.FeatureCollection[G]], error)
}

// PlotQueryProcessor answers plot queries with a JSON document.
type PlotQueryProcessor interface {
	PlotQuery(ctx context.Context, query domain.PlotQueryRectangle, qctx QueryContext) (json.RawMessage, error)
}

// RasterQueryFunc adapts a function to RasterQueryProcessor.
type RasterQueryFunc[T domain.Pixel] func(context.Context, domain.RasterQueryRectangle, QueryContext) (Stream[domain.RasterTile[T]], error)

// RasterQuery implements RasterQueryProcessor.
func (f RasterQueryFunc[T]) RasterQuery(ctx context.Context, q domain.RasterQueryRectangle, qctx QueryContext) (Stream[domain.RasterTile[T]], error) {
	return f(ctx, q, qctx)
}

// VectorQueryFunc adapts a function to VectorQueryProcessor.
type VectorQueryFunc[G domain.Geometry] func(context.Context, domain.VectorQueryRectangle, QueryContext) (Stream[domain.FeatureCollection[G]], error)

// VectorQuery implements VectorQueryProcessor.
func (f VectorQueryFunc[G]) VectorQuery(ctx context.Context, q domain.VectorQueryRectangle, qctx QueryContext) (Stream[domain.FeatureCollection[G]], error) {
	return f(ctx, q, qctx)
}

// TypedRasterQueryProcessor is a raster processor of one of the ten pixel types.
type TypedRasterQueryProcessor struct {
	dataType  domain.RasterDataType
	processor any
}

// NewTypedRasterProcessor wraps a processor together with its pixel type.
func NewTypedRasterProcessor[T domain.Pixel](p RasterQueryProcessor[T]) TypedRasterQueryProcessor {
	return TypedRasterQueryProcessor{dataType: domain.DataTypeOf[T](), processor: p}
}

// DataType returns the pixel type of the wrapped processor.
func (t TypedRasterQueryProcessor) DataType() domain.RasterDataType {
	return t.dataType
}

// RasterProcessorAs returns the wrapped processor if its pixel type is T.
func RasterProcessorAs[T domain.Pixel](t TypedRasterQueryProcessor) (RasterQueryProcessor[T], error) {
	p, ok := t.processor.(RasterQueryProcessor[T])
	if !ok {
		return nil, &domain.TypeMismatchError{
			Expected: domain.DataTypeOf[T]().String(),
			Found:    t.dataType.String(),
		}
	}
	return p, nil
}

// U8 returns the processor if it produces uint8 tiles.
func (t TypedRasterQueryProcessor) U8() (RasterQueryProcessor[uint8], error) {
	return RasterProcessorAs[uint8](t)
}

// U16 returns the processor if it produces uint16 tiles.
func (t TypedRasterQueryProcessor) U16() (RasterQueryProcessor[uint16], error) {
	return RasterProcessorAs[uint16](t)
}

// U32 returns the processor if it produces uint32 tiles.
func (t TypedRasterQueryProcessor) U32() (RasterQueryProcessor[uint32], error) {
	return RasterProcessorAs[uint32](t)
}

// U64 returns the processor if it produces uint64 tiles.
func (t TypedRasterQueryProcessor) U64() (RasterQueryProcessor[uint64], error) {
	return RasterProcessorAs[uint64](t)
}

// I8 returns the processor if it produces int8 tiles.
func (t TypedRasterQueryProcessor) I8() (RasterQueryProcessor[int8], error) {
	return RasterProcessorAs[int8](t)
}

// I16 returns the processor if it produces int16 tiles.
func (t TypedRasterQueryProcessor) I16() (RasterQueryProcessor[int16], error) {
	return RasterProcessorAs[int16](t)
}

// I32 returns the processor if it produces int32 tiles.
func (t TypedRasterQueryProcessor) I32() (RasterQueryProcessor[int32], error) {
	return RasterProcessorAs[int32](t)
}

// I64 returns the processor if it produces int64 tiles.
func (t TypedRasterQueryProcessor) I64() (RasterQueryProcessor[int64], error) {
	return RasterProcessorAs[int64](t)
}

// F32 returns the processor if it produces float32 tiles.
func (t TypedRasterQueryProcessor) F32() (RasterQueryProcessor[float32], error) {
	return RasterProcessorAs[float32](t)
}

// F64 returns the processor if it produces float64 tiles.
func (t TypedRasterQueryProcessor) F64() (RasterQueryProcessor[float64], error) {
	return RasterProcessorAs[float64](t)
}

// TypedVectorQueryProcessor is a vector processor of one of the geometry kinds.
type TypedVectorQueryProcessor struct {
	dataType  domain.VectorDataType
	processor any
}

// NewTypedVectorProcessor wraps a processor together with its geometry kind.
func NewTypedVectorProcessor[G domain.Geometry](p VectorQueryProcessor[G]) TypedVectorQueryProcessor {
	return TypedVectorQueryProcessor{dataType: domain.VectorDataTypeOf[G](), processor: p}
}

// DataType returns the geometry kind of the wrapped processor.
func (t TypedVectorQueryProcessor) DataType() domain.VectorDataType {
	return t.dataType
}

// VectorProcessorAs returns the wrapped processor if its geometry kind is G.
func VectorProcessorAs[G domain.Geometry](t TypedVectorQueryProcessor) (VectorQueryProcessor[G], error) {
	p, ok := t.processor.(VectorQueryProcessor[G])
	if !ok {
		return nil, &domain.TypeMismatchError{
			Expected: domain.VectorDataTypeOf[G]().String(),
			Found:    t.dataType.String(),
		}
	}
	return p, nil
}

// Data returns the processor if it produces data-only collections.
func (t TypedVectorQueryProcessor) Data() (VectorQueryProcessor[domain.NoGeometry], error) {
	return VectorProcessorAs[domain.NoGeometry](t)
}

// MultiPoint returns the processor if it produces point collections.
func (t TypedVectorQueryProcessor) MultiPoint() (VectorQueryProcessor[orb.MultiPoint], error) {
	return VectorProcessorAs[orb.MultiPoint](t)
}

// MultiLineString returns the processor if it produces line collections.
func (t TypedVectorQueryProcessor) MultiLineString() (VectorQueryProcessor[orb.MultiLineString], error) {
	return VectorProcessorAs[orb.MultiLineString](t)
}

// MultiPolygon returns the processor if it produces polygon collections.
func (t TypedVectorQueryProcessor) MultiPolygon() (VectorQueryProcessor[orb.MultiPolygon], error) {
	return VectorProcessorAs[orb.MultiPolygon](t)
}

// TypedPlotQueryProcessor wraps a plot processor with its output format.
type TypedPlotQueryProcessor struct {
	Format    string // e.g. "json"
	Processor PlotQueryProcessor
}

// CheckDataType returns a TypeMismatchError if got differs from want.
func CheckDataType(want, got domain.RasterDataType) error {
	if want != got {
		return &domain.TypeMismatchError{Expected: want.String(), Found: got.String()}
	}
	return nil
}

// String returns a short description for logs.
func (t TypedRasterQueryProcessor) String() string {
	return fmt.Sprintf("RasterQueryProcessor<%s>", t.dataType)
}
