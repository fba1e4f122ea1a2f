package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/jobrunner/geoflow/internal/domain"
)

// AsFloat64Processor adapts a raster processor of any pixel type to float64 tiles.
// No-data pixels become NaN.
func AsFloat64Processor(t TypedRasterQueryProcessor) (RasterQueryProcessor[float64], error) {
	switch t.DataType() {
	case domain.U8:
		return floatProcessor[uint8](t)
	case domain.U16:
		return floatProcessor[uint16](t)
	case domain.U32:
		return floatProcessor[uint32](t)
	case domain.U64:
		return floatProcessor[uint64](t)
	case domain.I8:
		return floatProcessor[int8](t)
	case domain.I16:
		return floatProcessor[int16](t)
	case domain.I32:
		return floatProcessor[int32](t)
	case domain.I64:
		return floatProcessor[int64](t)
	case domain.F32:
		return floatProcessor[float32](t)
	case domain.F64:
		return RasterProcessorAs[float64](t)
	}
	return nil, fmt.Errorf("raster data type %v: %w", t.DataType(), domain.ErrUnsupported)
}

func floatProcessor[T domain.Pixel](t TypedRasterQueryProcessor) (RasterQueryProcessor[float64], error) {
	p, err := RasterProcessorAs[T](t)
	if err != nil {
		return nil, err
	}
	return RasterQueryFunc[float64](func(ctx context.Context, q domain.RasterQueryRectangle, qctx QueryContext) (Stream[domain.RasterTile[float64]], error) {
		s, err := p.RasterQuery(ctx, q, qctx)
		if err != nil {
			return nil, err
		}
		return MapStream(s, func(_ context.Context, tile domain.RasterTile[T]) (domain.RasterTile[float64], error) {
			return TileToFloat64(tile), nil
		}), nil
	}), nil
}

// TileToFloat64 converts a tile to float64 pixels with NaN as no-data.
func TileToFloat64[T domain.Pixel](tile domain.RasterTile[T]) domain.RasterTile[float64] {
	return domain.RasterTile[float64]{
		Time:               tile.Time,
		TilePosition:       tile.TilePosition,
		Band:               tile.Band,
		GlobalGeoTransform: tile.GlobalGeoTransform,
		Grid:               domain.MapPixels(tile.Grid, math.NaN(), func(v T) (float64, bool) { return float64(v), true }),
		CacheHint:          tile.CacheHint,
	}
}
