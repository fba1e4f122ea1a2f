package operators

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
	"github.com/jobrunner/geoflow/internal/engine/expression"
)

// maxExpressionBands is the number of single-letter band variables.
const maxExpressionBands = 26

// ExpressionParams configures the Expression operator.
type ExpressionParams struct {
	Expression        string                `json:"expression"`
	OutputType        domain.RasterDataType `json:"outputType"`
	OutputMeasurement *domain.Measurement   `json:"outputMeasurement,omitempty"`
	MapNoData         bool                  `json:"mapNoData"`

	// OutputNoData is written for no-data pixels. It defaults to NaN for float outputs
	// and to the type's maximum for integer outputs, where a computed value saturating
	// at the maximum then reads as no-data. Set it to a value the expression cannot
	// produce when that matters.
	OutputNoData *float64 `json:"outputNoDataValue,omitempty"`
}

// Expression computes one output band per pixel from the bands of its raster source.
// Band i of the source is bound to the variable A, B, ... in order.
type Expression struct {
	Params  ExpressionParams
	Sources engine.Sources
}

// TypeName implements engine.RasterOperator.
func (e *Expression) TypeName() string { return TypeExpression }

func (e *Expression) params() any             { return e.Params }
func (e *Expression) sources() engine.Sources { return e.Sources }

// BandVariable returns the variable name of source band i.
func BandVariable(i int) string {
	return string(rune('A' + i))
}

// Initialize implements engine.RasterOperator.
func (e *Expression) Initialize(ctx context.Context, ectx engine.ExecutionContext) (engine.InitializedRasterOperator, error) {
	init, err := engine.InitializeSources(ctx, ectx, TypeExpression, e.Sources, [2]int{1, 2}, [2]int{0, 1})
	if err != nil {
		return nil, err
	}
	source := init.Rasters[0]
	in := source.ResultDescriptor()

	if in.Bands > maxExpressionBands {
		return nil, &domain.ValidationError{
			Field:      "sources.rasters[0].bands",
			Value:      in.Bands,
			Constraint: fmt.Sprintf("<= %d", maxExpressionBands),
			Message:    "too many bands to bind to expression variables",
		}
	}

	if err := validateOutputNoData(e.Params.OutputType, e.Params.OutputNoData); err != nil {
		return nil, err
	}

	params := make([]expression.Parameter, in.Bands)
	for i := range params {
		params[i] = expression.NumberParam(BandVariable(i))
	}

	name, err := engine.ComputeCanonicalName(TypeExpression, e.Params, init.Names()...)
	if err != nil {
		return nil, err
	}

	program, err := ectx.Compiler().Compile("expression_"+name.String(), e.Params.Expression, params, expression.Number)
	if err != nil {
		return nil, fmt.Errorf("compiling expression: %w", err)
	}

	measurement := domain.UnitlessMeasurement()
	if e.Params.OutputMeasurement != nil {
		measurement = *e.Params.OutputMeasurement
	}

	desc := in
	desc.DataType = e.Params.OutputType
	desc.Measurement = measurement
	desc.Bands = 1

	return &initializedExpression{
		source:    source,
		program:   program,
		bands:     in.Bands,
		mapNoData: e.Params.MapNoData,
		noData:    e.Params.OutputNoData,
		desc:      desc,
		name:      name,
	}, nil
}

type initializedExpression struct {
	source    engine.InitializedRasterOperator
	program   *expression.Program
	bands     int
	mapNoData bool
	noData    *float64
	desc      domain.RasterResultDescriptor
	name      engine.CanonicalName
}

func (e *initializedExpression) ResultDescriptor() domain.RasterResultDescriptor { return e.desc }
func (e *initializedExpression) CanonicalName() engine.CanonicalName           { return e.name }

func (e *initializedExpression) QueryProcessor() (engine.TypedRasterQueryProcessor, error) {
	typed, err := e.source.QueryProcessor()
	if err != nil {
		return engine.TypedRasterQueryProcessor{}, err
	}
	src, err := engine.AsFloat64Processor(typed)
	if err != nil {
		return engine.TypedRasterQueryProcessor{}, err
	}

	switch e.desc.DataType {
	case domain.U8:
		return engine.NewTypedRasterProcessor[uint8](newExpressionProcessor[uint8](e, src)), nil
	case domain.U16:
		return engine.NewTypedRasterProcessor[uint16](newExpressionProcessor[uint16](e, src)), nil
	case domain.U32:
		return engine.NewTypedRasterProcessor[uint32](newExpressionProcessor[uint32](e, src)), nil
	case domain.U64:
		return engine.NewTypedRasterProcessor[uint64](newExpressionProcessor[uint64](e, src)), nil
	case domain.I8:
		return engine.NewTypedRasterProcessor[int8](newExpressionProcessor[int8](e, src)), nil
	case domain.I16:
		return engine.NewTypedRasterProcessor[int16](newExpressionProcessor[int16](e, src)), nil
	case domain.I32:
		return engine.NewTypedRasterProcessor[int32](newExpressionProcessor[int32](e, src)), nil
	case domain.I64:
		return engine.NewTypedRasterProcessor[int64](newExpressionProcessor[int64](e, src)), nil
	case domain.F32:
		return engine.NewTypedRasterProcessor[float32](newExpressionProcessor[float32](e, src)), nil
	case domain.F64:
		return engine.NewTypedRasterProcessor[float64](newExpressionProcessor[float64](e, src)), nil
	}
	return engine.TypedRasterQueryProcessor{}, fmt.Errorf("raster data type %v: %w", e.desc.DataType, domain.ErrUnsupported)
}

type expressionProcessor[U domain.Pixel] struct {
	source    engine.RasterQueryProcessor[float64]
	program   *expression.Program
	bands     int
	mapNoData bool
	noData    U
}

func newExpressionProcessor[U domain.Pixel](e *initializedExpression, src engine.RasterQueryProcessor[float64]) *expressionProcessor[U] {
	return &expressionProcessor[U]{
		source:    src,
		program:   e.program,
		bands:     e.bands,
		mapNoData: e.mapNoData,
		noData:    outputNoData[U](e.noData),
	}
}

// outputNoData is the configured value, or NaN for float outputs and the type's
// maximum otherwise.
func outputNoData[U domain.Pixel](configured *float64) U {
	if configured != nil {
		return domain.PixelFromFloat[U](*configured)
	}
	dt := domain.DataTypeOf[U]()
	if dt.IsFloat() {
		return domain.PixelFromFloat[U](math.NaN())
	}
	return domain.PixelFromFloat[U](dt.MaxValue())
}

func validateOutputNoData(dt domain.RasterDataType, v *float64) error {
	if v == nil || dt.IsFloat() {
		return nil
	}
	if *v != math.Trunc(*v) || *v < dt.MinValue() || *v > dt.MaxValue() {
		return &domain.ValidationError{
			Field:      "params.outputNoDataValue",
			Value:      *v,
			Constraint: fmt.Sprintf("integer in [%v, %v]", dt.MinValue(), dt.MaxValue()),
			Message:    "no-data value is not representable in the output type",
		}
	}
	return nil
}

func (p *expressionProcessor[U]) RasterQuery(ctx context.Context, q domain.RasterQueryRectangle, qctx engine.QueryContext) (engine.Stream[domain.RasterTile[U]], error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Bands.Start() != 0 || q.Bands.End() != 1 {
		return nil, fmt.Errorf("expression output has one band, query selects %s: %w", q.Bands, domain.ErrInvalidBandSelection)
	}

	src, err := p.source.RasterQuery(ctx, q.WithBands(domain.MustBandRange(0, p.bands)), qctx)
	if err != nil {
		return nil, err
	}

	slot := make([]domain.RasterTile[float64], p.bands)
	return engine.NewFuncStream(func(ctx context.Context) (domain.RasterTile[U], error) {
		var zero domain.RasterTile[U]
		for i := range slot {
			tile, err := src.Read(ctx)
			if errors.Is(err, engine.EOF) && i > 0 {
				return zero, fmt.Errorf("source ended after band %d of %d: %w", i, p.bands, domain.ErrSourcesNotAligned)
			}
			if err != nil {
				return zero, err
			}
			if i > 0 && (tile.Time != slot[0].Time || tile.TilePosition != slot[0].TilePosition || tile.Grid.Shape != slot[0].Grid.Shape) {
				return zero, fmt.Errorf("band %d of tile %v is misaligned: %w", i, slot[0].TilePosition, domain.ErrSourcesNotAligned)
			}
			slot[i] = tile
		}
		return p.evaluate(slot), nil
	}, src.Close), nil
}

func (p *expressionProcessor[U]) evaluate(slot []domain.RasterTile[float64]) domain.RasterTile[U] {
	first := slot[0]
	out := domain.RasterTile[U]{
		Time:               first.Time,
		TilePosition:       first.TilePosition,
		Band:               0,
		GlobalGeoTransform: first.GlobalGeoTransform,
		CacheHint:          first.CacheHint,
	}
	noData := p.noData

	allEmpty := true
	for _, t := range slot {
		out.CacheHint = out.CacheHint.Merge(t.CacheHint)
		if !t.IsEmpty() {
			allEmpty = false
		}
	}
	if allEmpty && !p.mapNoData {
		out.Grid = domain.Grid[U]{Shape: first.Grid.Shape, NoData: &noData}
		return out
	}

	n := first.Grid.Shape.Len()
	data := make([]U, n)
	args := make([]float64, len(slot))
	for px := 0; px < n; px++ {
		hasNoData := false
		for b, t := range slot {
			v := math.NaN()
			if !t.IsEmpty() && !t.Grid.IsNoData(t.Grid.Data[px]) {
				v = t.Grid.Data[px]
			}
			hasNoData = hasNoData || math.IsNaN(v)
			args[b] = v
		}
		if hasNoData && !p.mapNoData {
			data[px] = noData
			continue
		}

		f, ok := p.program.EvalFloats(args...)
		if !ok || math.IsNaN(f) {
			data[px] = noData
			continue
		}
		data[px] = domain.PixelFromFloat[U](f)
	}
	out.Grid = domain.Grid[U]{Shape: first.Grid.Shape, Data: data, NoData: &noData}
	return out
}
