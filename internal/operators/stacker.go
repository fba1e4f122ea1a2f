package operators

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
)

var errStackClosed = errors.New("stacked stream closed")

// RasterStackerParams has no fields. It exists so the operator encodes like every other.
type RasterStackerParams struct{}

// RasterStacker concatenates the bands of its raster sources.
type RasterStacker struct {
	Params  RasterStackerParams
	Sources engine.Sources
}

// NewRasterStacker stacks the given sources in order.
func NewRasterStacker(sources ...engine.RasterOperator) *RasterStacker {
	return &RasterStacker{Sources: engine.Sources{Rasters: sources}}
}

// TypeName implements engine.RasterOperator.
func (s *RasterStacker) TypeName() string { return TypeRasterStacker }

func (s *RasterStacker) params() any             { return s.Params }
func (s *RasterStacker) sources() engine.Sources { return s.Sources }

// Initialize implements engine.RasterOperator.
func (s *RasterStacker) Initialize(ctx context.Context, ectx engine.ExecutionContext) (engine.InitializedRasterOperator, error) {
	init, err := engine.InitializeSources(ctx, ectx, TypeRasterStacker, s.Sources, [2]int{1, math.MaxInt}, [2]int{0, 1})
	if err != nil {
		return nil, err
	}

	desc, err := stackedDescriptor(init.Rasters)
	if err != nil {
		return nil, err
	}

	name, err := engine.ComputeCanonicalName(TypeRasterStacker, s.Params, init.Names()...)
	if err != nil {
		return nil, err
	}

	bands := make([]int, len(init.Rasters))
	for i, r := range init.Rasters {
		bands[i] = r.ResultDescriptor().Bands
	}

	ectx.Logger().Debug("Initialized raster stacker",
		"sources", len(init.Rasters),
		"bands", desc.Bands,
		"data_type", desc.DataType)

	return &initializedStacker{sources: init.Rasters, bands: bands, desc: desc, name: name}, nil
}

// stackedDescriptor takes data type, spatial reference and measurement from the first
// source, the extents over all sources and the finest resolution. Bands add up.
func stackedDescriptor(sources []engine.InitializedRasterOperator) (domain.RasterResultDescriptor, error) {
	first := sources[0].ResultDescriptor()

	var (
		times       []*domain.TimeInterval
		boxes       []*domain.SpatialPartition2D
		resolutions []*domain.SpatialResolution
		bands       int
	)
	for i, src := range sources {
		d := src.ResultDescriptor()
		if d.DataType != first.DataType {
			return domain.RasterResultDescriptor{}, &domain.ValidationError{
				Field:      fmt.Sprintf("sources.rasters[%d].dataType", i),
				Value:      d.DataType,
				Constraint: fmt.Sprintf("== %s", first.DataType),
				Message:    "all stacked rasters must have the same data type",
			}
		}
		times = append(times, d.Time)
		boxes = append(boxes, d.BBox)
		resolutions = append(resolutions, d.Resolution)
		bands += d.Bands
	}

	return domain.RasterResultDescriptor{
		DataType:         first.DataType,
		SpatialReference: first.SpatialReference,
		Measurement:      first.Measurement,
		Time:             domain.TimeIntervalExtent(times),
		BBox:             domain.SpatialPartitionExtent(boxes),
		Resolution:       domain.MinResolution(resolutions),
		Bands:            bands,
	}, nil
}

type initializedStacker struct {
	sources []engine.InitializedRasterOperator
	bands   []int
	desc    domain.RasterResultDescriptor
	name    engine.CanonicalName
}

func (s *initializedStacker) ResultDescriptor() domain.RasterResultDescriptor { return s.desc }
func (s *initializedStacker) CanonicalName() engine.CanonicalName           { return s.name }

func (s *initializedStacker) QueryProcessor() (engine.TypedRasterQueryProcessor, error) {
	typed := make([]engine.TypedRasterQueryProcessor, len(s.sources))
	for i, src := range s.sources {
		p, err := src.QueryProcessor()
		if err != nil {
			return engine.TypedRasterQueryProcessor{}, err
		}
		typed[i] = p
	}

	switch s.desc.DataType {
	case domain.U8:
		return stackerProcessor[uint8](typed, s.bands)
	case domain.U16:
		return stackerProcessor[uint16](typed, s.bands)
	case domain.U32:
		return stackerProcessor[uint32](typed, s.bands)
	case domain.U64:
		return stackerProcessor[uint64](typed, s.bands)
	case domain.I8:
		return stackerProcessor[int8](typed, s.bands)
	case domain.I16:
		return stackerProcessor[int16](typed, s.bands)
	case domain.I32:
		return stackerProcessor[int32](typed, s.bands)
	case domain.I64:
		return stackerProcessor[int64](typed, s.bands)
	case domain.F32:
		return stackerProcessor[float32](typed, s.bands)
	case domain.F64:
		return stackerProcessor[float64](typed, s.bands)
	}
	return engine.TypedRasterQueryProcessor{}, fmt.Errorf("raster data type %v: %w", s.desc.DataType, domain.ErrUnsupported)
}

func stackerProcessor[T domain.Pixel](typed []engine.TypedRasterQueryProcessor, bands []int) (engine.TypedRasterQueryProcessor, error) {
	subs := make([]engine.RasterQueryProcessor[T], len(typed))
	for i, t := range typed {
		p, err := engine.RasterProcessorAs[T](t)
		if err != nil {
			return engine.TypedRasterQueryProcessor{}, err
		}
		subs[i] = p
	}
	return engine.NewTypedRasterProcessor[T](&StackerAdapter[T]{sources: subs, bands: bands}), nil
}

// StackerAdapter answers a query by querying every source that owns a selected band
// and merging their tiles slot by slot.
type StackerAdapter[T domain.Pixel] struct {
	sources []engine.RasterQueryProcessor[T]
	bands   []int
}

// NewStackerAdapter stacks processors whose outputs have the given band counts.
func NewStackerAdapter[T domain.Pixel](sources []engine.RasterQueryProcessor[T], bands []int) (*StackerAdapter[T], error) {
	if len(sources) != len(bands) {
		return nil, fmt.Errorf("%d sources with %d band counts: %w", len(sources), len(bands), domain.ErrInvalidInput)
	}
	return &StackerAdapter[T]{sources: sources, bands: bands}, nil
}

type stackedInput[T domain.Pixel] struct {
	processor engine.RasterQueryProcessor[T]
	bands     domain.BandSelection
	offset    int // output band of the input's first selected band
	stream    engine.Stream[domain.RasterTile[T]]
}

// RasterQuery implements engine.RasterQueryProcessor.
func (a *StackerAdapter[T]) RasterQuery(ctx context.Context, q domain.RasterQueryRectangle, qctx engine.QueryContext) (engine.Stream[domain.RasterTile[T]], error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var (
		inputs []*stackedInput[T]
		offset int
	)
	for i, p := range a.sources {
		sel, ok := domain.MapQueryBands(q.Bands, a.bands, i)
		if !ok {
			continue
		}
		inputs = append(inputs, &stackedInput[T]{processor: p, bands: sel, offset: offset})
		offset += sel.Count()
	}
	if len(inputs) == 0 {
		return engine.EmptyStream[domain.RasterTile[T]](), nil
	}

	streamCtx, cancel := context.WithCancelCause(ctx)

	g, gctx := errgroup.WithContext(streamCtx)
	for _, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return context.Cause(gctx)
			}
			s, err := in.processor.RasterQuery(streamCtx, q.WithBands(in.bands), qctx)
			if err != nil {
				return err
			}
			// The first failing input cancels its siblings.
			in.stream = engine.Prefetch(engine.OnError(s, func(err error) { cancel(err) }), qctx.PrefetchBuffer())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, in := range inputs {
			if in.stream != nil {
				in.stream.Close()
			}
		}
		cancel(err)
		return nil, err
	}

	return &stackedStream[T]{ctx: streamCtx, cancel: cancel, inputs: inputs}, nil
}

// stackedStream emits, per (time, tile) slot, the selected tiles of input 0, then those
// of input 1 and so on.
type stackedStream[T domain.Pixel] struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	inputs []*stackedInput[T]

	input int // input the next tile is read from
	read  int // tiles of the current input already read in this slot

	slotTime domain.TimeInterval
	slotPos  domain.TilePosition

	err error
}

func (s *stackedStream[T]) Read(ctx context.Context) (domain.RasterTile[T], error) {
	var zero domain.RasterTile[T]
	if s.err != nil {
		return zero, s.err
	}
	if err := ctx.Err(); err != nil {
		return zero, context.Cause(ctx)
	}

	in := s.inputs[s.input]
	tile, err := in.stream.Read(s.ctx)
	startOfSlot := s.input == 0 && s.read == 0

	if err != nil {
		s.err = s.failure(err, startOfSlot)
		return zero, s.err
	}

	if startOfSlot {
		s.slotTime, s.slotPos = tile.Time, tile.TilePosition
	} else if tile.Time != s.slotTime || tile.TilePosition != s.slotPos {
		s.err = fmt.Errorf("input %d emitted tile %v at %s, expected %v at %s: %w",
			s.input, tile.TilePosition, tile.Time, s.slotPos, s.slotTime, domain.ErrSourcesNotAligned)
		return zero, s.err
	}

	tile.Band += in.offset

	s.read++
	if s.read == in.bands.Count() {
		s.read = 0
		s.input = (s.input + 1) % len(s.inputs)
	}
	return tile, nil
}

// failure resolves the error ending the stream. The stream's cancellation cause wins
// over what the input reported. EOF is only clean at a slot boundary once every input
// has ended.
func (s *stackedStream[T]) failure(err error, startOfSlot bool) error {
	if cause := s.cause(); cause != nil {
		return cause
	}
	if !errors.Is(err, engine.EOF) {
		return err
	}
	if !startOfSlot {
		return fmt.Errorf("input %d ended inside a slot: %w", s.input, domain.ErrSourcesNotAligned)
	}

	for i, in := range s.inputs[1:] {
		_, err := in.stream.Read(s.ctx)
		if cause := s.cause(); cause != nil {
			return cause
		}
		switch {
		case errors.Is(err, engine.EOF):
		case err != nil:
			return err
		default:
			return fmt.Errorf("input %d continues after input 0 ended: %w", i+1, domain.ErrSourcesNotAligned)
		}
	}
	return engine.EOF
}

func (s *stackedStream[T]) cause() error {
	if cause := context.Cause(s.ctx); cause != nil && !errors.Is(cause, errStackClosed) {
		return cause
	}
	return nil
}

func (s *stackedStream[T]) Close() {
	s.cancel(errStackClosed)
	for _, in := range s.inputs {
		in.stream.Close()
	}
}
