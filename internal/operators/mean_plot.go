package operators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
)

// TimePosition selects the instant of a tile's interval a mean is attributed to.
type TimePosition string

// Time positions.
const (
	TimeStart  TimePosition = "start"
	TimeCenter TimePosition = "center"
	TimeEnd    TimePosition = "end"
)

// instant projects an interval to one instant.
func (p TimePosition) instant(t domain.TimeInterval) domain.TimeInstance {
	switch p {
	case TimeCenter:
		return t.Center()
	case TimeEnd:
		return t.End
	default:
		return t.Start
	}
}

// TemporalRasterMeanPlotParams configures TemporalRasterMeanPlot.
type TemporalRasterMeanPlotParams struct {
	TimePosition TimePosition `json:"timePosition"`
}

// TemporalRasterMeanPlot charts the mean of all valid pixels per time step.
type TemporalRasterMeanPlot struct {
	Params  TemporalRasterMeanPlotParams
	Sources engine.Sources
}

// TypeName implements engine.PlotOperator.
func (m *TemporalRasterMeanPlot) TypeName() string { return TypeTemporalRasterMeanPlot }

func (m *TemporalRasterMeanPlot) params() any             { return m.Params }
func (m *TemporalRasterMeanPlot) sources() engine.Sources { return m.Sources }

// Initialize implements engine.PlotOperator.
func (m *TemporalRasterMeanPlot) Initialize(ctx context.Context, ectx engine.ExecutionContext) (engine.InitializedPlotOperator, error) {
	switch m.Params.TimePosition {
	case TimeStart, TimeCenter, TimeEnd:
	default:
		return nil, &domain.ValidationError{
			Field:      "timePosition",
			Value:      m.Params.TimePosition,
			Constraint: "start|center|end",
			Message:    "unknown time position",
		}
	}

	init, err := engine.InitializeSources(ctx, ectx, TypeTemporalRasterMeanPlot, m.Sources, [2]int{1, 2}, [2]int{0, 1})
	if err != nil {
		return nil, err
	}
	source := init.Rasters[0]
	in := source.ResultDescriptor()

	name, err := engine.ComputeCanonicalName(TypeTemporalRasterMeanPlot, m.Params, init.Names()...)
	if err != nil {
		return nil, err
	}

	desc := domain.PlotResultDescriptor{SpatialReference: in.SpatialReference, Time: in.Time}
	if in.BBox != nil {
		box := in.BBox.BoundingBox()
		desc.BBox = &box
	}

	return &initializedMeanPlot{
		source:      source,
		position:    m.Params.TimePosition,
		measurement: in.Measurement,
		desc:        desc,
		name:        name,
	}, nil
}

type initializedMeanPlot struct {
	source      engine.InitializedRasterOperator
	position    TimePosition
	measurement domain.Measurement
	desc        domain.PlotResultDescriptor
	name        engine.CanonicalName
}

func (m *initializedMeanPlot) ResultDescriptor() domain.PlotResultDescriptor { return m.desc }
func (m *initializedMeanPlot) CanonicalName() engine.CanonicalName         { return m.name }

func (m *initializedMeanPlot) QueryProcessor() (engine.TypedPlotQueryProcessor, error) {
	typed, err := m.source.QueryProcessor()
	if err != nil {
		return engine.TypedPlotQueryProcessor{}, err
	}
	src, err := engine.AsFloat64Processor(typed)
	if err != nil {
		return engine.TypedPlotQueryProcessor{}, err
	}
	return engine.TypedPlotQueryProcessor{
		Format:    "json",
		Processor: &meanPlotProcessor{source: src, position: m.position, measurement: m.measurement},
	}, nil
}

type meanPlotProcessor struct {
	source      engine.RasterQueryProcessor[float64]
	position    TimePosition
	measurement domain.Measurement
}

type meanAccumulator struct {
	n    int
	mean float64
}

func (a *meanAccumulator) add(v float64) {
	a.n++
	a.mean += (v - a.mean) / float64(a.n)
}

// MeanChart is the JSON output of TemporalRasterMeanPlot.
type MeanChart struct {
	Timestamps  []string  `json:"timestamps"`
	Values      []float64 `json:"values"`
	Measurement string    `json:"measurement"`
}

func (p *meanPlotProcessor) PlotQuery(ctx context.Context, q domain.PlotQueryRectangle, qctx engine.QueryContext) (json.RawMessage, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s, err := p.source.RasterQuery(ctx, domain.RasterQueryFromPlot(q), qctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	means := map[domain.TimeInstance]*meanAccumulator{}
	for {
		tile, err := s.Read(ctx)
		if errors.Is(err, engine.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		t := p.position.instant(tile.Time)
		acc, ok := means[t]
		if !ok {
			acc = &meanAccumulator{}
			means[t] = acc
		}
		for _, v := range tile.Grid.Data {
			if !math.IsNaN(v) && !tile.Grid.IsNoData(v) {
				acc.add(v)
			}
		}
	}

	instants := make([]domain.TimeInstance, 0, len(means))
	for t, acc := range means {
		if acc.n > 0 {
			instants = append(instants, t)
		}
	}
	slices.Sort(instants)

	chart := MeanChart{
		Timestamps:  make([]string, len(instants)),
		Values:      make([]float64, len(instants)),
		Measurement: p.measurement.String(),
	}
	for i, t := range instants {
		chart.Timestamps[i] = t.Time().Format(time.RFC3339)
		chart.Values[i] = means[t].mean
	}

	out, err := json.Marshal(chart)
	if err != nil {
		return nil, fmt.Errorf("encoding mean chart: %w", err)
	}
	return out, nil
}
