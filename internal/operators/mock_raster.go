package operators

import (
	"context"
	"fmt"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
)

// MockTile is the JSON form of one raster tile. A tile without data is empty.
type MockTile struct {
	Time               domain.TimeInterval `json:"time"`
	TilePosition       domain.TilePosition `json:"tilePosition"`
	Band               int                 `json:"band"`
	GlobalGeoTransform domain.GeoTransform `json:"globalGeoTransform"`
	Shape              domain.GridShape    `json:"shape"`
	Data               []float64           `json:"data,omitempty"`
	NoData             *float64            `json:"noDataValue,omitempty"`
}

// MockRasterSourceParams holds inline tiles and the descriptor they are served under.
type MockRasterSourceParams struct {
	Data             []MockTile                    `json:"data"`
	ResultDescriptor domain.RasterResultDescriptor `json:"resultDescriptor"`
}

// MockRasterSource serves a fixed list of tiles.
type MockRasterSource struct {
	Params MockRasterSourceParams
}

// NewMockRasterSource builds a source from typed tiles.
func NewMockRasterSource[T domain.Pixel](tiles []domain.RasterTile[T], desc domain.RasterResultDescriptor) *MockRasterSource {
	desc.DataType = domain.DataTypeOf[T]()
	data := make([]MockTile, 0, len(tiles))
	for _, t := range tiles {
		mt := MockTile{
			Time:               t.Time,
			TilePosition:       t.TilePosition,
			Band:               t.Band,
			GlobalGeoTransform: t.GlobalGeoTransform,
			Shape:              t.Grid.Shape,
		}
		if !t.Grid.IsEmpty() {
			mt.Data = make([]float64, len(t.Grid.Data))
			for i, v := range t.Grid.Data {
				mt.Data[i] = float64(v)
			}
		}
		if t.Grid.NoData != nil {
			nd := float64(*t.Grid.NoData)
			mt.NoData = &nd
		}
		data = append(data, mt)
	}
	return &MockRasterSource{Params: MockRasterSourceParams{Data: data, ResultDescriptor: desc}}
}

// TypeName implements engine.RasterOperator.
func (m *MockRasterSource) TypeName() string { return TypeMockRasterSource }

func (m *MockRasterSource) params() any             { return m.Params }
func (m *MockRasterSource) sources() engine.Sources { return engine.Sources{} }

// Initialize implements engine.RasterOperator.
func (m *MockRasterSource) Initialize(_ context.Context, _ engine.ExecutionContext) (engine.InitializedRasterOperator, error) {
	desc := m.Params.ResultDescriptor
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	for i, t := range m.Params.Data {
		if t.Data != nil && len(t.Data) != t.Shape.Len() {
			return nil, &domain.ValidationError{
				Field:      fmt.Sprintf("data[%d]", i),
				Value:      len(t.Data),
				Constraint: fmt.Sprintf("== %d", t.Shape.Len()),
				Message:    "tile data length does not match its shape",
			}
		}
		if t.Band < 0 || t.Band >= desc.Bands {
			return nil, &domain.ValidationError{
				Field:      fmt.Sprintf("data[%d].band", i),
				Value:      t.Band,
				Constraint: fmt.Sprintf("< %d", desc.Bands),
				Message:    "tile band is outside the descriptor's bands",
			}
		}
	}

	name, err := engine.ComputeCanonicalName(TypeMockRasterSource, m.Params)
	if err != nil {
		return nil, err
	}
	return &initializedMockRaster{tiles: m.Params.Data, desc: desc, name: name}, nil
}

type initializedMockRaster struct {
	tiles []MockTile
	desc  domain.RasterResultDescriptor
	name  engine.CanonicalName
}

func (m *initializedMockRaster) ResultDescriptor() domain.RasterResultDescriptor { return m.desc }
func (m *initializedMockRaster) CanonicalName() engine.CanonicalName           { return m.name }

func (m *initializedMockRaster) QueryProcessor() (engine.TypedRasterQueryProcessor, error) {
	switch m.desc.DataType {
	case domain.U8:
		return engine.NewTypedRasterProcessor(mockRasterProcessor[uint8](m.tiles)), nil
	case domain.U16:
		return engine.NewTypedRasterProcessor(mockRasterProcessor[uint16](m.tiles)), nil
	case domain.U32:
		return engine.NewTypedRasterProcessor(mockRasterProcessor[uint32](m.tiles)), nil
	case domain.U64:
		return engine.NewTypedRasterProcessor(mockRasterProcessor[uint64](m.tiles)), nil
	case domain.I8:
		return engine.NewTypedRasterProcessor(mockRasterProcessor[int8](m.tiles)), nil
	case domain.I16:
		return engine.NewTypedRasterProcessor(mockRasterProcessor[int16](m.tiles)), nil
	case domain.I32:
		return engine.NewTypedRasterProcessor(mockRasterProcessor[int32](m.tiles)), nil
	case domain.I64:
		return engine.NewTypedRasterProcessor(mockRasterProcessor[int64](m.tiles)), nil
	case domain.F32:
		return engine.NewTypedRasterProcessor(mockRasterProcessor[float32](m.tiles)), nil
	case domain.F64:
		return engine.NewTypedRasterProcessor(mockRasterProcessor[float64](m.tiles)), nil
	}
	return engine.TypedRasterQueryProcessor{}, fmt.Errorf("raster data type %v: %w", m.desc.DataType, domain.ErrUnsupported)
}

// mockRasterProcessor converts the tiles once and filters them per query by time and
// band. Bands are renumbered relative to the query's selection.
func mockRasterProcessor[T domain.Pixel](tiles []MockTile) engine.RasterQueryProcessor[T] {
	typed := make([]domain.RasterTile[T], len(tiles))
	for i, t := range tiles {
		typed[i] = mockTileAs[T](t)
	}

	return engine.RasterQueryFunc[T](func(_ context.Context, q domain.RasterQueryRectangle, _ engine.QueryContext) (engine.Stream[domain.RasterTile[T]], error) {
		if err := q.Validate(); err != nil {
			return nil, err
		}
		var out []domain.RasterTile[T]
		for _, t := range typed {
			if !q.TimeInterval.Intersects(t.Time) || !q.Bands.Contains(t.Band) {
				continue
			}
			t.Band -= q.Bands.Start()
			out = append(out, t)
		}
		return engine.SliceStream(out), nil
	})
}

func mockTileAs[T domain.Pixel](t MockTile) domain.RasterTile[T] {
	grid := domain.EmptyGrid[T](t.Shape)
	if t.Data != nil {
		grid.Data = make([]T, len(t.Data))
		for i, v := range t.Data {
			grid.Data[i] = domain.PixelFromFloat[T](v)
		}
	}
	if t.NoData != nil {
		nd := domain.PixelFromFloat[T](*t.NoData)
		grid.NoData = &nd
	}
	return domain.RasterTile[T]{
		Time:               t.Time,
		TilePosition:       t.TilePosition,
		Band:               t.Band,
		GlobalGeoTransform: t.GlobalGeoTransform,
		Grid:               grid,
		CacheHint:          domain.MaxCacheHint(),
	}
}
