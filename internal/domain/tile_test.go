package domain

import (
	"math"
	"testing"
)

func TestPixelFromFloat(t *testing.T) {
	if got := PixelFromFloat[uint8](300); got != 255 {
		t.Errorf("U8 saturate high = %d", got)
	}
	if got := PixelFromFloat[uint8](-4); got != 0 {
		t.Errorf("U8 saturate low = %d", got)
	}
	if got := PixelFromFloat[int8](-1000); got != -128 {
		t.Errorf("I8 saturate low = %d", got)
	}
	if got := PixelFromFloat[int16](12.7); got != 12 {
		t.Errorf("I16 truncation = %d", got)
	}
	if got := PixelFromFloat[uint64](math.Inf(1)); got != math.MaxUint64 {
		t.Errorf("U64 saturate high = %d", got)
	}
	if got := PixelFromFloat[int32](math.NaN()); got != 0 {
		t.Errorf("I32 NaN = %d", got)
	}
	if got := PixelFromFloat[float32](1.5); got != 1.5 {
		t.Errorf("F32 = %v", got)
	}
}

func TestDataTypeOf(t *testing.T) {
	if DataTypeOf[uint8]() != U8 || DataTypeOf[int64]() != I64 || DataTypeOf[float64]() != F64 {
		t.Error("DataTypeOf mismatch")
	}
}

func TestGrid(t *testing.T) {
	noData := uint8(0)
	g, err := NewGrid(GridShape{Rows: 2, Cols: 2}, []uint8{1, 0, 3, 4}, &noData)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		y, x   int
		want   uint8
		wantOK bool
	}{
		{0, 0, 1, true},
		{0, 1, 0, false},
		{1, 1, 4, true},
		{2, 0, 0, false},
	}
	for _, tt := range tests {
		got, ok := g.At(tt.y, tt.x)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("At(%d, %d) = %d, %v, want %d, %v", tt.y, tt.x, got, ok, tt.want, tt.wantOK)
		}
	}

	if _, err := NewGrid(GridShape{Rows: 2, Cols: 2}, []uint8{1}, nil); err == nil {
		t.Error("NewGrid should reject mismatched data length")
	}

	empty := EmptyGrid[float32](GridShape{Rows: 3, Cols: 3})
	if !empty.IsEmpty() {
		t.Error("EmptyGrid should be empty")
	}
	if _, ok := empty.At(0, 0); ok {
		t.Error("empty grid pixel should not be valid")
	}
}

func TestGridNaNIsNoData(t *testing.T) {
	g := Grid[float64]{Shape: GridShape{Rows: 1, Cols: 1}, Data: []float64{math.NaN()}}
	if _, ok := g.At(0, 0); ok {
		t.Error("NaN pixel should be no-data")
	}
}

func TestMapPixels(t *testing.T) {
	noData := uint8(0)
	g, _ := NewGrid(GridShape{Rows: 1, Cols: 3}, []uint8{2, 0, 4}, &noData)

	out := MapPixels(g, float32(-1), func(v uint8) (float32, bool) {
		if v == 4 {
			return 0, false
		}
		return float32(v) / 2, true
	})

	want := []float32{1, -1, -1}
	for i := range want {
		if out.Data[i] != want[i] {
			t.Errorf("Data[%d] = %v, want %v", i, out.Data[i], want[i])
		}
	}
}

func TestRasterTileGeometry(t *testing.T) {
	tile := RasterTile[uint8]{
		TilePosition:       TilePosition{Y: -1, X: 1},
		GlobalGeoTransform: NewGeoTransform(Coordinate2D{0, 0}, 1, -1),
		Grid:               EmptyGrid[uint8](GridShape{Rows: 2, Cols: 2}),
	}

	want := SpatialPartition2D{UpperLeft: Coordinate2D{2, 2}, LowerRight: Coordinate2D{4, 0}}
	if got := tile.SpatialPartition(); got != want {
		t.Errorf("SpatialPartition() = %v, want %v", got, want)
	}
}

func TestCacheHintMerge(t *testing.T) {
	if got := MaxCacheHint().Merge(NoCache()); got != NoCache() {
		t.Errorf("Merge() = %v, want no cache", got)
	}
}
