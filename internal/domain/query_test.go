package domain

import (
	"errors"
	"testing"
)

func validRasterQuery() RasterQueryRectangle {
	return RasterQueryRectangle{
		SpatialBounds:     SpatialPartition2D{UpperLeft: Coordinate2D{0, 3}, LowerRight: Coordinate2D{4, 0}},
		TimeInterval:      TimeInterval{Start: 0, End: 10},
		SpatialResolution: SpatialResolution{X: 1, Y: 1},
		Bands:             FirstBand(),
	}
}

func TestRasterQueryRectangleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RasterQueryRectangle)
		wantErr bool
	}{
		{"valid", func(*RasterQueryRectangle) {}, false},
		{"inverted bounds", func(q *RasterQueryRectangle) {
			q.SpatialBounds.UpperLeft, q.SpatialBounds.LowerRight = q.SpatialBounds.LowerRight, q.SpatialBounds.UpperLeft
		}, true},
		{"inverted time", func(q *RasterQueryRectangle) { q.TimeInterval = TimeInterval{Start: 10, End: 0} }, true},
		{"zero resolution", func(q *RasterQueryRectangle) { q.SpatialResolution.X = 0 }, true},
		{"empty band range", func(q *RasterQueryRectangle) { q.Bands = BandSelection{start: 2, end: 2} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validRasterQuery()
			tt.mutate(&q)
			err := q.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error should wrap ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestVectorQueryRectangleValidate(t *testing.T) {
	q := VectorQueryRectangle{
		SpatialBounds:     BoundingBox2D{Coordinate2D{0, 0}, Coordinate2D{1, 1}},
		TimeInterval:      DefaultTimeInterval(),
		SpatialResolution: SpatialResolution{X: 0.1, Y: 0.1},
	}
	if err := q.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	q.SpatialResolution.Y = -1
	if err := q.Validate(); err == nil {
		t.Error("negative resolution should fail validation")
	}
}

func TestRasterQueryFromPlot(t *testing.T) {
	p := PlotQueryRectangle{
		SpatialBounds:     BoundingBox2D{Coordinate2D{0, 0}, Coordinate2D{4, 3}},
		TimeInterval:      TimeInterval{Start: 0, End: 10},
		SpatialResolution: SpatialResolution{X: 1, Y: 1},
	}
	if got := RasterQueryFromPlot(p); got != validRasterQuery() {
		t.Errorf("got %+v, want %+v", got, validRasterQuery())
	}
}

func TestRasterResultDescriptorValidate(t *testing.T) {
	d := RasterResultDescriptor{DataType: U8, SpatialReference: EPSG(4326), Bands: 1}
	if err := d.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	d.Bands = 0
	if err := d.Validate(); err == nil {
		t.Error("zero bands should fail validation")
	}
}
