package operators

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/jobrunner/geoflow/internal/domain"
	"github.com/jobrunner/geoflow/internal/engine"
	"github.com/jobrunner/geoflow/internal/engine/expression"
)

func noDataSource() *MockRasterSource {
	nd := 255.0
	return &MockRasterSource{Params: MockRasterSourceParams{
		Data: []MockTile{{
			Time:               interval(0, 5),
			GlobalGeoTransform: testGeoTransform,
			Shape:              testShape,
			Data:               []float64{1, 255, 3, 4},
			NoData:             &nd,
		}},
		ResultDescriptor: rasterDescriptor(domain.U8, 1),
	}}
}

func ptr[T any](v T) *T { return &v }

func TestExpressionOperator(t *testing.T) {
	tests := []struct {
		name   string
		source engine.RasterOperator
		params ExpressionParams
		want   []uint8
	}{
		{
			name:   "sum of two bands",
			source: twoBandSource(10),
			params: ExpressionParams{Expression: "A + B", OutputType: domain.U8},
			want:   []uint8{21, 21, 21, 21},
		},
		{
			name:   "saturates at the output type",
			source: twoBandSource(200),
			params: ExpressionParams{Expression: "A + B", OutputType: domain.U8},
			want:   []uint8{255, 255, 255, 255},
		},
		{
			name:   "no-data input yields no-data",
			source: noDataSource(),
			params: ExpressionParams{Expression: "A * 2", OutputType: domain.U8},
			want:   []uint8{2, 255, 6, 8},
		},
		{
			name:   "mapped no-data",
			source: noDataSource(),
			params: ExpressionParams{Expression: "if A == nodata { 0 } else { A * 2 }", OutputType: domain.U8, MapNoData: true},
			want:   []uint8{2, 0, 6, 8},
		},
		{
			name:   "configured no-data keeps saturated values",
			source: twoBandSource(200),
			params: ExpressionParams{Expression: "if A > 205 { nodata } else { A + B }", OutputType: domain.U8, OutputNoData: ptr(0.0)},
			want:   []uint8{255, 255, 255, 255},
		},
		{
			name:   "configured no-data for no-data input",
			source: noDataSource(),
			params: ExpressionParams{Expression: "A * 2", OutputType: domain.U8, OutputNoData: ptr(0.0)},
			want:   []uint8{2, 0, 6, 8},
		},
		{
			name:   "nodata result",
			source: twoBandSource(10),
			params: ExpressionParams{Expression: "if A > 5 { nodata } else { A }", OutputType: domain.U8},
			want:   []uint8{255, 255, 255, 255},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &Expression{Params: tt.params, Sources: engine.Sources{Rasters: []engine.RasterOperator{tt.source}}}
			tiles := queryU8(t, op, rasterQuery(domain.SingleBand(0)))
			if len(tiles) != 1 {
				t.Fatalf("len(tiles) = %d, want 1", len(tiles))
			}
			got := tiles[0].Grid.Data
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("pixel %d: got %d, want %d", i, got[i], tt.want[i])
				}
			}
			if tiles[0].Band != 0 {
				t.Errorf("Band = %d, want 0", tiles[0].Band)
			}
		})
	}
}

func TestExpressionFloatOutput(t *testing.T) {
	op := &Expression{
		Params: ExpressionParams{
			Expression:        "sqrt(A)",
			OutputType:        domain.F64,
			OutputMeasurement: &domain.Measurement{Kind: domain.Continuous, Measurement: "root"},
		},
		Sources: engine.Sources{Rasters: []engine.RasterOperator{noDataSource()}},
	}

	init, err := op.Initialize(context.Background(), engine.NewMockExecutionContext(engine.DefaultTilingSpecification()))
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	desc := init.ResultDescriptor()
	if desc.DataType != domain.F64 || desc.Bands != 1 || desc.Measurement.Measurement != "root" {
		t.Errorf("unexpected descriptor %+v", desc)
	}

	typed, _ := init.QueryProcessor()
	p, err := typed.F64()
	if err != nil {
		t.Fatalf("F64 failed: %v", err)
	}
	s, err := p.RasterQuery(context.Background(), rasterQuery(domain.SingleBand(0)), engine.NewMockQueryContext(1024))
	if err != nil {
		t.Fatalf("RasterQuery failed: %v", err)
	}
	tiles, err := engine.Collect(context.Background(), s)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	data := tiles[0].Grid.Data
	if data[0] != 1 || !math.IsNaN(data[1]) || math.Abs(data[3]-2) > 1e-12 {
		t.Errorf("got %v", data)
	}
}

func TestExpressionErrors(t *testing.T) {
	tests := []struct {
		name    string
		params  ExpressionParams
		sources []engine.RasterOperator
		want    error
	}{
		{"unknown variable", ExpressionParams{Expression: "C + 1", OutputType: domain.U8}, []engine.RasterOperator{twoBandSource(1)}, expression.ErrUnknownVariable},
		{"syntax error", ExpressionParams{Expression: "A +", OutputType: domain.U8}, []engine.RasterOperator{twoBandSource(1)}, domain.ErrInvalidInput},
		{"no source", ExpressionParams{Expression: "1", OutputType: domain.U8}, nil, domain.ErrInvalidInput},
		{"two sources", ExpressionParams{Expression: "1", OutputType: domain.U8}, []engine.RasterOperator{twoBandSource(1), twoBandSource(2)}, domain.ErrInvalidInput},
		{"fractional no-data", ExpressionParams{Expression: "A", OutputType: domain.U8, OutputNoData: ptr(1.5)}, []engine.RasterOperator{twoBandSource(1)}, domain.ErrInvalidInput},
		{"no-data out of range", ExpressionParams{Expression: "A", OutputType: domain.U8, OutputNoData: ptr(300.0)}, []engine.RasterOperator{twoBandSource(1)}, domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &Expression{Params: tt.params, Sources: engine.Sources{Rasters: tt.sources}}
			_, err := op.Initialize(context.Background(), engine.NewMockExecutionContext(engine.DefaultTilingSpecification()))
			if err == nil {
				t.Fatal("expected an error")
			}
			var syntax *expression.SyntaxError
			if tt.want == domain.ErrInvalidInput && errors.As(err, &syntax) {
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExpressionRejectsOtherBands(t *testing.T) {
	op := &Expression{
		Params:  ExpressionParams{Expression: "A", OutputType: domain.U8},
		Sources: engine.Sources{Rasters: []engine.RasterOperator{twoBandSource(1)}},
	}
	init, err := op.Initialize(context.Background(), engine.NewMockExecutionContext(engine.DefaultTilingSpecification()))
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	typed, _ := init.QueryProcessor()
	p, _ := typed.U8()

	_, err = p.RasterQuery(context.Background(), rasterQuery(domain.SingleBand(1)), engine.NewMockQueryContext(1024))
	if !errors.Is(err, domain.ErrInvalidBandSelection) {
		t.Errorf("got %v, want %v", err, domain.ErrInvalidBandSelection)
	}
}

func TestExpressionUsesCompilerCache(t *testing.T) {
	ectx := engine.NewMockExecutionContext(engine.DefaultTilingSpecification())
	op := &Expression{
		Params:  ExpressionParams{Expression: "A * 3", OutputType: domain.U8},
		Sources: engine.Sources{Rasters: []engine.RasterOperator{twoBandSource(1)}},
	}
	for i := 0; i < 3; i++ {
		if _, err := op.Initialize(context.Background(), ectx); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
	}
	if n := ectx.Compiler().Len(); n != 1 {
		t.Errorf("cached programs = %d, want 1", n)
	}
}
