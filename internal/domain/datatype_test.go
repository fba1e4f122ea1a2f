package domain

import (
	"encoding/json"
	"testing"
)

func TestRasterDataTypeText(t *testing.T) {
	for _, dt := range RasterDataTypes {
		t.Run(dt.String(), func(t *testing.T) {
			text, err := dt.MarshalText()
			if err != nil {
				t.Fatal(err)
			}
			var got RasterDataType
			if err := got.UnmarshalText(text); err != nil {
				t.Fatal(err)
			}
			if got != dt {
				t.Errorf("got %v, want %v", got, dt)
			}
		})
	}

	if _, err := ParseRasterDataType("F16"); err == nil {
		t.Error("ParseRasterDataType(F16) should fail")
	}
}

func TestRasterDataTypeBounds(t *testing.T) {
	tests := []struct {
		dt       RasterDataType
		min, max float64
	}{
		{U8, 0, 255},
		{I8, -128, 127},
		{U16, 0, 65535},
		{I32, -2147483648, 2147483647},
	}

	for _, tt := range tests {
		t.Run(tt.dt.String(), func(t *testing.T) {
			if got := tt.dt.MinValue(); got != tt.min {
				t.Errorf("MinValue() = %v, want %v", got, tt.min)
			}
			if got := tt.dt.MaxValue(); got != tt.max {
				t.Errorf("MaxValue() = %v, want %v", got, tt.max)
			}
		})
	}
}

func TestMeasurementJSON(t *testing.T) {
	tests := []struct {
		name string
		m    Measurement
		want string
	}{
		{"unitless", UnitlessMeasurement(), `{"type":"unitless"}`},
		{"continuous", ContinuousMeasurement("temperature", "K"), `{"type":"continuous","measurement":"temperature","unit":"K"}`},
		{
			"classification",
			Measurement{Kind: Classification, Measurement: "land cover", Classes: map[int]string{1: "forest", 2: "water"}},
			`{"type":"classification","measurement":"land cover","classes":{"1":"forest","2":"water"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.m)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("got %s, want %s", data, tt.want)
			}

			var decoded Measurement
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatal(err)
			}
			if !decoded.Equal(tt.m) {
				t.Errorf("decoded %+v, want %+v", decoded, tt.m)
			}
		})
	}
}

func TestMeasurementUnknownType(t *testing.T) {
	var m Measurement
	if err := json.Unmarshal([]byte(`{"type":"fuzzy"}`), &m); err == nil {
		t.Error("expected error for unknown measurement type")
	}
}

func TestVectorDataTypeText(t *testing.T) {
	var v VectorDataType
	if err := v.UnmarshalText([]byte("MultiPolygon")); err != nil || v != VectorMultiPolygon {
		t.Errorf("got %v, %v", v, err)
	}
	if err := v.UnmarshalText([]byte("Polygon")); err == nil {
		t.Error("expected error for single Polygon")
	}
}
