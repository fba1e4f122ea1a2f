package domain

import "testing"

func TestDatasetIsReady(t *testing.T) {
	tests := []struct {
		name string
		ds   Dataset
		want bool
	}{
		{
			name: "indexed with all indexed layers",
			ds: Dataset{
				Indexed: true,
				Layers:  []Layer{{Name: "a", HasIndex: true}, {Name: "b", HasIndex: true}},
			},
			want: true,
		},
		{
			name: "indexed but layer not indexed",
			ds: Dataset{
				Indexed: true,
				Layers:  []Layer{{Name: "a", HasIndex: true}, {Name: "b"}},
			},
			want: false,
		},
		{
			name: "not indexed",
			ds:   Dataset{Layers: []Layer{{Name: "a", HasIndex: true}}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ds.IsReady(); got != tt.want {
				t.Errorf("IsReady() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDatasetGetLayer(t *testing.T) {
	ds := Dataset{Layers: []Layer{{Name: "roads"}, {Name: "parcels"}}}

	if l, ok := ds.GetLayer("parcels"); !ok || l.Name != "parcels" {
		t.Errorf("GetLayer(parcels) = %v, %v", l, ok)
	}
	if _, ok := ds.GetLayer("rivers"); ok {
		t.Error("GetLayer(rivers) should not be found")
	}
}

func TestLayerVectorDataType(t *testing.T) {
	tests := []struct {
		geometryType string
		want         VectorDataType
	}{
		{"POINT", VectorMultiPoint},
		{"MultiPoint", VectorMultiPoint},
		{"LINESTRING", VectorMultiLineString},
		{"MULTIPOLYGON", VectorMultiPolygon},
		{"GEOMETRYCOLLECTION", VectorData},
	}

	for _, tt := range tests {
		t.Run(tt.geometryType, func(t *testing.T) {
			l := Layer{GeometryType: tt.geometryType}
			if got := l.VectorDataType(); got != tt.want {
				t.Errorf("VectorDataType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLicense(t *testing.T) {
	var empty License
	if !empty.IsEmpty() {
		t.Error("zero License should be empty")
	}

	l := License{Name: "CC BY 4.0", Attribution: "© Example"}
	if got := l.String(); got != "© Example" {
		t.Errorf("String() = %q, want attribution", got)
	}
	l.Attribution = ""
	if got := l.String(); got != "CC BY 4.0" {
		t.Errorf("String() = %q, want name", got)
	}
}
