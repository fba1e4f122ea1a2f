package domain

import (
	"strings"
	"time"
)

// Dataset is a GeoPackage file whose feature layers workflows can read.
type Dataset struct {
	ID       string    // Unique identifier (derived from filename)
	Name     string    // Display name
	Path     string    // File path
	Size     int64     // File size in bytes
	Layers   []Layer   // Feature layers
	License  License   // License information
	Indexed  bool      // Are all spatial indices created?
	LoadedAt time.Time // Load timestamp
}

// IsReady returns true if every layer has a spatial index.
func (d *Dataset) IsReady() bool {
	if !d.Indexed {
		return false
	}
	for _, layer := range d.Layers {
		if !layer.HasIndex {
			return false
		}
	}
	return true
}

// GetLayer returns a layer by name.
func (d *Dataset) GetLayer(name string) (*Layer, bool) {
	for i := range d.Layers {
		if d.Layers[i].Name == name {
			return &d.Layers[i], true
		}
	}
	return nil, false
}

// Layer is a feature table within a dataset.
type Layer struct {
	Name           string         // Layer name from gpkg_contents.table_name
	Description    string         // Layer description
	GeometryColumn string         // Name of the geometry column
	GeometryType   string         // Geometry type (POINT, POLYGON, etc.)
	SRID           int            // Spatial Reference ID
	HasIndex       bool           // Has spatial index?
	FeatureCount   int64          // Number of features
	Extent         *BoundingBox2D // Bounding box (optional)
}

// VectorDataType maps the layer's geometry type onto the multi-geometry kinds.
func (l *Layer) VectorDataType() VectorDataType {
	switch strings.ToUpper(l.GeometryType) {
	case "POINT", "MULTIPOINT":
		return VectorMultiPoint
	case "LINESTRING", "MULTILINESTRING":
		return VectorMultiLineString
	case "POLYGON", "MULTIPOLYGON":
		return VectorMultiPolygon
	default:
		return VectorData
	}
}

// SpatialReference returns the layer's reference, unknown for SRID <= 0.
func (l *Layer) SpatialReference() SpatialReference {
	if l.SRID <= 0 {
		return UnknownSpatialReference
	}
	return EPSG(l.SRID)
}

// License contains license information for a dataset or workflow.
type License struct {
	Name        string `json:"name,omitempty"`        // e.g. "CC BY 4.0"
	URL         string `json:"url,omitempty"`         // Link to the license text
	Attribution string `json:"attribution,omitempty"` // Attribution text to display
}

// IsEmpty returns true if no license information is set.
func (l *License) IsEmpty() bool {
	return l.Name == "" && l.URL == "" && l.Attribution == ""
}

// String returns the attribution text or license name.
func (l *License) String() string {
	if l.Attribution != "" {
		return l.Attribution
	}
	return l.Name
}
