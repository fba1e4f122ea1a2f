package domain

// RasterResultDescriptor describes the output of a raster operator.
type RasterResultDescriptor struct {
	DataType         RasterDataType      `json:"dataType"`
	SpatialReference SpatialReference    `json:"spatialReference"`
	Measurement      Measurement         `json:"measurement"`
	Time             *TimeInterval       `json:"time,omitempty"`
	BBox             *SpatialPartition2D `json:"bbox,omitempty"`
	Resolution       *SpatialResolution  `json:"resolution,omitempty"`
	Bands            int                 `json:"bands"`
}

// Validate checks the descriptor's invariants.
func (d RasterResultDescriptor) Validate() error {
	if d.Bands < 1 {
		return &ValidationError{
			Field:      "bands",
			Value:      d.Bands,
			Constraint: ">= 1",
			Message:    "a raster must have at least one band",
		}
	}
	if d.Time != nil {
		if err := d.Time.Validate(); err != nil {
			return err
		}
	}
	if d.BBox != nil {
		if err := d.BBox.Validate(); err != nil {
			return err
		}
	}
	if d.Resolution != nil {
		if err := d.Resolution.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FeatureDataType is the type of an attribute column.
type FeatureDataType string

// Feature data types.
const (
	FeatureInt      FeatureDataType = "int"
	FeatureFloat    FeatureDataType = "float"
	FeatureText     FeatureDataType = "text"
	FeatureBool     FeatureDataType = "bool"
	FeatureDateTime FeatureDataType = "dateTime"
)

// ColumnInfo describes one attribute column of a feature collection.
type ColumnInfo struct {
	DataType    FeatureDataType `json:"dataType"`
	Measurement Measurement     `json:"measurement"`
}

// VectorResultDescriptor describes the output of a vector operator.
type VectorResultDescriptor struct {
	DataType         VectorDataType        `json:"dataType"`
	SpatialReference SpatialReference      `json:"spatialReference"`
	Columns          map[string]ColumnInfo `json:"columns"`
	Time             *TimeInterval         `json:"time,omitempty"`
	BBox             *BoundingBox2D        `json:"bbox,omitempty"`
}

// PlotResultDescriptor describes the output of a plot operator.
type PlotResultDescriptor struct {
	SpatialReference SpatialReference `json:"spatialReference"`
	Time             *TimeInterval    `json:"time,omitempty"`
	BBox             *BoundingBox2D   `json:"bbox,omitempty"`
}

// TypedResultDescriptor is the descriptor of a workflow of any result type. Exactly the
// field matching Type is set.
type TypedResultDescriptor struct {
	Type   ResultType              `json:"type"`
	Raster *RasterResultDescriptor `json:"raster,omitempty"`
	Vector *VectorResultDescriptor `json:"vector,omitempty"`
	Plot   *PlotResultDescriptor   `json:"plot,omitempty"`
}
