package domain

// RasterQueryRectangle selects a spatio-temporal window and a set of bands of a raster.
type RasterQueryRectangle struct {
	SpatialBounds     SpatialPartition2D `json:"spatialBounds"`
	TimeInterval      TimeInterval       `json:"timeInterval"`
	SpatialResolution SpatialResolution  `json:"spatialResolution"`
	Bands             BandSelection      `json:"bands"`
}

// Validate rejects inverted bounds, inverted time, non-positive resolution and empty
// band selections.
func (q RasterQueryRectangle) Validate() error {
	if err := q.SpatialBounds.Validate(); err != nil {
		return err
	}
	if err := q.TimeInterval.Validate(); err != nil {
		return err
	}
	if err := q.SpatialResolution.Validate(); err != nil {
		return err
	}
	return q.Bands.Validate()
}

// WithBands returns a copy of the rectangle selecting other bands.
func (q RasterQueryRectangle) WithBands(bands BandSelection) RasterQueryRectangle {
	q.Bands = bands
	return q
}

// VectorQueryRectangle selects a spatio-temporal window of a feature stream.
type VectorQueryRectangle struct {
	SpatialBounds     BoundingBox2D     `json:"spatialBounds"`
	TimeInterval      TimeInterval      `json:"timeInterval"`
	SpatialResolution SpatialResolution `json:"spatialResolution"`
}

// Validate rejects inverted bounds, inverted time and non-positive resolution.
func (q VectorQueryRectangle) Validate() error {
	if err := q.SpatialBounds.Validate(); err != nil {
		return err
	}
	if err := q.TimeInterval.Validate(); err != nil {
		return err
	}
	return q.SpatialResolution.Validate()
}

// PlotQueryRectangle has the same shape as a vector query.
type PlotQueryRectangle = VectorQueryRectangle

// RasterQueryFromPlot derives the raster query a plot uses to read its raster inputs.
func RasterQueryFromPlot(q PlotQueryRectangle) RasterQueryRectangle {
	return RasterQueryRectangle{
		SpatialBounds:     PartitionFromBoundingBox(q.SpatialBounds),
		TimeInterval:      q.TimeInterval,
		SpatialResolution: q.SpatialResolution,
		Bands:             FirstBand(),
	}
}
