package domain

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// TileSummary describes one tile of a raster query result.
type TileSummary struct {
	Time         TimeInterval       `json:"time"`
	TilePosition TilePosition       `json:"tilePosition"`
	Band         int                `json:"band"`
	Bounds       SpatialPartition2D `json:"bounds"`
	Shape        GridShape          `json:"shape"`
	Empty        bool               `json:"empty"`
	ValidPixels  int                `json:"validPixels"`
	Min          *float64           `json:"min,omitempty"`
	Max          *float64           `json:"max,omitempty"`
	Mean         *float64           `json:"mean,omitempty"`
}

// SummarizeTile computes pixel statistics of a tile, skipping no-data.
func SummarizeTile[T Pixel](tile RasterTile[T]) TileSummary {
	s := TileSummary{
		Time:         tile.Time,
		TilePosition: tile.TilePosition,
		Band:         tile.Band,
		Bounds:       tile.SpatialPartition(),
		Shape:        tile.Grid.Shape,
		Empty:        tile.IsEmpty(),
	}
	if s.Empty {
		return s
	}

	var lo, hi, sum float64
	for _, v := range tile.Grid.Data {
		if tile.Grid.IsNoData(v) {
			continue
		}
		f := float64(v)
		if s.ValidPixels == 0 {
			lo, hi = f, f
		}
		lo, hi = min(lo, f), max(hi, f)
		sum += f
		s.ValidPixels++
	}
	if s.ValidPixels > 0 {
		mean := sum / float64(s.ValidPixels)
		s.Min, s.Max, s.Mean = &lo, &hi, &mean
	}
	return s
}

// RasterResult is the result of a raster workflow query.
type RasterResult struct {
	WorkflowID string         `json:"workflowId"`
	DataType   RasterDataType `json:"dataType"`
	Tiles      []TileSummary  `json:"tiles"`
	QueryTime  time.Duration  `json:"queryTimeNs"`
}

// VectorResult is the result of a vector workflow query.
type VectorResult struct {
	WorkflowID string                     `json:"workflowId"`
	DataType   VectorDataType             `json:"dataType"`
	Features   *geojson.FeatureCollection `json:"features"`
	QueryTime  time.Duration              `json:"queryTimeNs"`
}

// FeatureCount returns the number of features in the result.
func (r *VectorResult) FeatureCount() int {
	if r.Features == nil {
		return 0
	}
	return len(r.Features.Features)
}

// AppendGeoJSON adds the features of a collection to fc.
func AppendGeoJSON[G Geometry](fc *geojson.FeatureCollection, c FeatureCollection[G]) {
	for _, f := range c.Features {
		var gf *geojson.Feature
		if g, ok := any(f.Geometry).(orb.Geometry); ok && g.GeoJSONType() != "" {
			gf = geojson.NewFeature(g)
		} else {
			gf = &geojson.Feature{Type: "Feature", Properties: geojson.Properties{}}
		}
		if f.ID != 0 {
			gf.ID = f.ID
		}
		for k, v := range f.Properties {
			gf.Properties[k] = v
		}
		if f.Time != DefaultTimeInterval() {
			gf.Properties["start"] = f.Time.Start.Time()
			gf.Properties["end"] = f.Time.End.Time()
		}
		fc.Append(gf)
	}
}
