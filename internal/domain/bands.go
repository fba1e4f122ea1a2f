package domain

import (
	"encoding/json"
	"fmt"
)

// BandSelection selects the output bands of a raster query: either a single band
// index or the half-open range [Start, End).
type BandSelection struct {
	single bool
	start  int
	end    int
}

// SingleBand selects exactly one band.
func SingleBand(index int) BandSelection {
	return BandSelection{single: true, start: index, end: index + 1}
}

// BandRange selects the bands [start, end).
func BandRange(start, end int) (BandSelection, error) {
	b := BandSelection{start: start, end: end}
	return b, b.Validate()
}

// MustBandRange is like BandRange but panics on an invalid range.
func MustBandRange(start, end int) BandSelection {
	b, err := BandRange(start, end)
	if err != nil {
		panic(err)
	}
	return b
}

// FirstBand selects band 0 only.
func FirstBand() BandSelection {
	return SingleBand(0)
}

// Validate checks the selection is non-empty and non-negative.
func (b BandSelection) Validate() error {
	if b.start < 0 {
		return fmt.Errorf("negative band index %d: %w", b.start, ErrInvalidBandSelection)
	}
	if b.start >= b.end {
		return fmt.Errorf("empty band range [%d, %d): %w", b.start, b.end, ErrInvalidBandSelection)
	}
	return nil
}

// IsSingle reports whether this is a Single selection.
func (b BandSelection) IsSingle() bool {
	return b.single
}

// Start returns the first selected band.
func (b BandSelection) Start() int {
	return b.start
}

// End returns one past the last selected band.
func (b BandSelection) End() int {
	return b.end
}

// Count returns the number of selected bands.
func (b BandSelection) Count() int {
	return b.end - b.start
}

// Contains reports whether band is selected.
func (b BandSelection) Contains(band int) bool {
	return band >= b.start && band < b.end
}

// Bands lists the selected band indices in ascending order.
func (b BandSelection) Bands() []int {
	out := make([]int, 0, b.Count())
	for i := b.start; i < b.end; i++ {
		out = append(out, i)
	}
	return out
}

// String implements fmt.Stringer.
func (b BandSelection) String() string {
	if b.single {
		return fmt.Sprintf("Single(%d)", b.start)
	}
	return fmt.Sprintf("Range(%d, %d)", b.start, b.end)
}

type bandSelectionJSON struct {
	Type  string `json:"type"`
	Index *int   `json:"index,omitempty"`
	Start *int   `json:"start,omitempty"`
	End   *int   `json:"end,omitempty"`
}

// MarshalJSON encodes {"type":"single","index":i} or {"type":"range","start":s,"end":e}.
func (b BandSelection) MarshalJSON() ([]byte, error) {
	if b.single {
		i := b.start
		return json.Marshal(bandSelectionJSON{Type: "single", Index: &i})
	}
	s, e := b.start, b.end
	return json.Marshal(bandSelectionJSON{Type: "range", Start: &s, End: &e})
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *BandSelection) UnmarshalJSON(data []byte) error {
	var raw bandSelectionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Type {
	case "single":
		if raw.Index == nil {
			return fmt.Errorf("single band selection without index: %w", ErrInvalidBandSelection)
		}
		*b = SingleBand(*raw.Index)
	case "range":
		if raw.Start == nil || raw.End == nil {
			return fmt.Errorf("band range without start or end: %w", ErrInvalidBandSelection)
		}
		*b = BandSelection{start: *raw.Start, end: *raw.End}
	default:
		return fmt.Errorf("unknown band selection type %q: %w", raw.Type, ErrInvalidBandSelection)
	}
	return b.Validate()
}

// MapQueryBands maps a query's band selection onto the local bands of the source at
// sourceIndex, where bandsPerSource lists the band count of every stacked source in
// order. It returns false if the source contributes no band to the query.
//
// For a Range query the source is included iff its global band interval intersects the
// query interval, and the result is that intersection shifted into [0, bands). A Single
// query is included only by the source that owns the index.
func MapQueryBands(query BandSelection, bandsPerSource []int, sourceIndex int) (BandSelection, bool) {
	if sourceIndex < 0 || sourceIndex >= len(bandsPerSource) {
		return BandSelection{}, false
	}

	sourceStart := 0
	for _, n := range bandsPerSource[:sourceIndex] {
		sourceStart += n
	}
	sourceBands := bandsPerSource[sourceIndex]
	sourceEnd := sourceStart + sourceBands

	if query.single {
		if query.start >= sourceStart && query.start < sourceEnd {
			return SingleBand(query.start - sourceStart), true
		}
		return BandSelection{}, false
	}

	if query.start >= sourceEnd || query.end <= sourceStart {
		return BandSelection{}, false
	}

	localStart := max(query.start, sourceStart) - sourceStart
	localEnd := min(query.end, sourceEnd) - sourceStart

	return BandSelection{start: localStart, end: localEnd}, true
}
