package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMapQueryBands(t *testing.T) {
	tests := []struct {
		name      string
		query     BandSelection
		bands     []int
		source    int
		want      BandSelection
		wantFound bool
	}{
		{"single in first source", SingleBand(0), []int{2, 1}, 0, SingleBand(0), true},
		{"single not in second source", SingleBand(0), []int{2, 1}, 1, BandSelection{}, false},
		{"single shifted into second source", SingleBand(2), []int{2, 1}, 1, SingleBand(0), true},
		{"range inside first source", MustBandRange(0, 1), []int{2, 1}, 0, MustBandRange(0, 1), true},
		{"range reaching into second source", MustBandRange(0, 3), []int{2, 1}, 1, MustBandRange(0, 1), true},
		{"range clipped in middle source", MustBandRange(0, 3), []int{2, 2, 1}, 1, MustBandRange(0, 1), true},
		{"range covering middle source", MustBandRange(0, 4), []int{2, 2, 1}, 1, MustBandRange(0, 2), true},
		{"range ending at source start", MustBandRange(0, 2), []int{2, 2, 1}, 1, BandSelection{}, false},
		{"range starting after source", MustBandRange(3, 5), []int{2, 1}, 0, BandSelection{}, false},
		{"source index out of range", SingleBand(0), []int{1}, 3, BandSelection{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := MapQueryBands(tt.query, tt.bands, tt.source)
			if found != tt.wantFound {
				t.Fatalf("MapQueryBands() found = %v, want %v", found, tt.wantFound)
			}
			if found && got != tt.want {
				t.Errorf("MapQueryBands() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Lifting every per-source result back to global indices must reconstruct the
// query clipped to the total band count, with no band claimed twice.
func TestMapQueryBandsReconstructsQuery(t *testing.T) {
	layouts := [][]int{{1}, {1, 1}, {2, 1}, {2, 2, 1}, {3, 1, 4}, {1, 5, 2, 2}}

	for _, bands := range layouts {
		total := 0
		for _, n := range bands {
			total += n
		}

		var queries []BandSelection
		for start := 0; start <= total; start++ {
			queries = append(queries, SingleBand(start))
			for end := start + 1; end <= total+1; end++ {
				queries = append(queries, MustBandRange(start, end))
			}
		}

		for _, q := range queries {
			seen := make(map[int]int)
			offset := 0
			for i, n := range bands {
				local, ok := MapQueryBands(q, bands, i)
				if ok {
					if local.Start() < 0 || local.End() > n {
						t.Fatalf("bands %v query %v source %d: local %v outside [0, %d)", bands, q, i, local, n)
					}
					for _, b := range local.Bands() {
						seen[offset+b]++
					}
				}
				offset += n
			}

			for g := 0; g < total; g++ {
				want := 0
				if q.Contains(g) {
					want = 1
				}
				if seen[g] != want {
					t.Fatalf("bands %v query %v: global band %d covered %d times, want %d", bands, q, g, seen[g], want)
				}
			}
		}
	}
}

func TestBandSelectionValidate(t *testing.T) {
	if _, err := BandRange(2, 2); !errors.Is(err, ErrInvalidBandSelection) {
		t.Errorf("BandRange(2, 2) error = %v, want ErrInvalidBandSelection", err)
	}
	if _, err := BandRange(-1, 2); !errors.Is(err, ErrInvalidBandSelection) {
		t.Errorf("BandRange(-1, 2) error = %v, want ErrInvalidBandSelection", err)
	}
	if err := SingleBand(3).Validate(); err != nil {
		t.Errorf("SingleBand(3).Validate() = %v", err)
	}
}

func TestBandSelectionJSON(t *testing.T) {
	tests := []struct {
		name string
		sel  BandSelection
		want string
	}{
		{"single", SingleBand(1), `{"type":"single","index":1}`},
		{"range", MustBandRange(0, 3), `{"type":"range","start":0,"end":3}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.sel)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}

			var back BandSelection
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if back != tt.sel {
				t.Errorf("Unmarshal() = %v, want %v", back, tt.sel)
			}
		})
	}

	var b BandSelection
	if err := json.Unmarshal([]byte(`{"type":"range","start":3,"end":1}`), &b); err == nil {
		t.Error("expected error for inverted range")
	}
}
