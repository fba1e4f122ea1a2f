package engine

import "testing"

func TestComputeCanonicalName(t *testing.T) {
	type params struct {
		Factor int `json:"factor"`
	}

	base, err := ComputeCanonicalName("Scale", params{Factor: 2}, 1, 2)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		typeName string
		params   any
		children []CanonicalName
		wantSame bool
	}{
		{"identical", "Scale", params{Factor: 2}, []CanonicalName{1, 2}, true},
		{"other type", "Offset", params{Factor: 2}, []CanonicalName{1, 2}, false},
		{"other params", "Scale", params{Factor: 3}, []CanonicalName{1, 2}, false},
		{"swapped children", "Scale", params{Factor: 2}, []CanonicalName{2, 1}, false},
		{"fewer children", "Scale", params{Factor: 2}, []CanonicalName{1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeCanonicalName(tt.typeName, tt.params, tt.children...)
			if err != nil {
				t.Fatal(err)
			}
			if (got == base) != tt.wantSame {
				t.Errorf("got %v, base %v, wantSame %v", got, base, tt.wantSame)
			}
		})
	}
}

func TestCanonicalNameText(t *testing.T) {
	n := CanonicalName(0xdeadbeef)
	text, _ := n.MarshalText()
	if string(text) != "00000000deadbeef" {
		t.Errorf("got %s", text)
	}

	var back CanonicalName
	if err := back.UnmarshalText(text); err != nil || back != n {
		t.Errorf("got %v, %v", back, err)
	}
	if err := back.UnmarshalText([]byte("xyz")); err == nil {
		t.Error("expected error for invalid hex")
	}
}
