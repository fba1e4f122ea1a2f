package engine

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// CanonicalName identifies an initialized operator by its type, parameters and inputs.
// Equal names imply equal results for equal queries.
type CanonicalName uint64

// String returns the name as 16 hex digits.
func (n CanonicalName) String() string {
	return fmt.Sprintf("%016x", uint64(n))
}

// ParseCanonicalName parses the hex form returned by String.
func ParseCanonicalName(s string) (CanonicalName, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("canonical name %q: %w", s, err)
	}
	return CanonicalName(v), nil
}

// ComputeCanonicalName hashes the operator type, its JSON-encoded params and the names
// of its children in order.
func ComputeCanonicalName(typeName string, params any, children ...CanonicalName) (CanonicalName, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("encoding %s params: %w", typeName, err)
	}

	d := xxhash.New()
	_, _ = d.WriteString(typeName)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(encoded)
	var buf [8]byte
	for _, c := range children {
		_, _ = d.Write([]byte{0})
		binary.BigEndian.PutUint64(buf[:], uint64(c))
		_, _ = d.Write(buf[:])
	}
	return CanonicalName(d.Sum64()), nil
}

// MarshalText implements encoding.TextMarshaler.
func (n CanonicalName) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *CanonicalName) UnmarshalText(text []byte) error {
	v, err := ParseCanonicalName(string(text))
	if err != nil {
		return err
	}
	*n = v
	return nil
}
