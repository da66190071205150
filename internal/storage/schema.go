package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
)

// DefaultTable holds documents when Config.Table is empty.
const DefaultTable = "documents"

// Document table columns, in insert order.
var Columns = []string{"id", "content", "metadata", "embedding"}

var tableNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidateTableName accepts "name" or "schema.name" made of letters, digits
// and underscores. Backends interpolate the name into DDL, so nothing else
// is allowed.
func ValidateTableName(name string) error {
	if !tableNameRE.MatchString(name) {
		return fmt.Errorf("storage: invalid table name %q", name)
	}
	return nil
}

// EncodeVector packs v as little-endian float32s.
func EncodeVector(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("storage: embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

// EncodeMetadata returns m as a JSON object; nil encodes as {}.
func EncodeMetadata(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeMetadata parses a JSON object written by EncodeMetadata.
func DecodeMetadata(s string) (map[string]string, error) {
	m := map[string]string{}
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("storage: decode metadata: %w", err)
	}
	return m, nil
}

// CheckUniqueIDs returns an error naming the first repeated or empty ID.
func CheckUniqueIDs(docs []Document) error {
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("storage: document with empty id")
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("storage: duplicate document id %q", d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}
