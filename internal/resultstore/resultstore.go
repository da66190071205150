// Package resultstore persists scrape results keyed by output key.
package resultstore

import (
	"ragpipe/internal/artifact"
	"ragpipe/internal/extracthtml"
)

// Mapping holds scraped items per output key.
type Mapping map[string][]extracthtml.Item

// Counts returns the number of output keys and the total item count.
func (m Mapping) Counts() (keys, items int) {
	for _, v := range m {
		items += len(v)
	}
	return len(m), items
}

// Store reads and writes one scrape artifact.
type Store struct {
	Path string
}

// New returns a Store for path.
func New(path string) *Store {
	return &Store{Path: path}
}

// Load returns the stored mapping. A missing file yields an empty mapping.
func (s *Store) Load() (Mapping, error) {
	m := Mapping{}
	if _, err := artifact.ReadJSON(s.Path, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = Mapping{}
	}
	return m, nil
}

// Save writes m atomically as indented JSON.
func (s *Store) Save(m Mapping) error {
	if m == nil {
		m = Mapping{}
	}
	return artifact.WriteJSON(s.Path, m)
}

// Update loads the stored mapping, merges incoming over it and saves the
// result, which it returns.
func (s *Store) Update(incoming Mapping) (Mapping, error) {
	existing, err := s.Load()
	if err != nil {
		return nil, err
	}
	merged := Merge(existing, incoming)
	if err := s.Save(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Merge returns a new mapping with every key of existing and incoming. A key
// present in incoming replaces the existing list wholesale; lists are never
// concatenated. Neither input is modified.
func Merge(existing, incoming Mapping) Mapping {
	out := make(Mapping, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = cloneItems(v)
	}
	for k, v := range incoming {
		out[k] = cloneItems(v)
	}
	return out
}

func cloneItems(in []extracthtml.Item) []extracthtml.Item {
	out := make([]extracthtml.Item, len(in))
	for i, it := range in {
		it.Fields = append([]extracthtml.FieldValue(nil), it.Fields...)
		out[i] = it
	}
	return out
}
