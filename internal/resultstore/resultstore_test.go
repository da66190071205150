package resultstore

import (
	"os"
	"path/filepath"
	"testing"

	"ragpipe/internal/extracthtml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(name string) extracthtml.Item {
	return extracthtml.Item{
		Source:    extracthtml.SourceWebScraped,
		ScrapedAt: "2025-01-02 03:04:05",
		Fields: []extracthtml.FieldValue{
			{Name: "name", Value: name},
			{Name: "role", Value: "fellow"},
		},
	}
}

func names(items []extracthtml.Item) []string {
	var out []string
	for _, it := range items {
		v, _ := it.Get("name")
		out = append(out, v)
	}
	return out
}

// TestMerge_ReplacesWholesale verifies an incoming key replaces the stored
// list rather than appending to it.
func TestMerge_ReplacesWholesale(t *testing.T) {
	t.Parallel()

	existing := Mapping{
		"alumni":  {item("A"), item("B")},
		"fellows": {item("F")},
	}
	incoming := Mapping{"alumni": {item("C")}}

	got := Merge(existing, incoming)
	assert.Equal(t, []string{"C"}, names(got["alumni"]))
	assert.Equal(t, []string{"F"}, names(got["fellows"]))

	// inputs untouched
	assert.Equal(t, []string{"A", "B"}, names(existing["alumni"]))
	assert.Len(t, incoming, 1)

	got["fellows"][0].Set("name", "changed")
	v, _ := existing["fellows"][0].Get("name")
	assert.Equal(t, "F", v)
}

func TestMerge_EmptyIncomingListStillReplaces(t *testing.T) {
	t.Parallel()

	got := Merge(Mapping{"schools_dang": {item("S")}}, Mapping{"schools_dang": {}})
	require.Contains(t, got, "schools_dang")
	assert.Empty(t, got["schools_dang"])
}

func TestStore_LoadMissingIsEmpty(t *testing.T) {
	t.Parallel()

	m, err := New(filepath.Join(t.TempDir(), "scraped_data.json")).Load()
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Empty(t, m)
}

func TestStore_LoadInvalidJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scraped_data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"alumni": [`), 0o644))

	_, err := New(path).Load()
	assert.Error(t, err)
}

// TestStore_UpdateRoundTrip verifies Update persists the merged mapping in
// the flat item layout and keeps keys it was not given.
func TestStore_UpdateRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "public", "json", "scraped_data.json")
	s := New(path)

	_, err := s.Update(Mapping{"alumni": {item("A"), item("B")}, "fellows": {item("F")}})
	require.NoError(t, err)

	merged, err := s.Update(Mapping{"alumni": {item("C")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, names(merged["alumni"]))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, merged, loaded)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"source": "web_scraped"`)
	assert.Contains(t, string(raw), `"scraped_at": "2025-01-02 03:04:05"`)
	assert.Contains(t, string(raw), `"name": "F"`)
}
