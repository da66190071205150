package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON_RoundTripAndNoHTMLEscape(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "out.json")
	in := map[string][]string{"links": {"https://x.test/?a=1&b=<2>"}}

	require.NoError(t, WriteJSON(path, in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "a=1&b=<2>")
	assert.True(t, strings.HasPrefix(string(raw), "{\n  \"links\""))

	var out map[string][]string
	found, err := ReadJSON(path, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)
}

func TestReadJSON_Missing(t *testing.T) {
	t.Parallel()

	out := map[string]int{"keep": 1}
	found, err := ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, map[string]int{"keep": 1}, out)
}

func TestReadJSON_Invalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	var out map[string]any
	found, err := ReadJSON(path, &out)
	require.Error(t, err)
	assert.True(t, found)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

// TestWriteFile_FailureKeepsOldFile verifies a failed write leaves neither a
// temp file nor a modified destination.
func TestWriteFile_FailureKeepsOldFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.Error(t, WriteFile(path, failingReader{}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExistsAndRemove(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "a.json")
	sub := filepath.Join(dir, "store")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(sub, "inner"), 0o755))

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.MkdirAll(empty, 0o755))

	assert.True(t, Exists())
	assert.True(t, Exists(file, sub))
	assert.False(t, Exists(file, filepath.Join(dir, "missing")))
	assert.False(t, Exists(empty))

	require.NoError(t, Remove(file, sub, filepath.Join(dir, "missing")))
	assert.False(t, Exists(file))
	assert.False(t, Exists(sub))
}
