package pdftext

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_SortedPDFsOnly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, n := range []string{"staff.pdf", "contacts.pdf", "readme.txt", "b.PDF"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.pdf.d"), 0o755))

	got, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "contacts.pdf"), filepath.Join(dir, "staff.pdf")}, got)
}

func TestList_MissingDir(t *testing.T) {
	t.Parallel()

	_, err := List(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNoDir)
}

func TestReader_RejectsNonPDF(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o644))

	_, err := Reader{}.Load(context.Background(), path)
	assert.Error(t, err)

	_, err = Reader{}.Load(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestJoinText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "one\n\nthree", JoinText([]Page{{Text: "one"}, {Index: 1}, {Index: 2, Text: "three"}}))
	assert.Equal(t, "", JoinText(nil))
}
