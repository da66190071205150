package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, size, overlap int) *Recursive {
	t.Helper()
	r, err := New(size, overlap)
	require.NoError(t, err)
	return r
}

func TestSplit_ShortText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"hello world"}, mustNew(t, 100, 10).Split("hello world"))
}

func TestSplit_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, mustNew(t, 100, 10).Split(""))
	assert.Empty(t, mustNew(t, 100, 10).Split("  \n\n  "))
}

// TestSplit_WordOverlap verifies each chunk starts with the tail of the
// previous one.
func TestSplit_WordOverlap(t *testing.T) {
	t.Parallel()

	got := mustNew(t, 10, 4).Split("aaa bbb ccc ddd eee")
	assert.Equal(t, []string{"aaa bbb", "bbb ccc", "ccc ddd", "ddd eee"}, got)
}

func TestSplit_PrefersParagraphs(t *testing.T) {
	t.Parallel()

	got := mustNew(t, 20, 0).Split("para one here\n\npara two here")
	assert.Equal(t, []string{"para one here", "para two here"}, got)
}

func TestSplit_FallsBackToCharacters(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"abcde", "fghij", "kl"}, mustNew(t, 5, 0).Split("abcdefghijkl"))
}

func TestSplit_CountsRunes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"ééééé", "ééééé"}, mustNew(t, 5, 0).Split("ééééé ééééé"))
}

// TestSplit_RespectsSize checks the size bound and ordering on mixed text.
func TestSplit_RespectsSize(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Teach For Nepal fellows work in public schools across districts. ")
		if i%5 == 4 {
			b.WriteString("\n\n")
		}
	}
	text := b.String()

	chunks := mustNew(t, 120, 30).Split(text)
	require.Greater(t, len(chunks), 10)
	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 120, "chunk %d", i)
		assert.NotEmpty(t, c)
	}
	assert.True(t, strings.HasPrefix(chunks[0], "Teach For Nepal"))
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(0, 0)
	assert.Error(t, err)
	_, err = New(100, 100)
	assert.Error(t, err)
	_, err = New(100, -1)
	assert.Error(t, err)

	r, err := New(1000, 200)
	require.NoError(t, err)
	assert.Equal(t, DefaultSeparators, r.Separators)
}
