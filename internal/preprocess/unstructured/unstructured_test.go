package unstructured

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragpipe/internal/chunk"
	"ragpipe/internal/pdftext"
)

type fakePages map[string][]pdftext.Page

func (f fakePages) Load(_ context.Context, path string) ([]pdftext.Page, error) {
	pages, ok := f[filepath.Base(path)]
	if !ok {
		return nil, errors.New("broken xref table")
	}
	return pages, nil
}

type logBuf struct{ lines []string }

func (l *logBuf) Printf(format string, v ...any) {
	l.lines = append(l.lines, format)
}

func TestStage_Run_ChunksPagesInOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, n := range []string{"b-report.pdf", "a-annual.pdf", "broken.pdf", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
	splitter, err := chunk.New(10, 4)
	require.NoError(t, err)

	logs := &logBuf{}
	out := filepath.Join(t.TempDir(), "unstructured_data.json")
	s := &Stage{
		Dir:    dir,
		Output: out,
		Pages: fakePages{
			"a-annual.pdf": {{Index: 0, Text: "aaa bbb ccc"}, {Index: 1, Text: ""}, {Index: 2, Text: "short"}},
			"b-report.pdf": {{Index: 0, Text: "tail"}},
		},
		Splitter: splitter,
		Logger:   logs,
	}
	require.NoError(t, s.Run(context.Background()))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var got []Chunk
	require.NoError(t, json.Unmarshal(b, &got))

	want := []Chunk{
		{Source: "a-annual.pdf", Chunk: "aaa bbb", Page: 0},
		{Source: "a-annual.pdf", Chunk: "bbb ccc", Page: 0},
		{Source: "a-annual.pdf", Chunk: "short", Page: 2},
		{Source: "b-report.pdf", Chunk: "tail", Page: 0},
	}
	assert.Equal(t, want, got)
	assert.True(t, strings.HasPrefix(string(b), "[\n  {\n    \"source\""))

	var sawError bool
	for _, l := range logs.lines {
		if strings.Contains(l, "status=error") {
			sawError = true
		}
	}
	assert.True(t, sawError, "broken.pdf should be logged")
}

func TestStage_Run_EmptyDirWritesEmptyArray(t *testing.T) {
	t.Parallel()

	splitter, err := chunk.New(100, 10)
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "u.json")
	s := &Stage{Dir: t.TempDir(), Output: out, Pages: fakePages{}, Splitter: splitter}
	require.NoError(t, s.Run(context.Background()))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))
}

func TestStage_Run_MissingDirFails(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "u.json")
	s := &Stage{Dir: filepath.Join(t.TempDir(), "absent"), Output: out}
	assert.ErrorIs(t, s.Run(context.Background()), pdftext.ErrNoDir)
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}
