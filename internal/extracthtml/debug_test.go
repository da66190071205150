package extracthtml

import (
	"bytes"
	"strings"
	"testing"
)

// TestDumpSelection_TextOnly verifies text mode prints trimmed text and adds
// a blank line between matches.
func TestDumpSelection_TextOnly(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<div id="x">  A  </div><div id="x">B</div>`)
	var buf bytes.Buffer

	n, err := DumpSelection(&buf, doc, "div#x", true)
	if err != nil {
		t.Fatalf("DumpSelection: %v", err)
	}
	if n != 2 {
		t.Fatalf("matches=%d, want 2", n)
	}
	if want := "A\n\nB\n\n"; buf.String() != want {
		t.Fatalf("unexpected output:\nwant=%q\ngot=%q", want, buf.String())
	}
}

// TestDumpSelection_OuterHTML verifies the non-text mode prints outer HTML.
func TestDumpSelection_OuterHTML(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<ul class="pagination"><li class="active"><a href="?page=1">1</a></li></ul>`)
	var buf bytes.Buffer

	if _, err := DumpSelection(&buf, doc, "ul.pagination", false); err != nil {
		t.Fatalf("DumpSelection: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `<ul class="pagination">`) || !strings.Contains(out, `<li class="active">`) {
		t.Fatalf("expected outer HTML, got %q", out)
	}
}

func TestDumpSelection_NoMatch(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n, err := DumpSelection(&buf, mustDoc(t, `<p>x</p>`), "nav", false)
	if err != nil || n != 0 || buf.Len() != 0 {
		t.Fatalf("n=%d err=%v out=%q", n, err, buf.String())
	}
}
