// Package pdftext reads plain text out of PDF files, page by page.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page is the text of one page. Index is 0-based.
type Page struct {
	Index int
	Text  string
}

// Loader returns the pages of a PDF.
type Loader interface {
	Load(ctx context.Context, path string) ([]Page, error)
}

// Reader is the Loader backed by github.com/ledongthuc/pdf. Every page is
// returned, including pages without text, so indexes match the document.
type Reader struct{}

func (Reader) Load(ctx context.Context, path string) (pages []Page, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	// The parser panics on some malformed content streams.
	defer func() {
		if p := recover(); p != nil {
			pages, err = nil, fmt.Errorf("read pdf %s: %v", path, p)
		}
	}()

	n := r.NumPage()
	pages = make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, Page{Index: i - 1})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read pdf %s page %d: %w", path, i, err)
		}
		pages = append(pages, Page{Index: i - 1, Text: strings.TrimSpace(text)})
	}
	return pages, nil
}

// JoinText concatenates page texts with newlines.
func JoinText(pages []Page) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, "\n")
}

// ErrNoDir is returned by List when dir does not exist.
var ErrNoDir = errors.New("pdf directory does not exist")

// List returns the *.pdf files directly in dir, sorted by name.
func List(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoDir, dir)
		}
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
