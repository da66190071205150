// Package chunk splits text into overlapping chunks for embedding.
//
// Splitting is recursive over a separator list: the text is cut on the first
// separator it contains, pieces that are still too long are cut on the next
// separator, and small neighbouring pieces are merged back up to Size with
// Overlap characters carried from the previous chunk. Lengths are counted in
// runes.
package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultSeparators go from paragraph to character granularity.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter turns a text into ordered chunks.
type Splitter interface {
	Split(text string) []string
}

// Recursive is a recursive character splitter.
type Recursive struct {
	Size       int
	Overlap    int
	Separators []string
}

// New returns a Recursive splitter with DefaultSeparators.
func New(size, overlap int) (*Recursive, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk: size must be > 0, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk: overlap must be in [0,%d), got %d", size, overlap)
	}
	return &Recursive{Size: size, Overlap: overlap, Separators: DefaultSeparators}, nil
}

// Split returns the chunks of text in order. Whitespace-only input yields
// no chunks.
func (r *Recursive) Split(text string) []string {
	seps := r.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	return r.split(text, seps)
}

func (r *Recursive) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var next []string
	for i, s := range seps {
		if s == "" {
			sep = s
			break
		}
		if strings.Contains(text, s) {
			sep, next = s, seps[i+1:]
			break
		}
	}

	var out, good []string
	for _, piece := range splitOn(text, sep) {
		if runeLen(piece) < r.Size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, r.merge(good, sep)...)
			good = nil
		}
		if len(next) == 0 {
			out = append(out, piece)
		} else {
			out = append(out, r.split(piece, next)...)
		}
	}
	if len(good) > 0 {
		out = append(out, r.merge(good, sep)...)
	}
	return out
}

// merge joins pieces with sep into chunks of at most Size runes, starting
// each new chunk with the trailing pieces of the previous one that fit in
// Overlap.
func (r *Recursive) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var (
		out     []string
		current []string
		total   int
	)
	joinedLen := func(n int) int {
		if len(current) > 0 {
			return total + n + sepLen
		}
		return total + n
	}

	for _, p := range pieces {
		n := runeLen(p)
		if joinedLen(n) > r.Size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
				out = append(out, doc)
			}
			for total > r.Overlap || (joinedLen(n) > r.Size && total > 0) {
				total -= runeLen(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
		if len(current) > 1 {
			total += sepLen
		}
	}
	if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
		out = append(out, doc)
	}
	return out
}

// splitOn splits text on sep, dropping empty pieces. An empty sep splits
// into runes.
func splitOn(text, sep string) []string {
	var parts []string
	if sep == "" {
		parts = make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
	} else {
		parts = strings.Split(text, sep)
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
