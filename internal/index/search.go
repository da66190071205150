package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"ragpipe/internal/storage"
)

// Result is a ranked document.
type Result struct {
	Document storage.Document
	Score    float64
}

// Searcher ranks stored documents against a query.
type Searcher struct {
	Repo     storage.VectorRepository
	Embedder Embedder
}

// ErrDimension is returned when a stored vector and the query differ in size.
var ErrDimension = errors.New("embedding dimension mismatch")

// Search returns the k documents most similar to query by cosine
// similarity, best first. Equal scores are ordered by document ID.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	q, err := s.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	docs, err := s.Repo.AllDocuments(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(docs))
	for _, d := range docs {
		if len(d.Embedding) != len(q) {
			return nil, fmt.Errorf("%w: document %s has %d, query has %d", ErrDimension, d.ID, len(d.Embedding), len(q))
		}
		results = append(results, Result{Document: d, Score: Cosine(q, d.Embedding)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.ID < results[j].Document.ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector. a and b must have the same length.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
