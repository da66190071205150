// Package unstructured chunks free-form PDFs into overlapping text pieces.
package unstructured

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"time"

	"ragpipe/internal/artifact"
	"ragpipe/internal/chunk"
	"ragpipe/internal/metrics"
	"ragpipe/internal/pdftext"
)

// Chunk is one entry of the unstructured artifact.
type Chunk struct {
	Source string `json:"source"`
	Chunk  string `json:"chunk"`
	Page   int    `json:"page"`
}

type Logger interface {
	Printf(format string, v ...any)
}

// Stage chunks every PDF in Dir and writes the chunks to Output.
type Stage struct {
	Dir      string
	Output   string
	Pages    pdftext.Loader
	Splitter chunk.Splitter
	Logger   Logger
}

// Run processes Dir and writes a JSON array atomically. A PDF that cannot be
// read is logged and skipped.
func (s *Stage) Run(ctx context.Context) error {
	chunks, err := s.Process(ctx)
	if err != nil {
		return err
	}
	if err := artifact.WriteJSON(s.Output, chunks); err != nil {
		return err
	}
	s.logger().Printf("stage=unstructured chunks=%d output=%s", len(chunks), s.Output)
	return nil
}

// Process returns the chunks of Dir in file then page order. Page is the
// 0-based page index.
func (s *Stage) Process(ctx context.Context) ([]Chunk, error) {
	files, err := pdftext.List(s.Dir)
	if err != nil {
		return nil, err
	}

	out := []Chunk{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := filepath.Base(path)
		start := time.Now()
		pages, err := s.Pages.Load(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger().Printf("stage=unstructured file=%s status=error err=%v", name, err)
			continue
		}

		n := 0
		for _, p := range pages {
			for _, c := range s.Splitter.Split(p.Text) {
				out = append(out, Chunk{Source: name, Chunk: c, Page: p.Index})
				n++
			}
		}
		metrics.RecordItems("chunks", n)
		s.logger().Printf("stage=unstructured file=%s ok pages=%d chunks=%d duration=%s",
			name, len(pages), n, time.Since(start).Truncate(time.Millisecond))
	}
	return out, nil
}

func (s *Stage) logger() Logger {
	if s.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return s.Logger
}
