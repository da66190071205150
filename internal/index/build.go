package index

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"ragpipe/internal/artifact"
	"ragpipe/internal/metrics"
	"ragpipe/internal/storage"
)

// Embedder turns text into a vector. *bedrock.Embedder satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Logger interface {
	Printf(format string, v ...any)
}

// Builder runs the index stage.
type Builder struct {
	Sources  Sources
	Combined string
	Repo     storage.VectorRepository
	Embedder Embedder
	Logger   Logger
}

// Run combines the artifacts, writes Combined, then replaces the repository
// contents with freshly embedded documents. Any embedding failure fails the
// stage before the repository is touched.
func (b *Builder) Run(ctx context.Context) error {
	in, err := Load(b.Sources)
	if err != nil {
		return err
	}
	b.logger().Printf("stage=index inputs scraped_sections=%d structured_sections=%d chunks=%d",
		len(in.Scraped), len(in.Structured), len(in.Unstructured))

	combined, err := Combine(in)
	if err != nil {
		return err
	}
	if err := artifact.WriteJSON(b.Combined, combined); err != nil {
		return err
	}

	docs, err := Documents(combined)
	if err != nil {
		return fmt.Errorf("documents: %w", err)
	}
	if err := storage.CheckUniqueIDs(docs); err != nil {
		return err
	}

	start := time.Now()
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		vec, err := b.Embedder.Embed(ctx, docs[i].Content)
		if err != nil {
			return fmt.Errorf("embed %s: %w", docs[i].ID, err)
		}
		docs[i].Embedding = vec
	}
	metrics.RecordItems("embedded", len(docs))
	b.logger().Printf("stage=index embedded=%d duration=%s", len(docs), time.Since(start).Truncate(time.Millisecond))

	if err := b.Repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	n, err := b.Repo.ReplaceDocuments(ctx, docs)
	if err != nil {
		return fmt.Errorf("replace documents: %w", err)
	}
	b.logger().Printf("stage=index stored=%d combined=%s", n, b.Combined)
	return nil
}

func (b *Builder) logger() Logger {
	if b.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return b.Logger
}
