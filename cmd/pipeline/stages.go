package main

import (
	"context"
	"errors"
	"log"

	"ragpipe/internal/bedrock"
	"ragpipe/internal/chunk"
	"ragpipe/internal/config"
	"ragpipe/internal/extracthtml"
	"ragpipe/internal/index"
	"ragpipe/internal/pipeline"
	"ragpipe/internal/preprocess/structured"
	"ragpipe/internal/preprocess/unstructured"
	"ragpipe/internal/resultstore"
	"ragpipe/internal/scrape"
	"ragpipe/internal/siteconfig"
	"ragpipe/internal/storage"
)

// stageBuilder turns the config into stage definitions. Bedrock clients and
// the vector repository are opened inside the stages that use them, so a
// scrape-only run needs no AWS credentials.
type stageBuilder struct {
	cfg    config.Config
	d      deps
	logger *log.Logger
}

func (b *stageBuilder) defs() ([]pipeline.StageDef, error) {
	reg, err := siteconfig.Load(b.cfg.Scrape.SitesFile)
	if err != nil {
		return nil, err
	}
	sites, err := reg.Resolve(nil)
	if err != nil {
		return nil, err
	}
	splitter, err := chunk.New(b.cfg.Chunking.Size, b.cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	p := b.cfg.Paths
	// A local sqlite index owns the whole vector-store directory, so rebuild
	// clears its side files too. An empty directory is not a cache hit.
	indexArtifacts := []string{p.Combined()}
	if k := b.cfg.Storage.Kind; k == "" || k == "sqlite" {
		indexArtifacts = append(indexArtifacts, p.VectorDir)
	}

	unstructuredStage := &unstructured.Stage{
		Dir:      p.UnstructuredDir,
		Output:   p.Unstructured(),
		Pages:    b.d.Pages,
		Splitter: splitter,
		Logger:   b.logger,
	}

	return []pipeline.StageDef{
		{Stage: pipeline.StageScrape, Artifacts: []string{p.Scraped()}, Run: b.scrapeStage(sites).Run},
		{Stage: pipeline.StageStructured, Artifacts: []string{p.Structured()}, Run: b.runStructured},
		{Stage: pipeline.StageUnstructured, Artifacts: []string{p.Unstructured()}, Run: unstructuredStage.Run},
		{Stage: pipeline.StageIndex, Artifacts: indexArtifacts, Run: b.runIndex},
	}, nil
}

func (b *stageBuilder) scrapeStage(sites []siteconfig.SiteConfig) *scrape.Stage {
	s := b.cfg.Scrape
	sleeper := b.d.Sleeper
	if sleeper == nil {
		sleeper = scrape.NewTimerSleeper(0)
	}
	return &scrape.Stage{
		Scraper: &scrape.MultiSiteScraper{Site: &scrape.SiteScraper{
			Fetcher:   extracthtml.NewLoader(b.d.HTTPClient, s.Timeout, s.UserAgent),
			Extractor: &extracthtml.Extractor{Now: b.d.Now, RelativeURLFields: s.RelativeURLFields},
			Sleeper:   sleeper,
			Events: func(e scrape.Event) {
				switch e.Kind {
				case scrape.EventSiteDone:
					b.logger.Printf("stage=scrape site=%s ok items=%d", e.Site, e.Total)
				case scrape.EventRetry:
					b.logger.Printf("stage=scrape site=%s page=%d attempt=%d status=retry err=%v", e.Site, e.Page, e.Attempt, e.Err)
				case scrape.EventFetchError:
					b.logger.Printf("stage=scrape site=%s page=%d status=error err=%v", e.Site, e.Page, e.Err)
				}
			},
			Options: scrape.Options{
				PageDelay:    s.PageDelay,
				SiteDelay:    s.SiteDelay,
				MaxAttempts:  s.MaxAttempts,
				RetryBackoff: s.RetryBackoff,
			},
		}},
		Sites:  sites,
		Store:  resultstore.New(b.cfg.Paths.Scraped()),
		Logger: b.logger,
	}
}

func (b *stageBuilder) invoker(ctx context.Context) (bedrock.Invoker, error) {
	if b.d.NewInvoker == nil {
		return nil, errors.New("no bedrock client configured")
	}
	return b.d.NewInvoker(ctx, b.cfg.Bedrock.Region)
}

func (b *stageBuilder) runStructured(ctx context.Context) error {
	inv, err := b.invoker(ctx)
	if err != nil {
		return err
	}
	st := &structured.Stage{
		Dir:       b.cfg.Paths.StructuredDir,
		Output:    b.cfg.Paths.Structured(),
		Pages:     b.d.Pages,
		Extractor: &bedrock.Extractor{Client: inv, ModelID: b.cfg.Bedrock.ExtractionModel},
		Logger:    b.logger,
	}
	return st.Run(ctx)
}

func (b *stageBuilder) runIndex(ctx context.Context) error {
	inv, err := b.invoker(ctx)
	if err != nil {
		return err
	}
	repo, err := openRepo(ctx, b.cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	p := b.cfg.Paths
	builder := &index.Builder{
		Sources: index.Sources{
			Scraped:      p.Scraped(),
			Structured:   p.Structured(),
			Unstructured: p.Unstructured(),
		},
		Combined: p.Combined(),
		Repo:     repo,
		Embedder: &bedrock.Embedder{Client: inv, ModelID: b.cfg.Bedrock.EmbeddingModel},
		Logger:   b.logger,
	}
	return builder.Run(ctx)
}

func openRepo(ctx context.Context, cfg config.Config) (storage.VectorRepository, error) {
	return storage.New(ctx, storage.Config{
		Kind: cfg.Storage.Kind,
		DSN:  cfg.Storage.DSNFor(cfg.Paths.VectorDir),
	})
}
