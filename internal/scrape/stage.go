package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"ragpipe/internal/resultstore"
	"ragpipe/internal/siteconfig"
)

// ErrAllTargetsFailed is returned by Stage.Run when no target finished
// cleanly.
var ErrAllTargetsFailed = errors.New("every scrape target failed")

type Logger interface {
	Printf(format string, v ...any)
}

// Stage scrapes Sites and merges the result into Store.
type Stage struct {
	Scraper *MultiSiteScraper
	Sites   []siteconfig.SiteConfig
	Store   *resultstore.Store
	Logger  Logger
}

// Scrape runs every site and saves the merged mapping. A canceled run saves
// nothing, so the previous artifact stays intact.
func (s *Stage) Scrape(ctx context.Context) (Report, error) {
	rep, err := s.Scraper.Run(ctx, s.Sites)
	if err != nil {
		return rep, err
	}
	for _, f := range rep.Failures {
		s.logger().Printf("stage=scrape target=%s status=partial items=%d err=%v",
			f.Target.Label(), len(rep.Mapping[f.Target.OutputKey]), f.Err)
	}

	merged, err := s.Store.Update(rep.Mapping)
	if err != nil {
		return rep, fmt.Errorf("save %s: %w", s.Store.Path, err)
	}
	keys, items := merged.Counts()
	s.logger().Printf("stage=scrape saved=%s sections=%d items=%d", s.Store.Path, keys, items)
	return rep, nil
}

// Run is Scrape for the pipeline. Partial failures are tolerated; a run in
// which every target failed is an error.
func (s *Stage) Run(ctx context.Context) error {
	rep, err := s.Scrape(ctx)
	if err != nil {
		return err
	}
	if rep.Targets > 0 && len(rep.Failures) == rep.Targets {
		return fmt.Errorf("%w (%d targets): %v", ErrAllTargetsFailed, rep.Targets, rep.Failures[0].Err)
	}
	return nil
}

func (s *Stage) logger() Logger {
	if s.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return s.Logger
}
