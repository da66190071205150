package scrape

import (
	"context"

	"ragpipe/internal/extracthtml"
	"ragpipe/internal/resultstore"
	"ragpipe/internal/siteconfig"
)

// Failure records a target that ended on a fetch error. Its partial items are
// still in the report mapping.
type Failure struct {
	Target siteconfig.Target
	Err    error
}

// Report is the outcome of a multi-site run.
type Report struct {
	Mapping  resultstore.Mapping
	Targets  int
	Failures []Failure
}

// MultiSiteScraper drains every target of the given sites in order.
type MultiSiteScraper struct {
	Site *SiteScraper
}

// Run expands sites and scrapes each target sequentially, sleeping
// Site.SiteDelay before every target but the first.
//
// A target that fails keeps its partial items and is listed in Failures; the
// run goes on. Context cancellation stops the run and returns the partial
// report with ctx.Err().
func (m *MultiSiteScraper) Run(ctx context.Context, sites []siteconfig.SiteConfig) (Report, error) {
	rep := Report{Mapping: resultstore.Mapping{}}

	for _, sc := range sites {
		for _, t := range sc.Expand() {
			if rep.Targets > 0 {
				if err := m.Site.sleeper().Sleep(ctx, m.Site.SiteDelay); err != nil {
					return rep, err
				}
			}
			rep.Targets++

			items, err := m.Site.Scrape(ctx, t)
			if items == nil {
				items = []extracthtml.Item{}
			}
			rep.Mapping[t.OutputKey] = items

			if err != nil {
				if ctx.Err() != nil {
					return rep, ctx.Err()
				}
				rep.Failures = append(rep.Failures, Failure{Target: t, Err: err})
			}
		}
	}
	return rep, nil
}
