// Package scrape drives paginated listing scrapes.
//
// SiteScraper walks one target page by page (fetch, extract, analyze) until
// the pagination analyzer says stop. MultiSiteScraper expands site configs
// into targets and drains them one after another. Everything is sequential:
// page N is fully analyzed before page N+1 is requested.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"ragpipe/internal/extracthtml"
	"ragpipe/internal/metrics"
	"ragpipe/internal/siteconfig"

	"github.com/PuerkitoBio/goquery"
)

// maxRetryBackoff caps the exponential retry delay.
const maxRetryBackoff = time.Minute

// Fetcher returns the parsed page at rawURL. label tags metrics. Failures
// should be *extracthtml.FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, label, rawURL string) (*goquery.Document, error)
}

// Options are the politeness and retry settings.
type Options struct {
	// PageDelay separates consecutive pages of one target.
	PageDelay time.Duration

	// SiteDelay separates consecutive targets (MultiSiteScraper only).
	SiteDelay time.Duration

	// MaxAttempts bounds fetch attempts per page, first attempt included.
	// Values below 1 mean 1.
	MaxAttempts int

	// RetryBackoff is the delay before the second attempt; it doubles per
	// attempt up to one minute.
	RetryBackoff time.Duration
}

// SiteScraper scrapes one target.
type SiteScraper struct {
	Fetcher   Fetcher
	Extractor *extracthtml.Extractor
	Sleeper   Sleeper
	Events    EventFunc
	Options
}

// Scrape fetches pages 1, 2, ... of t until Analyze returns stop and returns
// every kept item in fetch order.
//
// A page that still fails after MaxAttempts ends the target: the items
// collected so far are returned together with the *extracthtml.FetchError.
// Context cancellation during a delay returns the items so far and ctx.Err().
func (s *SiteScraper) Scrape(ctx context.Context, t siteconfig.Target) ([]extracthtml.Item, error) {
	var items []extracthtml.Item
	label := t.Label()

	for page := 1; ; page++ {
		pageURL, err := PageURL(t.BaseURL, t.PageParam, page)
		if err != nil {
			return items, err
		}

		doc, err := s.fetch(ctx, label, pageURL, page)
		if err != nil {
			s.Events.emit(Event{Kind: EventFetchError, Site: label, OutputKey: t.OutputKey, Page: page, URL: pageURL, Total: len(items), Err: err})
			return items, err
		}

		res := s.Extractor.ExtractPage(doc, t)
		items = append(items, res.Items...)
		metrics.RecordItems("scraped", len(res.Items))
		s.Events.emit(Event{Kind: EventPageFetched, Site: label, OutputKey: t.OutputKey, Page: page, URL: pageURL, Items: len(res.Items), Total: len(items)})

		d := extracthtml.Analyze(doc, t, page, len(res.Items))
		metrics.RecordPage(label, d.Reason)
		s.Events.emit(Event{Kind: EventDecision, Site: label, OutputKey: t.OutputKey, Page: page, URL: pageURL, Items: len(res.Items), Total: len(items), Decision: d})

		if !d.Continue {
			s.Events.emit(Event{Kind: EventSiteDone, Site: label, OutputKey: t.OutputKey, Page: page, Total: len(items)})
			return items, nil
		}
		if err := s.sleeper().Sleep(ctx, s.PageDelay); err != nil {
			return items, err
		}
	}
}

// fetch retries failed attempts with exponential backoff. It does not retry
// once ctx is done.
func (s *SiteScraper) fetch(ctx context.Context, label, pageURL string, page int) (*goquery.Document, error) {
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		doc, err := s.Fetcher.Fetch(ctx, label, pageURL)
		if err == nil {
			return doc, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == attempts {
			break
		}
		s.Events.emit(Event{Kind: EventRetry, Site: label, Page: page, URL: pageURL, Attempt: attempt, Err: err})
		if serr := s.sleeper().Sleep(ctx, retryDelay(s.RetryBackoff, attempt)); serr != nil {
			break
		}
	}

	var fe *extracthtml.FetchError
	if !errors.As(lastErr, &fe) {
		lastErr = &extracthtml.FetchError{URL: pageURL, Err: lastErr}
	}
	return nil, lastErr
}

func (s *SiteScraper) sleeper() Sleeper {
	if s.Sleeper == nil {
		return &TimerSleeper{}
	}
	return s.Sleeper
}

// retryDelay is base * 2^(attempt-1), clamped.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxRetryBackoff {
			return maxRetryBackoff
		}
	}
	return min(d, maxRetryBackoff)
}

// PageURL returns base with the page query parameter set, keeping any other
// query parameters.
func PageURL(base, param string, page int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("page url %q: %w", base, err)
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
