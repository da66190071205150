package scrape

import "ragpipe/internal/extracthtml"

// EventKind identifies a scraper event.
type EventKind string

const (
	EventPageFetched EventKind = "page_fetched"
	EventDecision    EventKind = "decision"
	EventRetry       EventKind = "retry"
	EventFetchError  EventKind = "fetch_error"
	EventSiteDone    EventKind = "site_done"
)

// Event is emitted by the scrapers as they progress. Fields not relevant to
// Kind are zero.
type Event struct {
	Kind      EventKind
	Site      string // target label, e.g. "schools/dang"
	OutputKey string
	Page      int
	URL       string

	// Items found on this page and Total accumulated for the site.
	Items int
	Total int

	Attempt  int
	Decision extracthtml.Decision
	Err      error
}

// EventFunc receives events. A nil EventFunc discards them.
type EventFunc func(Event)

func (f EventFunc) emit(e Event) {
	if f != nil {
		f(e)
	}
}
