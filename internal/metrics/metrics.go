// Package metrics is the backend-agnostic metrics facade used by the scraper
// and the pipeline.
//
// Core code only ever calls the package-level helpers (IncCounter,
// ObserveHistogram, RecordHTTP, RecordStage, ...). A concrete backend such as
// internal/metrics/datadog is installed once by a command via SetBackend.
// Until then every call goes to a nop backend.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names understood by backends.
const (
	StageTotal           = "ragpipe_stage_total"
	StageDurationSeconds = "ragpipe_stage_duration_seconds"
	ItemsTotal           = "ragpipe_items_total"
	PagesTotal           = "ragpipe_pages_total"

	HTTPRequestsTotal          = "ragpipe_http_requests_total"
	HTTPErrorsTotal            = "ragpipe_http_errors_total"
	HTTPRequestDurationSeconds = "ragpipe_http_request_duration_seconds"
	HTTPResponseDurationSecs   = "ragpipe_http_response_duration_seconds"
	HTTPDownloadBytes          = "ragpipe_http_download_bytes"
)

// Labels are metric dimensions (rendered as tags by backends).
type Labels map[string]string

// Backend receives raw metric observations.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the nop
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush asks the installed backend to submit buffered observations.
func Flush() error {
	return current().Flush()
}

// RecordHTTP records one HTTP attempt.
//
// status is 0 when no response was received. err, when non-nil, also counts
// the attempt as an error. Negative durations and sizes mean "not measured"
// and are skipped.
func RecordHTTP(site string, status int, err error, reqDur, respDur time.Duration, size int64) {
	labels := Labels{"site": site, "status": statusLabel(status)}

	IncCounter(HTTPRequestsTotal, 1, labels)
	if err != nil || status < 200 || status >= 300 {
		IncCounter(HTTPErrorsTotal, 1, labels)
	}
	if reqDur >= 0 {
		ObserveHistogram(HTTPRequestDurationSeconds, reqDur.Seconds(), labels)
	}
	if respDur >= 0 {
		ObserveHistogram(HTTPResponseDurationSecs, respDur.Seconds(), labels)
	}
	if size >= 0 {
		ObserveHistogram(HTTPDownloadBytes, float64(size), labels)
	}
}

// RecordStage records the outcome and duration of one pipeline stage.
func RecordStage(stage, status string, d time.Duration) {
	labels := Labels{"stage": stage, "status": status}
	IncCounter(StageTotal, 1, labels)
	ObserveHistogram(StageDurationSeconds, d.Seconds(), labels)
}

// RecordPage records one pagination decision for a site.
func RecordPage(site, decision string) {
	IncCounter(PagesTotal, 1, Labels{"site": site, "decision": decision})
}

// RecordItems adds n produced items of the given kind (scraped, structured,
// chunk, document).
func RecordItems(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(ItemsTotal, float64(n), Labels{"kind": kind})
}

func statusLabel(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status)
}
