package extracthtml

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ragpipe/internal/metrics"

	"github.com/PuerkitoBio/goquery"
)

// DefaultUserAgent is sent when the Loader is not given one.
const DefaultUserAgent = "ragpipe/1.0"

// maxErrorBody bounds the response snippet kept on non-2xx responses.
const maxErrorBody = 4096

// FetchError is a failed page fetch: transport error, non-2xx status or an
// unparsable body. StatusCode is 0 when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && (e.StatusCode < 200 || e.StatusCode >= 300):
		return fmt.Sprintf("fetch %s: http status %d: %s", e.URL, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Loader fetches and parses HTML pages with a consistent timeout policy.
type Loader struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewLoader creates a Loader. If client is nil, http.DefaultClient is used;
// a zero timeout leaves the deadline to ctx and the client.
func NewLoader(client *http.Client, timeout time.Duration, userAgent string) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Loader{
		client:    client,
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// Fetch GETs rawURL and parses the body into a goquery document whose Url is
// the request URL. label is used as the metrics site tag.
//
// Every failure is returned as *FetchError. On non-2xx responses the error
// includes the status code and up to 4KB of the response body.
func (l *Loader) Fetch(ctx context.Context, label, rawURL string) (*goquery.Document, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	fail := func(status int, body string, err error, reqDur time.Duration, size int64) error {
		metrics.RecordHTTP(label, status, err, reqDur, time.Since(start), size)
		return &FetchError{URL: rawURL, StatusCode: status, Body: body, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fail(0, "", fmt.Errorf("new request: %w", err), -1, -1)
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fail(0, "", fmt.Errorf("http get: %w", err), -1, -1)
	}
	defer resp.Body.Close()
	reqDur := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fail(resp.StatusCode, strings.TrimSpace(string(body)),
			fmt.Errorf("http status %d", resp.StatusCode), reqDur, int64(len(body)))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(resp.StatusCode, "", fmt.Errorf("read body: %w", err), reqDur, int64(len(b)))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return nil, fail(resp.StatusCode, "", fmt.Errorf("parse html: %w", err), reqDur, int64(len(b)))
	}
	doc.Url = req.URL

	metrics.RecordHTTP(label, resp.StatusCode, nil, reqDur, time.Since(start), int64(len(b)))
	return doc, nil
}
