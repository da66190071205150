package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"ragpipe/internal/extracthtml"
	"ragpipe/internal/siteconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper records requested delays without sleeping.
type recordingSleeper struct {
	mu      sync.Mutex
	slept   []time.Duration
	onSleep func(n int) error
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	n := len(s.slept)
	s.mu.Unlock()
	if s.onSleep != nil {
		if err := s.onSleep(n); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (s *recordingSleeper) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

// listingPage renders n rows and a pager whose links point at the given
// pages.
func listingPage(prefix string, n int, links ...int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<div class="row"><span class="name">%s-%d</span><span class="role">r</span></div>`, prefix, i)
	}
	if len(links) > 0 {
		b.WriteString(`<ul class="pagination">`)
		for _, p := range links {
			fmt.Fprintf(&b, `<li><a href="?page=%d">%d</a></li>`, p, p)
		}
		b.WriteString(`</ul>`)
	}
	return "<html><body>" + b.String() + "</body></html>"
}

type fixtureServer struct {
	*httptest.Server

	mu   sync.Mutex
	hits map[string]int
	lang []string
}

func (f *fixtureServer) hitCount(path string, page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path+"#"+strconv.Itoa(page)]
}

// newFixture serves pages through handle(path, page, hit) which returns a
// status and body; hit counts requests for that path and page, from 1.
func newFixture(t *testing.T, handle func(path string, page, hit int) (int, string)) *fixtureServer {
	t.Helper()
	f := &fixtureServer{hits: map[string]int{}}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		key := r.URL.Path + "#" + strconv.Itoa(page)

		f.mu.Lock()
		f.hits[key]++
		hit := f.hits[key]
		f.lang = append(f.lang, r.URL.Query().Get("lang"))
		f.mu.Unlock()

		status, body := handle(r.URL.Path, page, hit)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(f.Close)
	return f
}

func testCommon() siteconfig.Common {
	return siteconfig.Common{
		PageParam:         "page",
		ContainerSelector: ".row",
		Fields: siteconfig.Fields{
			{Name: "name", Selectors: siteconfig.SelectorList{"span.name"}},
			{Name: "role", Selectors: siteconfig.SelectorList{"span.role"}},
		},
	}
}

func simpleSite(name, baseURL, key string) siteconfig.SiteConfig {
	return siteconfig.SiteConfig{
		Name:   name,
		Common: testCommon(),
		Simple: &siteconfig.Simple{BaseURL: baseURL, OutputKey: key},
	}
}

func newScraper(srv *fixtureServer, sl Sleeper, opts Options) (*SiteScraper, *[]Event) {
	var (
		mu     sync.Mutex
		events []Event
	)
	s := &SiteScraper{
		Fetcher:   extracthtml.NewLoader(srv.Client(), 5*time.Second, ""),
		Extractor: &extracthtml.Extractor{},
		Sleeper:   sl,
		Events: func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
		Options: opts,
	}
	return s, &events
}

func itemNames(items []extracthtml.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		v, _ := it.Get("name")
		out = append(out, v)
	}
	return out
}

// TestScrape_FollowsPagerToLastPage verifies pages are fetched in order until
// the pager offers no later page, keeping the base query string.
func TestScrape_FollowsPagerToLastPage(t *testing.T) {
	t.Parallel()

	srv := newFixture(t, func(_ string, page, _ int) (int, string) {
		switch page {
		case 1:
			return 200, listingPage("p1", 2, 1, 2, 3)
		case 2:
			return 200, listingPage("p2", 2, 1, 2, 3)
		case 3:
			return 200, listingPage("p3", 1, 1, 2, 3)
		}
		return 200, listingPage("x", 0)
	})

	sl := &recordingSleeper{}
	s, events := newScraper(srv, sl, Options{PageDelay: 1500 * time.Millisecond, MaxAttempts: 3})
	tg := simpleSite("people", srv.URL+"/list?lang=en", "people").Expand()[0]

	items, err := s.Scrape(context.Background(), tg)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1-0", "p1-1", "p2-0", "p2-1", "p3-0"}, itemNames(items))
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond}, sl.delays())
	assert.Equal(t, 0, srv.hitCount("/list", 4))
	for _, l := range srv.lang {
		assert.Equal(t, "en", l)
	}

	var decisions []string
	for _, e := range *events {
		if e.Kind == EventDecision {
			decisions = append(decisions, e.Decision.Reason)
		}
	}
	assert.Equal(t, []string{extracthtml.ReasonNextLink, extracthtml.ReasonNextLink, extracthtml.ReasonNoNextLink}, decisions)

	last := (*events)[len(*events)-1]
	assert.Equal(t, EventSiteDone, last.Kind)
	assert.Equal(t, 5, last.Total)
}

// TestScrape_EmptyPageStops verifies a page without items ends the target
// even when the pager still links forward.
func TestScrape_EmptyPageStops(t *testing.T) {
	t.Parallel()

	srv := newFixture(t, func(_ string, page, _ int) (int, string) {
		if page == 1 {
			return 200, listingPage("a", 3, 2)
		}
		return 200, listingPage("b", 0, 3)
	})

	s, _ := newScraper(srv, &recordingSleeper{}, Options{MaxAttempts: 1})
	items, err := s.Scrape(context.Background(), simpleSite("s", srv.URL+"/", "s").Expand()[0])
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, 0, srv.hitCount("/", 3))
}

// TestScrape_RetriesThenSucceeds verifies a transient failure is retried with
// the configured backoff and does not end the target.
func TestScrape_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	srv := newFixture(t, func(_ string, page, hit int) (int, string) {
		if page == 2 && hit == 1 {
			return http.StatusBadGateway, "upstream"
		}
		if page == 1 {
			return 200, listingPage("a", 1, 2)
		}
		return 200, listingPage("b", 1, 1)
	})

	sl := &recordingSleeper{}
	s, events := newScraper(srv, sl, Options{PageDelay: time.Second, MaxAttempts: 3, RetryBackoff: 100 * time.Millisecond})

	items, err := s.Scrape(context.Background(), simpleSite("s", srv.URL+"/", "s").Expand()[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"a-0", "b-0"}, itemNames(items))
	assert.Equal(t, []time.Duration{time.Second, 100 * time.Millisecond}, sl.delays())
	assert.Equal(t, 2, srv.hitCount("/", 2))

	var retries int
	for _, e := range *events {
		if e.Kind == EventRetry {
			retries++
			assert.Equal(t, 2, e.Page)
			assert.Equal(t, 1, e.Attempt)
		}
	}
	assert.Equal(t, 1, retries)
}

// TestScrape_FetchErrorIsNotEndOfData verifies exhausted retries return the
// partial items together with a FetchError.
func TestScrape_FetchErrorIsNotEndOfData(t *testing.T) {
	t.Parallel()

	srv := newFixture(t, func(_ string, page, _ int) (int, string) {
		if page == 1 {
			return 200, listingPage("a", 2, 2)
		}
		return http.StatusInternalServerError, "down"
	})

	sl := &recordingSleeper{}
	s, events := newScraper(srv, sl, Options{MaxAttempts: 2, RetryBackoff: 10 * time.Millisecond})

	items, err := s.Scrape(context.Background(), simpleSite("s", srv.URL+"/", "s").Expand()[0])
	require.Error(t, err)
	assert.Len(t, items, 2)

	var fe *extracthtml.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusInternalServerError, fe.StatusCode)
	assert.Equal(t, "down", fe.Body)
	assert.Equal(t, 2, srv.hitCount("/", 2))

	last := (*events)[len(*events)-1]
	assert.Equal(t, EventFetchError, last.Kind)
	assert.Equal(t, 2, last.Total)
}

// TestScrape_CancelDuringDelay verifies cancellation in a page delay returns
// what was collected with the context error.
func TestScrape_CancelDuringDelay(t *testing.T) {
	t.Parallel()

	srv := newFixture(t, func(_ string, page, _ int) (int, string) {
		return 200, listingPage("p"+strconv.Itoa(page), 1, page+1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sl := &recordingSleeper{onSleep: func(int) error {
		cancel()
		return nil
	}}
	s, _ := newScraper(srv, sl, Options{PageDelay: time.Second, MaxAttempts: 3})

	items, err := s.Scrape(ctx, simpleSite("s", srv.URL+"/", "s").Expand()[0])
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"p1-0"}, itemNames(items))
	assert.Equal(t, 0, srv.hitCount("/", 2))
}

// TestMultiSiteScraper_Run verifies targets run in order with a site delay
// between them and that a failing target keeps the run going.
func TestMultiSiteScraper_Run(t *testing.T) {
	t.Parallel()

	srv := newFixture(t, func(path string, _ int, _ int) (int, string) {
		switch path {
		case "/alumni":
			return 200, listingPage("alum", 2)
		case "/d/dang":
			return 200, listingPage("dang", 1)
		case "/d/parsa":
			return http.StatusNotFound, "missing"
		}
		return 200, listingPage("other", 1)
	})

	schools := siteconfig.SiteConfig{
		Name:   "schools",
		Common: testCommon(),
		Templated: &siteconfig.Templated{
			BaseURLTemplate:   srv.URL + "/d/{district}",
			Districts:         []string{"dang", "parsa"},
			OutputKeyTemplate: "schools_{district}",
		},
	}

	sl := &recordingSleeper{}
	s, _ := newScraper(srv, sl, Options{PageDelay: time.Second, SiteDelay: 2 * time.Second, MaxAttempts: 1})

	rep, err := (&MultiSiteScraper{Site: s}).Run(context.Background(), []siteconfig.SiteConfig{
		simpleSite("alumni", srv.URL+"/alumni", "alumni"),
		schools,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Targets)
	assert.Equal(t, []string{"alum-0", "alum-1"}, itemNames(rep.Mapping["alumni"]))
	assert.Equal(t, []string{"dang-0"}, itemNames(rep.Mapping["schools_dang"]))

	parsa, ok := rep.Mapping["schools_parsa"]
	require.True(t, ok)
	assert.Empty(t, parsa)
	assert.NotNil(t, parsa)

	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "schools/parsa", rep.Failures[0].Target.Label())

	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sl.delays())

	keys, items := rep.Mapping.Counts()
	assert.Equal(t, 3, keys)
	assert.Equal(t, 3, items)
}

func TestMultiSiteScraper_CancelStopsRun(t *testing.T) {
	t.Parallel()

	srv := newFixture(t, func(string, int, int) (int, string) {
		return 200, listingPage("x", 1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sl := &recordingSleeper{onSleep: func(int) error {
		cancel()
		return nil
	}}
	s, _ := newScraper(srv, sl, Options{SiteDelay: time.Second, MaxAttempts: 1})

	rep, err := (&MultiSiteScraper{Site: s}).Run(ctx, []siteconfig.SiteConfig{
		simpleSite("a", srv.URL+"/a", "a"),
		simpleSite("b", srv.URL+"/b", "b"),
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, rep.Targets)
	assert.Contains(t, rep.Mapping, "a")
	assert.NotContains(t, rep.Mapping, "b")
}

func TestPageURL(t *testing.T) {
	t.Parallel()

	got, err := PageURL("https://x.test/list?lang=en", "page", 2)
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/list?lang=en&page=2", got)

	got, err = PageURL("https://x.test/list?page=9", "page", 1)
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/list?page=1", got)

	_, err = PageURL("://bad", "page", 1)
	assert.Error(t, err)
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(0), retryDelay(0, 3))
	assert.Equal(t, time.Second, retryDelay(time.Second, 1))
	assert.Equal(t, 4*time.Second, retryDelay(time.Second, 3))
	assert.Equal(t, maxRetryBackoff, retryDelay(time.Second, 40))
}

func TestTimerSleeper(t *testing.T) {
	t.Parallel()

	s := NewTimerSleeper(time.Millisecond)
	require.NoError(t, s.Sleep(context.Background(), 0))
	require.NoError(t, s.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.ErrorIs(t, s.Sleep(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
