// Command scraper scrapes the configured listing sites into the scraped-data
// artifact, or runs a one-page pagination diagnostic with --test.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"ragpipe/internal/config"
	"ragpipe/internal/extracthtml"
	"ragpipe/internal/resultstore"
	"ragpipe/internal/scrape"
	"ragpipe/internal/siteconfig"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	stopStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	goStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// deps are the seams tests replace.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	HTTPClient *http.Client
	Sleeper    scrape.Sleeper
	Now        func() time.Time
}

type options struct {
	configPath string
	sites      []string
	scrapeAll  bool
	test       string
	dump       string
	dumpText   bool
	out        string
}

// exitError carries an exit code out of a cobra RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageErr(format string, a ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, a...)}
}

func failErr(err error) error {
	return &exitError{code: 1, err: err}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], deps{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		HTTPClient: &http.Client{},
		Now:        time.Now,
	})
	os.Exit(code)
}

// run executes the command and returns an exit code.
//
// Exit codes:
//   - 0: success.
//   - 1: a fetch failed (any target in a scrape, the page in --test) or the
//     artifact could not be written.
//   - 2: usage or configuration error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	cmd := newRootCmd(d)
	cmd.SetArgs(args)
	cmd.SetOut(d.Stdout)
	cmd.SetErr(d.Stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(d.Stderr, errStyle.Render("error: "+err.Error()))
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// cobra flag and argument errors
	return 2
}

func newRootCmd(d deps) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "scraper",
		Short:         "Scrape paginated listing sites into scraped_data.json",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && !cmd.Flags().Changed("sites") {
				return fmt.Errorf("unexpected arguments %v (site names follow --sites)", args)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// "--sites a b c": pflag binds a, the rest arrive as args.
			o.sites = append(o.sites, args...)
			return execute(cmd.Context(), o, d)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "ragpipe.yaml", "YAML config path (missing file means defaults)")
	f.StringSliceVar(&o.sites, "sites", nil, "sites to scrape: --sites a b, --sites a,b or repeated (default: all)")
	f.BoolVar(&o.scrapeAll, "scrape-all", false, "scrape every known site")
	f.StringVar(&o.test, "test", "", "fetch page 1 of one site and print its pagination verdict")
	f.StringVar(&o.dump, "dump", "", "with --test, print the elements matching this selector")
	f.BoolVar(&o.dumpText, "dump-text", false, "with --dump, print text instead of HTML")
	f.StringVar(&o.out, "out", "", "artifact path (default: <json_dir>/scraped_data.json)")
	cmd.MarkFlagsMutuallyExclusive("test", "scrape-all")
	cmd.MarkFlagsMutuallyExclusive("test", "sites")
	return cmd
}

func execute(ctx context.Context, o options, d deps) error {
	logger := log.New(d.Stderr, "", log.LstdFlags)

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return usageErr("%v", err)
	}
	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintln(d.Stderr, iss.String())
	}
	if config.HasErrors(issues) {
		return usageErr("configuration is invalid: %s", o.configPath)
	}

	reg, err := siteconfig.Load(cfg.Scrape.SitesFile)
	if err != nil {
		return usageErr("%v", err)
	}

	loader := extracthtml.NewLoader(d.HTTPClient, cfg.Scrape.Timeout, cfg.Scrape.UserAgent)
	extractor := &extracthtml.Extractor{Now: d.Now, RelativeURLFields: cfg.Scrape.RelativeURLFields}

	if o.test != "" {
		return diagnose(ctx, d.Stdout, reg, o, loader, extractor)
	}
	if o.dump != "" {
		return usageErr("--dump requires --test")
	}

	names := o.sites
	if o.scrapeAll {
		names = nil
	}
	sites, unknown := reg.ResolveLenient(names)
	for _, n := range unknown {
		logger.Printf("site=%s status=skipped reason=unknown_site known=%v", n, reg.Names())
	}
	if len(sites) == 0 {
		return usageErr("no known sites selected")
	}

	sleeper := d.Sleeper
	if sleeper == nil {
		sleeper = scrape.NewTimerSleeper(0)
	}
	out := o.out
	if out == "" {
		out = cfg.Paths.Scraped()
	}
	stage := &scrape.Stage{
		Scraper: &scrape.MultiSiteScraper{Site: &scrape.SiteScraper{
			Fetcher:   loader,
			Extractor: extractor,
			Sleeper:   sleeper,
			Events:    logEvents(logger),
			Options: scrape.Options{
				PageDelay:    cfg.Scrape.PageDelay,
				SiteDelay:    cfg.Scrape.SiteDelay,
				MaxAttempts:  cfg.Scrape.MaxAttempts,
				RetryBackoff: cfg.Scrape.RetryBackoff,
			},
		}},
		Sites:  sites,
		Store:  resultstore.New(out),
		Logger: logger,
	}

	start := time.Now()
	rep, err := stage.Scrape(ctx)
	if err != nil {
		return failErr(err)
	}
	printSummary(d.Stdout, rep.Mapping)
	logger.Printf("stage=scrape ok targets=%d failures=%d duration=%s",
		rep.Targets, len(rep.Failures), time.Since(start).Truncate(time.Millisecond))

	if len(rep.Failures) > 0 {
		return failErr(fmt.Errorf("%d of %d targets failed", len(rep.Failures), rep.Targets))
	}
	return nil
}

// diagnose fetches page 1 of the site's probe target and prints the pager
// state and the verdict. Nothing is written.
func diagnose(ctx context.Context, w io.Writer, reg *siteconfig.Registry, o options, loader *extracthtml.Loader, ex *extracthtml.Extractor) error {
	sites, err := reg.Resolve([]string{o.test})
	if err != nil {
		return usageErr("%v", err)
	}
	target, err := sites[0].ProbeTarget()
	if err != nil {
		return usageErr("%v", err)
	}
	pageURL, err := scrape.PageURL(target.BaseURL, target.PageParam, 1)
	if err != nil {
		return usageErr("%v", err)
	}

	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Testing:"), pageURL)
	doc, err := loader.Fetch(ctx, target.Label(), pageURL)
	if err != nil {
		return failErr(err)
	}
	res := ex.ExtractPage(doc, target)
	dec := extracthtml.Analyze(doc, target, 1, len(res.Items))

	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Status:"), dec.Status)
	fmt.Fprintf(w, "%s %d of %d containers\n", labelStyle.Render("Items:"), len(res.Items), res.Containers)
	if dec.Continue {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Last page:"), goStyle.Render("no, continues ("+dec.Reason+")"))
	} else {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Last page:"), stopStyle.Render("yes, stops ("+dec.Reason+")"))
	}

	if o.dump != "" {
		fmt.Fprintln(w)
		n, err := extracthtml.DumpSelection(w, doc, o.dump, o.dumpText)
		if err != nil {
			return failErr(err)
		}
		fmt.Fprintf(w, "%s %d\n", labelStyle.Render("Matches:"), n)
	}
	return nil
}

func printSummary(w io.Writer, m resultstore.Mapping) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := 0
	for _, k := range keys {
		fmt.Fprintf(w, "%-28s %d\n", k, len(m[k]))
		total += len(m[k])
	}
	fmt.Fprintf(w, "%s %d items scraped\n", labelStyle.Render("Total:"), total)
}

func logEvents(logger *log.Logger) scrape.EventFunc {
	return func(e scrape.Event) {
		switch e.Kind {
		case scrape.EventPageFetched:
			logger.Printf("site=%s page=%d items=%d total=%d", e.Site, e.Page, e.Items, e.Total)
		case scrape.EventDecision:
			logger.Printf("site=%s page=%d decision=%s reason=%s status=%q", e.Site, e.Page, e.Decision.Verdict(), e.Decision.Reason, e.Decision.Status)
		case scrape.EventRetry:
			logger.Printf("site=%s page=%d attempt=%d status=retry err=%v", e.Site, e.Page, e.Attempt, e.Err)
		case scrape.EventFetchError:
			logger.Printf("site=%s page=%d status=error err=%v", e.Site, e.Page, e.Err)
		case scrape.EventSiteDone:
			logger.Printf("site=%s ok key=%s items=%d", e.Site, e.OutputKey, e.Total)
		}
	}
}
