// Command pipeline runs scrape, structured, unstructured and index stages in
// order, skipping stages whose artifacts already exist unless --rebuild is
// given. "pipeline search" queries the built index.
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
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ragpipe/internal/bedrock"
	"ragpipe/internal/config"
	"ragpipe/internal/metrics"
	"ragpipe/internal/metrics/datadog"
	"ragpipe/internal/pdftext"
	"ragpipe/internal/pipeline"
	"ragpipe/internal/scrape"

	// register all backends with the storage factory; the config picks one.
	_ "ragpipe/internal/storage/all"
)

// backendCloser is a metrics backend the command must close on exit.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	HTTPClient *http.Client
	Sleeper    scrape.Sleeper
	Now        func() time.Time
	Pages      pdftext.Loader

	// NewInvoker builds the Bedrock runtime client for region.
	NewInvoker func(ctx context.Context, region string) (bedrock.Invoker, error)

	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
}

type options struct {
	configPath     string
	rebuild        bool
	scrapeOnly     bool
	preprocessOnly bool
	indexOnly      bool
	metricsBackend string
}

func (o options) mode() pipeline.Mode {
	switch {
	case o.scrapeOnly:
		return pipeline.ModeScrapeOnly
	case o.preprocessOnly:
		return pipeline.ModePreprocessOnly
	case o.indexOnly:
		return pipeline.ModeIndexOnly
	default:
		return pipeline.ModeFull
	}
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageErr(format string, a ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, a...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], deps{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		HTTPClient: &http.Client{},
		Now:        time.Now,
		Pages:      pdftext.Reader{},
		NewInvoker: func(ctx context.Context, region string) (bedrock.Invoker, error) {
			c, err := bedrock.NewClient(ctx, region)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
	})
	os.Exit(code)
}

// run executes the command and returns an exit code.
//
// Exit codes:
//   - 0: every executed stage succeeded (or was skipped).
//   - 1: a stage failed, or setup failed at runtime.
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
	if d.Pages == nil {
		d.Pages = pdftext.Reader{}
	}

	cmd := newRootCmd(d)
	cmd.SetArgs(args)
	cmd.SetOut(d.Stdout)
	cmd.SetErr(d.Stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(d.Stderr, "error:", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 2
}

func newRootCmd(d deps) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "pipeline",
		Short:         "Run the scrape, preprocess and index stages",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), o, d)
		},
	}
	cmd.PersistentFlags().StringVar(&o.configPath, "config", "ragpipe.yaml", "YAML config path (missing file means defaults)")

	f := cmd.Flags()
	f.BoolVar(&o.rebuild, "rebuild", false, "delete every artifact and run all selected stages")
	f.BoolVar(&o.scrapeOnly, "scrape-only", false, "run only the scrape stage")
	f.BoolVar(&o.preprocessOnly, "preprocess-only", false, "run only the structured and unstructured stages")
	f.BoolVar(&o.indexOnly, "index-only", false, "run only the index stage")
	f.StringVar(&o.metricsBackend, "metrics-backend", "", "metrics backend: none or datadog (overrides METRICS_BACKEND and config)")
	cmd.MarkFlagsMutuallyExclusive("scrape-only", "preprocess-only", "index-only")

	cmd.AddCommand(newSearchCmd(&o, d))
	return cmd
}

// loadConfig loads and validates the config, printing every issue.
func loadConfig(path string, stderr io.Writer) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, usageErr("%v", err)
	}
	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		return config.Config{}, usageErr("configuration is invalid: %s", path)
	}
	return cfg, nil
}

func runPipeline(ctx context.Context, o options, d deps) error {
	logger := log.New(d.Stderr, "", log.LstdFlags)

	cfg, err := loadConfig(o.configPath, d.Stderr)
	if err != nil {
		return err
	}

	closeMetrics, err := setupMetrics(ctx, o, cfg, d, logger)
	if err != nil {
		return err
	}
	defer closeMetrics()

	b := &stageBuilder{cfg: cfg, d: d, logger: logger}
	defs, err := b.defs()
	if err != nil {
		return usageErr("%v", err)
	}

	orch := &pipeline.Orchestrator{
		Stages:  defs,
		Dirs:    cfg.Paths.Dirs(),
		PDFDirs: []string{cfg.Paths.StructuredDir, cfg.Paths.UnstructuredDir},
		Runner:  pipeline.StageRunner{Timeout: cfg.StageTimeout},
		Logger:  logger,
	}

	mode := o.mode()
	logger.Printf("pipeline: mode=%s rebuild=%t storage=%s json_dir=%s", mode, o.rebuild, cfg.Storage.Kind, cfg.Paths.JSONDir)
	rep, err := orch.Run(ctx, pipeline.Options{Mode: mode, Rebuild: o.rebuild})
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	printReport(d.Stdout, rep)
	if err := rep.Err(); err != nil {
		return &exitError{code: rep.ExitCode(), err: err}
	}
	return nil
}

// setupMetrics selects the metrics backend: flag, then METRICS_BACKEND, then
// config. The returned func flushes and closes it.
func setupMetrics(ctx context.Context, o options, cfg config.Config, d deps, logger *log.Logger) (func(), error) {
	nop := func() {}

	backendName := o.metricsBackend
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	if backendName == "" {
		backendName = cfg.Metrics.Backend
	}

	switch backendName {
	case "", "none":
		return nop, nil

	case "datadog":
		if d.BackendFactory == nil {
			return nop, usageErr("datadog backend unavailable")
		}
		tags := append(append([]string(nil), cfg.Metrics.Tags...), datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))...)
		b, err := d.BackendFactory(ctx, cfg.Metrics.JobName, tags, cfg.Metrics.FlushEvery)
		if err != nil {
			logger.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return nop, nil
		}
		logger.Printf("metrics: backend=%s job_name=%s tags=%v", backendName, cfg.Metrics.JobName, tags)
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logger.Printf("metrics: datadog close/flush error: %v", err)
			}
			metrics.SetBackend(nil)
		}, nil

	default:
		return nop, usageErr("unknown metrics backend %q (want none or datadog)", backendName)
	}
}

func printReport(w io.Writer, rep pipeline.Report) {
	for _, r := range rep.Results {
		line := fmt.Sprintf("%-13s %-9s %s", r.Stage, r.Status, r.Duration.Truncate(time.Millisecond))
		if r.Err != nil {
			msg, _, _ := strings.Cut(r.Err.Error(), "\n")
			line += "  " + msg
		}
		fmt.Fprintln(w, line)
	}
}
