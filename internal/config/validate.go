package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path uses the YAML key path
// (e.g. "scrape.max_attempts").
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

var storageKinds = map[string]bool{"sqlite": true, "postgres": true, "mssql": true}

// Validate checks cfg and returns every issue found. An empty result means the
// configuration is usable.
func Validate(cfg Config) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, a ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	for path, v := range map[string]string{
		"paths.structured_dir":   cfg.Paths.StructuredDir,
		"paths.unstructured_dir": cfg.Paths.UnstructuredDir,
		"paths.json_dir":         cfg.Paths.JSONDir,
		"paths.vector_dir":       cfg.Paths.VectorDir,
	} {
		if strings.TrimSpace(v) == "" {
			add(SeverityError, path, "must not be empty")
		}
	}

	s := cfg.Scrape
	if s.PageDelay < 0 {
		add(SeverityError, "scrape.page_delay", "must be >= 0, got %s", s.PageDelay)
	}
	if s.SiteDelay < 0 {
		add(SeverityError, "scrape.site_delay", "must be >= 0, got %s", s.SiteDelay)
	}
	if s.Timeout <= 0 {
		add(SeverityError, "scrape.timeout", "must be > 0, got %s", s.Timeout)
	}
	if s.MaxAttempts < 1 {
		add(SeverityError, "scrape.max_attempts", "must be >= 1, got %d", s.MaxAttempts)
	}
	if s.RetryBackoff < 0 {
		add(SeverityError, "scrape.retry_backoff", "must be >= 0, got %s", s.RetryBackoff)
	}
	if s.PageDelay == 0 {
		add(SeverityWarning, "scrape.page_delay", "zero delay between pages hammers the target site")
	}
	if s.SitesFile != "" {
		if _, err := os.Stat(s.SitesFile); err != nil {
			add(SeverityError, "scrape.sites_file", "%v", err)
		}
	}

	c := cfg.Chunking
	if c.Size <= 0 {
		add(SeverityError, "chunking.size", "must be > 0, got %d", c.Size)
	}
	if c.Overlap < 0 || (c.Size > 0 && c.Overlap >= c.Size) {
		add(SeverityError, "chunking.overlap", "must be in [0, size), got %d", c.Overlap)
	}

	if cfg.Bedrock.ExtractionModel == "" {
		add(SeverityError, "bedrock.extraction_model", "must not be empty")
	}
	if cfg.Bedrock.EmbeddingModel == "" {
		add(SeverityError, "bedrock.embedding_model", "must not be empty")
	}
	if cfg.Bedrock.Region == "" && os.Getenv("AWS_REGION") == "" && os.Getenv("AWS_DEFAULT_REGION") == "" {
		add(SeverityWarning, "bedrock.region", "not set; relying on the shared AWS config profile")
	}

	if !storageKinds[cfg.Storage.Kind] {
		add(SeverityError, "storage.kind", "unsupported kind %q (want sqlite, postgres or mssql)", cfg.Storage.Kind)
	} else if cfg.Storage.Kind != "sqlite" && cfg.Storage.DSN == "" {
		add(SeverityError, "storage.dsn", "required for kind %q", cfg.Storage.Kind)
	}

	switch cfg.Metrics.Backend {
	case "", "none", "datadog":
	default:
		add(SeverityError, "metrics.backend", "unknown backend %q (want none or datadog)", cfg.Metrics.Backend)
	}
	if cfg.Metrics.FlushEvery < 0 {
		add(SeverityError, "metrics.flush_every", "must be >= 0, got %s", cfg.Metrics.FlushEvery)
	}

	if cfg.StageTimeout < 0 {
		add(SeverityError, "stage_timeout", "must be >= 0, got %s", cfg.StageTimeout)
	}

	// The paths map iterates randomly; keep output stable.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
