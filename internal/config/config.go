// Package config loads the ragpipe YAML configuration.
//
// Every field has a default, so an absent file (or an empty one) yields a
// runnable configuration. String values that name paths, DSNs or regions are
// passed through os.ExpandEnv after decoding.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Artifact file names under Paths.JSONDir.
const (
	ScrapedFile      = "scraped_data.json"
	StructuredFile   = "structured_data.json"
	UnstructuredFile = "unstructured_chunks.json"
	CombinedFile     = "combined_data.json"
)

// Config is the root configuration document.
type Config struct {
	Paths    Paths    `yaml:"paths"`
	Scrape   Scrape   `yaml:"scrape"`
	Chunking Chunking `yaml:"chunking"`
	Bedrock  Bedrock  `yaml:"bedrock"`
	Storage  Storage  `yaml:"storage"`
	Metrics  Metrics  `yaml:"metrics"`

	// StageTimeout bounds a single pipeline stage. Zero disables the limit.
	StageTimeout time.Duration `yaml:"stage_timeout"`
}

// Paths are the input and output directories of the pipeline.
type Paths struct {
	StructuredDir   string `yaml:"structured_dir"`
	UnstructuredDir string `yaml:"unstructured_dir"`
	JSONDir         string `yaml:"json_dir"`
	VectorDir       string `yaml:"vector_dir"`
}

func (p Paths) Scraped() string      { return filepath.Join(p.JSONDir, ScrapedFile) }
func (p Paths) Structured() string   { return filepath.Join(p.JSONDir, StructuredFile) }
func (p Paths) Unstructured() string { return filepath.Join(p.JSONDir, UnstructuredFile) }
func (p Paths) Combined() string     { return filepath.Join(p.JSONDir, CombinedFile) }

// Dirs lists every directory the pipeline expects to exist.
func (p Paths) Dirs() []string {
	return []string{p.UnstructuredDir, p.StructuredDir, p.JSONDir, p.VectorDir}
}

// Scrape controls fetching politeness and retry behaviour.
type Scrape struct {
	PageDelay    time.Duration `yaml:"page_delay"`
	SiteDelay    time.Duration `yaml:"site_delay"`
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// RelativeURLFields is used for sites that do not declare their own set.
	RelativeURLFields []string `yaml:"relative_url_fields"`

	// SitesFile, when set, replaces the built-in site registry.
	SitesFile string `yaml:"sites_file"`
}

// Chunking configures the unstructured text splitter.
type Chunking struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// Bedrock configures the AWS Bedrock collaborators.
type Bedrock struct {
	Region          string `yaml:"region"`
	ExtractionModel string `yaml:"extraction_model"`
	EmbeddingModel  string `yaml:"embedding_model"`
}

// Storage selects the vector repository backend.
type Storage struct {
	Kind string `yaml:"kind"` // sqlite | postgres | mssql
	DSN  string `yaml:"dsn"`
}

// DSNFor returns the configured DSN, or the default sqlite file inside
// vectorDir when none is set.
func (s Storage) DSNFor(vectorDir string) string {
	if s.DSN != "" {
		return s.DSN
	}
	if s.Kind == "" || s.Kind == "sqlite" {
		return filepath.Join(vectorDir, "index.db")
	}
	return ""
}

// Metrics selects and configures the metrics backend.
type Metrics struct {
	Backend    string        `yaml:"backend"` // none | datadog
	JobName    string        `yaml:"job_name"`
	Tags       []string      `yaml:"tags"`
	FlushEvery time.Duration `yaml:"flush_every"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Paths: Paths{
			StructuredDir:   "data/structured",
			UnstructuredDir: "data/unstructured",
			JSONDir:         "public/json",
			VectorDir:       "public/vector-store",
		},
		Scrape: Scrape{
			PageDelay:         1500 * time.Millisecond,
			SiteDelay:         2 * time.Second,
			Timeout:           15 * time.Second,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			MaxAttempts:       3,
			RetryBackoff:      2 * time.Second,
			RelativeURLFields: []string{"profile_url", "url"},
		},
		Chunking: Chunking{Size: 1000, Overlap: 200},
		Bedrock: Bedrock{
			ExtractionModel: "amazon.nova-lite-v1:0",
			EmbeddingModel:  "amazon.titan-embed-text-v2:0",
		},
		Storage: Storage{Kind: "sqlite"},
		Metrics: Metrics{
			Backend:    "none",
			JobName:    "ragpipe",
			FlushEvery: time.Minute,
		},
	}
}

// Load reads the YAML file at path on top of Default(). An empty path or a
// missing file returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses a YAML document on top of Default(). Unknown keys are
// rejected so typos surface early.
func Decode(r io.Reader) (Config, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("read: %w", err)
	}

	cfg := Default()
	if len(bytes.TrimSpace(b)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode yaml: %w", err)
		}
	}
	cfg.expandEnv()
	return cfg, nil
}

func (c *Config) expandEnv() {
	c.Paths.StructuredDir = os.ExpandEnv(c.Paths.StructuredDir)
	c.Paths.UnstructuredDir = os.ExpandEnv(c.Paths.UnstructuredDir)
	c.Paths.JSONDir = os.ExpandEnv(c.Paths.JSONDir)
	c.Paths.VectorDir = os.ExpandEnv(c.Paths.VectorDir)
	c.Scrape.SitesFile = os.ExpandEnv(c.Scrape.SitesFile)
	c.Bedrock.Region = os.ExpandEnv(c.Bedrock.Region)
	c.Storage.DSN = os.ExpandEnv(c.Storage.DSN)
}
