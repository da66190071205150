package siteconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownSite is returned (wrapped) by Registry.Resolve for names that are
// not registered.
var ErrUnknownSite = errors.New("unknown site")

// Registry is an immutable set of named site configurations.
type Registry struct {
	sites map[string]SiteConfig
}

// NewRegistry validates cfgs and indexes them by name.
func NewRegistry(cfgs ...SiteConfig) (*Registry, error) {
	r := &Registry{sites: make(map[string]SiteConfig, len(cfgs))}
	for _, c := range cfgs {
		if c.Name == "" {
			return nil, fmt.Errorf("site with empty name")
		}
		if _, dup := r.sites[c.Name]; dup {
			return nil, fmt.Errorf("site %q registered twice", c.Name)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		r.sites[c.Name] = c
	}
	return r, nil
}

// Names returns all site names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.sites))
	for n := range r.sites {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Get returns the named site.
func (r *Registry) Get(name string) (SiteConfig, bool) {
	c, ok := r.sites[name]
	return c, ok
}

// Resolve returns the configs for names in the requested order. An empty
// names list selects every site. Any unknown name fails the whole call.
func (r *Registry) Resolve(names []string) ([]SiteConfig, error) {
	found, unknown := r.ResolveLenient(names)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %v (known: %v)", ErrUnknownSite, unknown, r.Names())
	}
	return found, nil
}

// ResolveLenient is Resolve without the failure: unknown names are returned
// separately so the caller can log and skip them.
func (r *Registry) ResolveLenient(names []string) (found []SiteConfig, unknown []string) {
	if len(names) == 0 {
		names = r.Names()
	}
	for _, n := range names {
		c, ok := r.sites[n]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		found = append(found, c)
	}
	return found, unknown
}

// yamlSite is the on-disk shape of one site; the variant is decided by which
// base URL key is present.
type yamlSite struct {
	Common `yaml:",inline"`

	BaseURL   string `yaml:"base_url"`
	OutputKey string `yaml:"output_key"`

	BaseURLTemplate   string   `yaml:"base_url_template"`
	Districts         []string `yaml:"districts"`
	OutputKeyTemplate string   `yaml:"output_key_template"`
}

func (y yamlSite) toConfig(name string) SiteConfig {
	c := SiteConfig{Name: name, Common: y.Common}
	if y.BaseURL != "" || y.OutputKey != "" {
		c.Simple = &Simple{BaseURL: y.BaseURL, OutputKey: y.OutputKey}
	}
	if y.BaseURLTemplate != "" || len(y.Districts) > 0 || y.OutputKeyTemplate != "" {
		c.Templated = &Templated{
			BaseURLTemplate:   y.BaseURLTemplate,
			Districts:         y.Districts,
			OutputKeyTemplate: y.OutputKeyTemplate,
		}
	}
	return c
}

type yamlFile struct {
	Sites map[string]yamlSite `yaml:"sites"`
}

// Decode reads a YAML site registry:
//
//	sites:
//	  alumni:
//	    base_url: https://example.org/alumni/
//	    output_key: alumni
//	    page_param: page
//	    container_selector: .listingRow
//	    fields:
//	      name: .nameSection a.name
//	      profile_url: [.nameSection a.name, .viewProfileBtn]
func Decode(r io.Reader) (*Registry, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read sites: %w", err)
	}

	var f yamlFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode sites: %w", err)
	}
	if len(f.Sites) == 0 {
		return nil, fmt.Errorf("decode sites: no sites defined")
	}

	cfgs := make([]SiteConfig, 0, len(f.Sites))
	for name, y := range f.Sites {
		cfgs = append(cfgs, y.toConfig(name))
	}
	// Deterministic error reporting.
	sort.Slice(cfgs, func(i, j int) bool { return cfgs[i].Name < cfgs[j].Name })
	return NewRegistry(cfgs...)
}

// LoadFile reads a registry from a YAML file. The result replaces the
// built-in sites entirely.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sites file: %w", err)
	}
	defer f.Close()

	reg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Load returns the registry from path, or the built-in one when path is
// empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Builtin(), nil
	}
	return LoadFile(path)
}
