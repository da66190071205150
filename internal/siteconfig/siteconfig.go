// Package siteconfig describes scrape targets.
//
// A SiteConfig is a tagged variant: exactly one of Simple or Templated is set.
// Expand turns either shape into a uniform list of concrete Targets, one per
// base URL, which is all the scraper ever sees.
package siteconfig

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// DistrictPlaceholder is substituted in Templated URL and key templates.
const DistrictPlaceholder = "{district}"

// DefaultPaginationSelector is used when a site does not name its pager.
const DefaultPaginationSelector = "ul.pagination"

// SelectorList is an ordered list of CSS selector alternatives. The first
// alternative that yields a value wins.
//
// In YAML it may be written as a sequence or as a single comma-separated
// string (".a, .b").
type SelectorList []string

// ParseSelectorList splits a comma-separated selector string, trimming each
// part and dropping empty ones.
func ParseSelectorList(s string) SelectorList {
	var out SelectorList
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (l *SelectorList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*l = ParseSelectorList(n.Value)
		return nil
	case yaml.SequenceNode:
		var raw []string
		if err := n.Decode(&raw); err != nil {
			return err
		}
		out := make(SelectorList, 0, len(raw))
		for _, s := range raw {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: selectors must be a string or a list", n.Line)
	}
}

// Field maps one output field to its selector alternatives.
type Field struct {
	Name      string       `yaml:"name"`
	Selectors SelectorList `yaml:"selectors"`
}

// Fields keeps declaration order. In YAML it is either a list of
// {name, selectors} objects or a mapping of name -> selectors, read in
// document order.
type Fields []Field

func (f *Fields) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.SequenceNode:
		var raw []Field
		if err := n.Decode(&raw); err != nil {
			return err
		}
		*f = raw
		return nil
	case yaml.MappingNode:
		out := make(Fields, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			var sel SelectorList
			if err := n.Content[i+1].Decode(&sel); err != nil {
				return err
			}
			out = append(out, Field{Name: n.Content[i].Value, Selectors: sel})
		}
		*f = out
		return nil
	default:
		return fmt.Errorf("line %d: fields must be a list or a mapping", n.Line)
	}
}

// Common holds the settings shared by both variants.
type Common struct {
	PageParam          string `yaml:"page_param"`
	ContainerSelector  string `yaml:"container_selector"`
	PaginationSelector string `yaml:"pagination_selector"`
	Fields             Fields `yaml:"fields"`

	// RelativeURLFields lists fields resolved against the base URL. Nil means
	// "use the caller's default".
	RelativeURLFields []string `yaml:"relative_url_fields"`
}

// Pager returns the pagination selector, falling back to the default.
func (c Common) Pager() string {
	if s := strings.TrimSpace(c.PaginationSelector); s != "" {
		return s
	}
	return DefaultPaginationSelector
}

// Simple is a single listing.
type Simple struct {
	BaseURL   string `yaml:"base_url"`
	OutputKey string `yaml:"output_key"`
}

// Templated is one listing per district.
type Templated struct {
	BaseURLTemplate   string   `yaml:"base_url_template"`
	Districts         []string `yaml:"districts"`
	OutputKeyTemplate string   `yaml:"output_key_template"`
}

// SiteConfig is a named scrape definition.
type SiteConfig struct {
	Name string
	Common

	Simple    *Simple
	Templated *Templated
}

// Target is a concrete, fetchable listing produced by Expand.
type Target struct {
	Site      string // registry name
	District  string // empty for Simple sites
	BaseURL   string
	OutputKey string
	Common
}

// Label identifies the target in logs and metrics.
func (t Target) Label() string {
	if t.District == "" {
		return t.Site
	}
	return t.Site + "/" + t.District
}

// Expand returns one Target per concrete listing, in declaration order.
func (c SiteConfig) Expand() []Target {
	switch {
	case c.Simple != nil:
		return []Target{{
			Site:      c.Name,
			BaseURL:   c.Simple.BaseURL,
			OutputKey: c.Simple.OutputKey,
			Common:    c.Common,
		}}
	case c.Templated != nil:
		out := make([]Target, 0, len(c.Templated.Districts))
		for _, d := range c.Templated.Districts {
			out = append(out, Target{
				Site:      c.Name,
				District:  d,
				BaseURL:   strings.ReplaceAll(c.Templated.BaseURLTemplate, DistrictPlaceholder, d),
				OutputKey: strings.ReplaceAll(c.Templated.OutputKeyTemplate, DistrictPlaceholder, d),
				Common:    c.Common,
			})
		}
		return out
	default:
		return nil
	}
}

// ProbeTarget is the listing used by the single-site diagnostic: the only
// target of a Simple site, the second district of a Templated one (the
// first district when there is only one).
func (c SiteConfig) ProbeTarget() (Target, error) {
	targets := c.Expand()
	switch {
	case len(targets) == 0:
		return Target{}, fmt.Errorf("site %q has no targets", c.Name)
	case c.Templated != nil && len(targets) > 1:
		return targets[1], nil
	default:
		return targets[0], nil
	}
}

// Validate reports the first structural problem with c.
func (c SiteConfig) Validate() error {
	if (c.Simple == nil) == (c.Templated == nil) {
		return fmt.Errorf("site %q: exactly one of base_url or base_url_template must be set", c.Name)
	}
	if strings.TrimSpace(c.PageParam) == "" {
		return fmt.Errorf("site %q: page_param is required", c.Name)
	}
	if err := checkSelector(c.ContainerSelector); err != nil {
		return fmt.Errorf("site %q: container_selector: %w", c.Name, err)
	}
	if err := checkSelector(c.Pager()); err != nil {
		return fmt.Errorf("site %q: pagination_selector: %w", c.Name, err)
	}
	if len(c.Fields) == 0 {
		return fmt.Errorf("site %q: at least one field is required", c.Name)
	}

	seen := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		if f.Name == "" {
			return fmt.Errorf("site %q: field with empty name", c.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("site %q: duplicate field %q", c.Name, f.Name)
		}
		seen[f.Name] = true
		if len(f.Selectors) == 0 {
			return fmt.Errorf("site %q: field %q has no selectors", c.Name, f.Name)
		}
		for _, s := range f.Selectors {
			if err := checkSelector(s); err != nil {
				return fmt.Errorf("site %q: field %q: %w", c.Name, f.Name, err)
			}
		}
	}

	if c.Simple != nil {
		if err := checkBaseURL(c.Simple.BaseURL); err != nil {
			return fmt.Errorf("site %q: base_url: %w", c.Name, err)
		}
		if c.Simple.OutputKey == "" {
			return fmt.Errorf("site %q: output_key is required", c.Name)
		}
		return nil
	}

	t := c.Templated
	if !strings.Contains(t.BaseURLTemplate, DistrictPlaceholder) {
		return fmt.Errorf("site %q: base_url_template must contain %s", c.Name, DistrictPlaceholder)
	}
	if !strings.Contains(t.OutputKeyTemplate, DistrictPlaceholder) {
		return fmt.Errorf("site %q: output_key_template must contain %s", c.Name, DistrictPlaceholder)
	}
	if len(t.Districts) == 0 {
		return fmt.Errorf("site %q: districts must not be empty", c.Name)
	}
	districts := make(map[string]bool, len(t.Districts))
	for _, d := range t.Districts {
		if d == "" || districts[d] {
			return fmt.Errorf("site %q: district %q is empty or repeated", c.Name, d)
		}
		districts[d] = true
	}
	return checkBaseURL(strings.ReplaceAll(t.BaseURLTemplate, DistrictPlaceholder, t.Districts[0]))
}

func checkSelector(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("empty selector")
	}
	if _, err := cascadia.Compile(s); err != nil {
		return fmt.Errorf("invalid selector %q: %w", s, err)
	}
	return nil
}

func checkBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", raw)
	}
	return nil
}
