package extracthtml

import (
	"net/url"
	"strings"
	"time"

	"ragpipe/internal/siteconfig"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// DefaultRelativeURLFields are resolved against the base URL when a site
// does not declare its own set.
var DefaultRelativeURLFields = []string{"profile_url", "url"}

// Extractor turns listing containers into Items.
type Extractor struct {
	// Now stamps scraped_at. Defaults to time.Now.
	Now func() time.Time

	// RelativeURLFields applies to targets whose RelativeURLFields is nil.
	// Nil means DefaultRelativeURLFields.
	RelativeURLFields []string
}

// ExtractPage applies t's field selectors to every element matched by the
// container selector and returns the kept items in DOM order.
//
// Items with at most one populated field (source and scraped_at aside) are
// dropped.
func (e *Extractor) ExtractPage(doc *goquery.Document, t siteconfig.Target) PageResult {
	now := time.Now
	if e != nil && e.Now != nil {
		now = e.Now
	}
	relative := e.relativeFields(t)
	base, _ := url.Parse(t.BaseURL)

	var res PageResult
	doc.Find(t.ContainerSelector).Each(func(_ int, rec *goquery.Selection) {
		res.Containers++

		it := extractItem(rec, t.Fields, relative, base)
		if it.Populated() <= 1 {
			return
		}
		it.Source = SourceWebScraped
		it.ScrapedAt = now().Format(ScrapedAtLayout)
		res.Items = append(res.Items, it)
	})
	return res
}

func (e *Extractor) relativeFields(t siteconfig.Target) map[string]bool {
	names := t.RelativeURLFields
	if names == nil && e != nil {
		names = e.RelativeURLFields
	}
	if names == nil {
		names = DefaultRelativeURLFields
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// extractItem resolves each field against root. For every field the selector
// alternatives are tried in order; the first element that yields a non-empty
// value wins. Fields whose alternatives are exhausted are omitted.
func extractItem(root *goquery.Selection, fields siteconfig.Fields, relative map[string]bool, base *url.URL) Item {
	var it Item
	for _, f := range fields {
		isURL := relative[f.Name]
		for _, sel := range f.Selectors {
			s := root.Find(sel).First()
			if s.Length() == 0 {
				continue
			}
			v := selectionValue(s, isURL)
			if v == "" {
				continue
			}
			if isURL && !strings.HasPrefix(v, "http") {
				v = ResolveHref(base, v)
			}
			it.Set(f.Name, v)
			break
		}
	}
	return it
}

// selectionValue is the NFC-normalised trimmed text of s. URL fields prefer
// the element's href when it has one. An address written by an inline script
// wins over the text; undecodable script bodies are left out of the text.
func selectionValue(s *goquery.Selection, isURL bool) string {
	if isURL {
		if href, ok := s.Attr("href"); ok {
			if v := strings.TrimSpace(href); v != "" {
				return norm.NFC.String(v)
			}
		}
	}
	if goquery.NodeName(s) == "script" || s.Find("script").Length() > 0 {
		if addr := scriptEmail(s); addr != "" {
			return addr
		}
		if goquery.NodeName(s) == "script" {
			return ""
		}
		s = s.Clone()
		s.Find("script").Remove()
	}
	return norm.NFC.String(strings.TrimSpace(s.Text()))
}

// ResolveHref resolves href against base, returning an absolute URL string.
// If href is invalid, it is returned unchanged.
func ResolveHref(base *url.URL, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
