package extracthtml

import (
	"fmt"
	"strconv"
	"strings"

	"ragpipe/internal/siteconfig"

	"github.com/PuerkitoBio/goquery"
)

// Pager markup probed on every page.
const (
	prevDisabledSelector = "li.disabled a.prev"
	nextDisabledSelector = "li.disabled a.next"
	activePageSelector   = ".pagination li.active a"
)

// Reasons reported in Decision.Reason, one per rule.
const (
	ReasonNoItems          = "no_items"
	ReasonPrevNextDisabled = "prev_next_disabled"
	ReasonSinglePage       = "single_page"
	ReasonNextLink         = "next_link"
	ReasonNoNextLink       = "no_next_link"
	ReasonNoPager          = "no_pager"
)

// Decision is the verdict for one fetched page.
type Decision struct {
	Continue bool

	// Reason names the rule that fired.
	Reason string

	// Status summarises the pager, e.g. "P:X N:- | Active=3".
	Status string
}

// Verdict is "continue" or "stop".
func (d Decision) Verdict() string {
	if d.Continue {
		return "continue"
	}
	return "stop"
}

// Analyze decides whether the page after currentPage should be fetched. The
// first matching rule wins:
//
//  1. no items were extracted from this page: stop
//  2. both the prev and next pager controls are disabled: stop
//  3. the active page is 1 and next is disabled: stop
//  4. the pager exists: continue iff it links to a page > currentPage
//  5. there is no pager: stop
func Analyze(doc *goquery.Document, t siteconfig.Target, currentPage, itemCount int) Decision {
	d := Decision{Status: PagerStatus(doc, t.PageParam)}

	prevDisabled := doc.Find(prevDisabledSelector).Length() > 0
	nextDisabled := doc.Find(nextDisabledSelector).Length() > 0

	switch {
	case itemCount == 0:
		d.Reason = ReasonNoItems
	case prevDisabled && nextDisabled:
		d.Reason = ReasonPrevNextDisabled
	case nextDisabled && ActivePage(doc, t.PageParam) == 1:
		d.Reason = ReasonSinglePage
	default:
		pager := doc.Find(t.Pager()).First()
		if pager.Length() == 0 {
			d.Reason = ReasonNoPager
			break
		}
		if hasLinkBeyond(pager, t.PageParam, currentPage) {
			d.Continue = true
			d.Reason = ReasonNextLink
		} else {
			d.Reason = ReasonNoNextLink
		}
	}
	return d
}

func hasLinkBeyond(pager *goquery.Selection, param string, currentPage int) bool {
	sel := fmt.Sprintf("a[href*='%s=']:not([href='#'])", param)
	found := false
	pager.Find(sel).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if n, ok := PageNumber(href, param); ok && n > currentPage {
			found = true
			return false
		}
		return true
	})
	return found
}

// ActivePage returns the page number linked from the active pager entry, or
// 1 when there is none or it cannot be parsed.
func ActivePage(doc *goquery.Document, param string) int {
	href, ok := doc.Find(activePageSelector).First().Attr("href")
	if !ok {
		return 1
	}
	if n, ok := PageNumber(href, param); ok {
		return n
	}
	return 1
}

// PageNumber extracts the value of the last "<param>=" occurrence in href,
// up to the next '&' or '#'.
func PageNumber(href, param string) (int, bool) {
	key := param + "="
	i := strings.LastIndex(href, key)
	if i < 0 {
		return 0, false
	}
	v := href[i+len(key):]
	if j := strings.IndexAny(v, "&#"); j >= 0 {
		v = v[:j]
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// PagerStatus renders the pager state as "P:<prev> N:<next> | Active=<n>",
// where X marks a disabled control.
func PagerStatus(doc *goquery.Document, param string) string {
	mark := func(sel string) string {
		if doc.Find(sel).Length() > 0 {
			return "X"
		}
		return "-"
	}
	return fmt.Sprintf("P:%s N:%s | Active=%d", mark(prevDisabledSelector), mark(nextDisabledSelector), ActivePage(doc, param))
}
