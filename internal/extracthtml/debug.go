package extracthtml

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DumpSelection prints either the outer HTML or the text of every match of
// selector, separated by blank lines, and returns the match count. Used by
// the scraper's diagnostic mode.
func DumpSelection(w io.Writer, doc *goquery.Document, selector string, textOnly bool) (int, error) {
	matches := doc.Find(selector)

	var werr error
	matches.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var out string
		if textOnly {
			out = strings.TrimSpace(s.Text())
		} else if h, err := goquery.OuterHtml(s); err == nil {
			out = h
		} else {
			out, _ = s.Html()
		}
		_, werr = fmt.Fprintf(w, "%s\n\n", out)
		return werr == nil
	})
	return matches.Length(), werr
}
