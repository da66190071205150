package extracthtml

import (
	"encoding/base64"
	"encoding/json"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	reScriptVar   = regexp.MustCompile(`\bvar\s+a\s*=\s*'([^']*)'`)
	reScriptClass = regexp.MustCompile(`\bclass\s*=\s*"([^"]+)"`)
	reEmail       = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// DecodeScriptEmail recovers an address that a listing page writes with an
// inline script instead of plain markup. The script is never executed; the
// address is read from its "var a='...'" literal and the decoding hints are
// read from base64 JSON tokens in the class attribute of the generated email
// element:
//
//	{"rmv":"xyz"}  remove the injected substring
//	{"h":"m"}      the real 'h' was written as 'm'
//	{"rot":"it"}   apply ROT13
//
// Hints apply in that order after HTML unescaping. The result is "" unless it
// looks like an email address.
func DecodeScriptEmail(script string) string {
	m := reScriptVar.FindStringSubmatch(script)
	if m == nil {
		return ""
	}
	addr := strings.TrimPrefix(strings.TrimSpace(html.UnescapeString(m[1])), "mailto:")

	h := scriptHints(script)
	for _, noise := range h.remove {
		addr = strings.ReplaceAll(addr, noise, "")
	}
	if len(h.swap) > 0 {
		addr = strings.Map(func(r rune) rune {
			if orig, ok := h.swap[r]; ok {
				return orig
			}
			return r
		}, addr)
	}
	if h.rot13 {
		addr = rot13(addr)
	}

	// ROT13 may only reveal the prefix now.
	addr = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(addr), "mailto:"))
	if !reEmail.MatchString(addr) {
		return ""
	}
	return addr
}

type emailHints struct {
	rot13  bool
	remove []string
	swap   map[rune]rune // written -> real
}

// scriptHints collects tokens only from email-looking class lists so ordinary
// CSS classes are never decoded.
func scriptHints(script string) emailHints {
	h := emailHints{swap: map[rune]rune{}}
	for _, m := range reScriptClass.FindAllStringSubmatch(script, -1) {
		classes := m[1]
		if !strings.Contains(classes, "email") && !strings.Contains(classes, "required") {
			continue
		}
		for _, tok := range strings.Fields(classes) {
			if len(tok) < 8 || len(tok) > 80 {
				continue
			}
			obj, ok := decodeHintToken(tok)
			if !ok {
				continue
			}
			for k, v := range obj {
				switch k {
				case "rot":
					h.rot13 = h.rot13 || v == "it"
				case "rmv":
					if v != "" {
						h.remove = append(h.remove, v)
					}
				default:
					orig, written := []rune(k), []rune(v)
					if len(orig) == 1 && len(written) == 1 {
						h.swap[written[0]] = orig[0]
					}
				}
			}
		}
	}
	return h
}

func decodeHintToken(tok string) (map[string]string, bool) {
	if n := len(tok) % 4; n != 0 {
		tok += strings.Repeat("=", 4-n)
	}
	raw, err := base64.StdEncoding.DecodeString(tok)
	if err != nil {
		if raw, err = base64.URLEncoding.DecodeString(tok); err != nil {
			return nil, false
		}
	}
	var obj map[string]string
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) == 0 {
		return nil, false
	}
	return obj, true
}

func rot13(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return 'a' + (r-'a'+13)%26
		case r >= 'A' && r <= 'Z':
			return 'A' + (r-'A'+13)%26
		}
		return r
	}, s)
}

// scriptEmail decodes the first script at or under s that yields an address.
func scriptEmail(s *goquery.Selection) string {
	var addr string
	s.Filter("script").AddSelection(s.Find("script")).EachWithBreak(func(_ int, sc *goquery.Selection) bool {
		addr = DecodeScriptEmail(sc.Text())
		return addr == ""
	})
	return addr
}
