package browser

import (
	"strings"

	"github.com/chromedp/chromedp"
)

// Selector locates a page element either by CSS query or by XPath.
type Selector struct {
	Query string
	XPath bool
}

// CSS selects by CSS query, e.g. `input[name=ticker]`.
func CSS(query string) Selector {
	return Selector{Query: query}
}

// XPath selects by an XPath expression.
func XPath(expr string) Selector {
	return Selector{Query: expr, XPath: true}
}

// Text selects the first element whose own text contains text, ignoring case
// and surrounding whitespace.
func Text(text string) Selector {
	return XPath("(" + textXPath(text) + ")[1]")
}

// FollowingSibling selects the first <tag> sibling after the element whose own
// text contains label.
func FollowingSibling(label, tag string) Selector {
	if tag == "" {
		tag = "*"
	}
	return XPath("(" + textXPath(label) + ")[1]/following-sibling::" + tag + "[1]")
}

func (s Selector) String() string {
	if s.XPath {
		return "xpath=" + s.Query
	}
	return s.Query
}

func (s Selector) queryOpts(extra ...chromedp.QueryOption) []chromedp.QueryOption {
	by := chromedp.ByQuery
	if s.XPath {
		by = chromedp.BySearch
	}
	return append([]chromedp.QueryOption{by}, extra...)
}

const (
	upperAlpha = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerAlpha = "abcdefghijklmnopqrstuvwxyz"
)

func textXPath(text string) string {
	needle := strings.ToLower(strings.Join(strings.Fields(text), " "))
	return `//*[not(self::script) and not(self::style)][contains(translate(normalize-space(text()), "` +
		upperAlpha + `", "` + lowerAlpha + `"), ` + xpathLiteral(needle) + `)]`
}

// xpathLiteral quotes s for use inside an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, '"', `)
		}
		b.WriteString(`"` + p + `"`)
	}
	b.WriteString(")")
	return b.String()
}
