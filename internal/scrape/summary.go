package scrape

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const excerptLength = 500

// Summary is the structured view of a scraped page.
type Summary struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Links       []string `json:"links"`
	Forms       []Form   `json:"forms,omitempty"`
	Excerpt     string   `json:"excerpt,omitempty"`
	WordCount   int      `json:"word_count"`
}

type Form struct {
	Action string   `json:"action,omitempty"`
	Method string   `json:"method"`
	Fields []string `json:"fields"`
}

// Summarize parses body as HTML. Relative links are resolved against pageURL.
func Summarize(body []byte, pageURL string) (*Summary, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	s := &Summary{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Links: []string{},
	}
	if d, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		s.Description = strings.TrimSpace(d)
	} else if d, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		s.Description = strings.TrimSpace(d)
	}

	base, _ := url.Parse(pageURL)
	seen := map[string]bool{}
	for _, n := range doc.Nodes {
		collectLinks(n, base, seen, &s.Links)
	}

	doc.Find("form").Each(func(_ int, formSel *goquery.Selection) {
		method := strings.ToUpper(formSel.AttrOr("method", ""))
		if method == "" {
			method = "GET"
		}
		f := Form{Action: formSel.AttrOr("action", ""), Method: method, Fields: []string{}}
		formSel.Find("input, textarea, select").Each(func(_ int, in *goquery.Selection) {
			if name := in.AttrOr("name", ""); name != "" {
				f.Fields = append(f.Fields, name)
			}
		})
		s.Forms = append(s.Forms, f)
	})

	words := visibleText(doc.Nodes)
	s.WordCount = len(words)
	s.Excerpt = excerpt(words, excerptLength)
	return s, nil
}

func collectLinks(node *html.Node, base *url.URL, seen map[string]bool, links *[]string) {
	if node.Type == html.ElementNode && (node.Data == "a" || node.Data == "link") {
		for _, attr := range node.Attr {
			if attr.Key != "href" {
				continue
			}
			if resolved, ok := resolve(base, attr.Val); ok && !seen[resolved] {
				seen[resolved] = true
				*links = append(*links, resolved)
			}
		}
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		collectLinks(c, base, seen, links)
	}
}

func resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "javascript:") || strings.HasPrefix(ref, "mailto:") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	u.Fragment = ""
	return u.String(), true
}

// visibleText returns the words of every text node outside script, style and
// noscript elements.
func visibleText(nodes []*html.Node) []string {
	var words []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			words = append(words, strings.Fields(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return words
}

func excerpt(words []string, max int) string {
	var b strings.Builder
	for _, w := range words {
		if b.Len()+len(w)+1 > max {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	return b.String()
}
