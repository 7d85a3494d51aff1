// Package corpus turns fetched pages into an order-preserving view of their
// visible text, the input every extractor works from.
package corpus

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// View is a read-only, document-ordered view over a fetched page.
type View interface {
	// URL is the final URL after redirects.
	URL() string
	// Status is the HTTP status the page was fetched with.
	Status() int
	Title() string
	// Heading is the text of the first h1, if any.
	Heading() string
	// Fragments lists visible text nodes top to bottom.
	Fragments() []string
	// Select returns the cleaned text of every element matching the CSS
	// selector, in document order.
	Select(selector string) []string
}

// Scoper is implemented by views that can list the visible text fragments
// inside the elements matching a selector, in document order.
type Scoper interface {
	FragmentsWithin(selector string) []string
}

// skipped elements never contribute visible text.
var skipped = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
	"svg":      {},
	"iframe":   {},
	"head":     {},
}

// Document is a View backed by a parsed HTML tree.
type Document struct {
	url       string
	status    int
	doc       *goquery.Document
	fragments []string
}

// FromHTML parses body and flattens its visible text.
func FromHTML(url string, status int, body []byte) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", url, err)
	}
	d := &Document{url: url, status: status, doc: doc}
	for _, n := range doc.Nodes {
		d.fragments = collectText(n, d.fragments)
	}
	return d, nil
}

func collectText(n *html.Node, out []string) []string {
	if n.Type == html.ElementNode {
		if _, ok := skipped[n.Data]; ok {
			return out
		}
	}
	if n.Type == html.TextNode {
		if text := Clean(n.Data); text != "" {
			out = append(out, text)
		}
		return out
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = collectText(c, out)
	}
	return out
}

// URL implements View.
func (d *Document) URL() string { return d.url }

// Status implements View.
func (d *Document) Status() int { return d.status }

// Title implements View.
func (d *Document) Title() string {
	return Clean(d.doc.Find("title").First().Text())
}

// Heading implements View.
func (d *Document) Heading() string {
	return Clean(d.doc.Find("h1").First().Text())
}

// Fragments implements View.
func (d *Document) Fragments() []string { return d.fragments }

// Select implements View. Invalid selectors match nothing.
func (d *Document) Select(selector string) []string {
	var out []string
	d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if text := Clean(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// FragmentsWithin implements Scoper. Elements nested inside another match
// are not visited twice.
func (d *Document) FragmentsWithin(selector string) []string {
	var out []string
	sel := d.doc.Find(selector)
	sel.Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered(selector).Length() > 0 {
			return
		}
		for _, n := range s.Nodes {
			out = collectText(n, out)
		}
	})
	return out
}

// Attr returns the first value of attr on elements matching selector.
func (d *Document) Attr(selector, attr string) string {
	v, _ := d.doc.Find(selector).First().Attr(attr)
	return strings.TrimSpace(v)
}

// WithURL returns a copy of d that reports url.
func (d *Document) WithURL(url string) *Document {
	c := *d
	c.url = url
	return &c
}

// Static is a View assembled from already-extracted text. It serves fetchers
// that render elsewhere and sub-views such as page sections.
type Static struct {
	SourceURL  string
	StatusCode int
	PageTitle  string
	H1         string
	Texts      []string
	// Selections maps a CSS selector to the texts it would match.
	Selections map[string][]string
	// Scopes maps a CSS selector to the fragments inside its matches.
	Scopes map[string][]string
}

// New returns a Static view over fragments.
func New(url, title, heading string, fragments []string) *Static {
	return &Static{SourceURL: url, StatusCode: 200, PageTitle: title, H1: heading, Texts: fragments}
}

// URL implements View.
func (s *Static) URL() string { return s.SourceURL }

// Status implements View.
func (s *Static) Status() int { return s.StatusCode }

// Title implements View.
func (s *Static) Title() string { return s.PageTitle }

// Heading implements View.
func (s *Static) Heading() string { return s.H1 }

// Fragments implements View.
func (s *Static) Fragments() []string { return s.Texts }

// Select implements View. The pseudo selectors "title" and "h1" resolve to
// the page title and heading when no explicit selection is registered.
func (s *Static) Select(selector string) []string {
	if got, ok := s.Selections[selector]; ok {
		return got
	}
	switch selector {
	case "title":
		if s.PageTitle != "" {
			return []string{s.PageTitle}
		}
	case "h1":
		if s.H1 != "" {
			return []string{s.H1}
		}
	}
	return nil
}

// FragmentsWithin implements Scoper.
func (s *Static) FragmentsWithin(selector string) []string {
	return s.Scopes[selector]
}

// Section narrows parent to a subset of its fragments while keeping its URL,
// title and heading. Only the title and h1 selectors resolve on a section.
func Section(parent View, fragments []string) *Static {
	return &Static{
		SourceURL:  parent.URL(),
		StatusCode: parent.Status(),
		PageTitle:  parent.Title(),
		H1:         parent.Heading(),
		Texts:      fragments,
	}
}

// Join concatenates the fragments of v with single spaces.
func Join(v View) string {
	return strings.Join(v.Fragments(), " ")
}

// Clean collapses runs of whitespace and strips any markup left in s.
func Clean(s string) string {
	if strings.ContainsAny(s, "<>") {
		s = stripTags(s)
	}
	return strings.Join(strings.Fields(s), " ")
}

func stripTags(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}
