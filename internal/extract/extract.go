// Package extract defines the field-extraction contract between the scrape
// orchestrator and site-specific selector specs. The orchestrator never
// inspects selector syntax; it hands a loaded page and a declarative spec
// to an Extractor and consumes the field map that comes back.
package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Page is a loaded-document handle. Tests substitute canned fixtures; in
// production it is a browser session.
type Page interface {
	HTML(ctx context.Context) (string, error)
	URL() string
}

// FieldSelector locates one field on a detail page. An empty Attr means
// the element's trimmed text; otherwise the named attribute is read.
type FieldSelector struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr,omitempty"`
}

// Spec maps field names to their selectors for one source.
type Spec map[string]FieldSelector

// ListSpec locates listing candidates on a discovery page. NameSelector
// and LinkSelector are resolved within each item; empty selectors fall
// back to the item element itself.
type ListSpec struct {
	ItemSelector string `yaml:"item_selector"`
	NameSelector string `yaml:"name_selector,omitempty"`
	LinkSelector string `yaml:"link_selector,omitempty"`
}

// Candidate is one {name, url} pair found during discovery.
type Candidate struct {
	Name string
	URL  string
}

// Extractor turns a loaded page plus a selector spec into field values.
// Fields whose selector matches nothing are absent from the result map.
type Extractor interface {
	Extract(ctx context.Context, page Page, spec Spec) (map[string]string, error)
	Candidates(ctx context.Context, page Page, spec ListSpec, limit int) ([]Candidate, error)
}

// DOM is the production Extractor: it parses the page's captured HTML with
// goquery and evaluates CSS selectors against it.
type DOM struct{}

// NewDOM returns a goquery-backed extractor.
func NewDOM() *DOM {
	return &DOM{}
}

func (d *DOM) document(ctx context.Context, page Page) (*goquery.Document, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "extract: capture page html")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse page html")
	}
	return doc, nil
}

// Extract evaluates every field selector in the spec. A selector that
// matches nothing or yields empty text leaves its field out of the map.
func (d *DOM) Extract(ctx context.Context, page Page, spec Spec) (map[string]string, error) {
	doc, err := d.document(ctx, page)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(spec))
	for name, fs := range spec {
		sel := doc.Find(fs.Selector).First()
		if sel.Length() == 0 {
			continue
		}
		var val string
		if fs.Attr != "" {
			val, _ = sel.Attr(fs.Attr)
		} else {
			val = sel.Text()
		}
		val = strings.TrimSpace(val)
		if val != "" {
			fields[name] = val
		}
	}
	return fields, nil
}

// Candidates collects up to limit {name, url} pairs from a listing page,
// resolving relative links against the page URL.
func (d *DOM) Candidates(ctx context.Context, page Page, spec ListSpec, limit int) ([]Candidate, error) {
	doc, err := d.document(ctx, page)
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(page.URL())
	if err != nil {
		return nil, eris.Wrapf(err, "extract: parse page url %s", page.URL())
	}

	var out []Candidate
	doc.Find(spec.ItemSelector).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}

		nameSel := item
		if spec.NameSelector != "" {
			nameSel = item.Find(spec.NameSelector).First()
		}
		name := strings.TrimSpace(nameSel.Text())

		linkSel := item
		if spec.LinkSelector != "" {
			linkSel = item.Find(spec.LinkSelector).First()
		}
		href, ok := linkSel.Attr("href")
		if !ok || name == "" {
			return true
		}

		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}

		out = append(out, Candidate{
			Name: name,
			URL:  base.ResolveReference(ref).String(),
		})
		return true
	})

	return out, nil
}
