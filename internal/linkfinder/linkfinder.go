// Package linkfinder ranks anchors on a page by how likely they lead to a
// contact form.
package linkfinder

import (
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/formpilot/internal/keywords"
)

const (
	urlPoints   = 3
	textPoints  = 2
	titlePoints = 1
	classPoints = 1
	idPoints    = 1
)

// Link is a ranked candidate.
type Link struct {
	URL   string
	Text  string
	Score int
	// position is the document index of the first anchor with this URL.
	position int
}

// Finder extracts and ranks candidate links.
type Finder struct {
	tax *keywords.Taxonomy
}

func New(tax *keywords.Taxonomy) *Finder {
	if tax == nil {
		tax = keywords.Default()
	}
	return &Finder{tax: tax}
}

// Find parses pageHTML and ranks its links relative to baseURL.
func (f *Finder) Find(pageHTML, baseURL string) ([]Link, error) {
	doc, err := htmlquery.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page html: %w", err)
	}
	return f.FindInDocument(doc, baseURL)
}

// FindInDocument ranks links of a parsed document. The result is sorted by
// score descending; ties keep document order. Links scoring zero are dropped,
// and so are links off the base site unless they point at a known form host.
func (f *Finder) FindInDocument(doc *html.Node, baseURL string) ([]Link, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	self := stripFragment(base)

	byURL := make(map[string]*Link)
	var ordered []*Link
	for i, a := range htmlquery.Find(doc, "//a[@href]") {
		abs, ok := f.resolve(base, htmlquery.SelectAttr(a, "href"))
		if !ok || abs == self || !f.inScope(base, abs) {
			continue
		}
		text := strings.Join(strings.Fields(htmlquery.InnerText(a)), " ")
		score := f.score(abs, text, a)
		if score == 0 {
			continue
		}
		if existing, dup := byURL[abs]; dup {
			if score > existing.Score {
				existing.Score = score
				existing.Text = text
			}
			continue
		}
		l := &Link{URL: abs, Text: text, Score: score, position: i}
		byURL[abs] = l
		ordered = append(ordered, l)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})
	out := make([]Link, len(ordered))
	for i, l := range ordered {
		out[i] = *l
	}
	return out, nil
}

func (f *Finder) score(abs, text string, a *html.Node) int {
	tokens := f.tax.LinkTokens
	score := 0
	if keywords.ContainsAny(abs, tokens) {
		score += urlPoints
	}
	if keywords.ContainsAny(text, tokens) {
		score += textPoints
	}
	if keywords.ContainsAny(htmlquery.SelectAttr(a, "title"), tokens) {
		score += titlePoints
	}
	for _, class := range strings.Fields(htmlquery.SelectAttr(a, "class")) {
		if keywords.ContainsAny(class, tokens) {
			score += classPoints
			break
		}
	}
	if keywords.ContainsAny(htmlquery.SelectAttr(a, "id"), tokens) {
		score += idPoints
	}
	return score
}

// resolve turns href into an absolute http(s) URL without a fragment,
// rejecting non-navigational schemes and links to files.
func (f *Finder) resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, bad := range f.tax.NonHTMLExtensions {
		if ext == bad {
			return "", false
		}
	}
	return stripFragment(u), true
}

// inScope reports whether abs is on the same site as base, comparing
// registrable domains so "www." and other subdomains stay in scope.
func (f *Finder) inScope(base *url.URL, abs string) bool {
	if keywords.ContainsAny(abs, f.tax.FormHosts) {
		return true
	}
	u, err := url.Parse(abs)
	if err != nil {
		return false
	}
	return site(u.Hostname()) == site(base.Hostname())
}

func site(host string) string {
	host = strings.ToLower(host)
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

func stripFragment(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}
