// Package relevance scores whether a rendered page is itself a contact-form page.
package relevance

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/formpilot/internal/keywords"
)

const (
	formPoints    = 3.0
	inputPoints   = 2.0
	submitPoints  = 2.0
	keywordPoints = 0.5
)

// Config holds the tunable thresholds.
type Config struct {
	Threshold       float64
	URLExactBonus   float64
	URLPartialBonus float64
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{Threshold: 7.0, URLExactBonus: 3.0, URLPartialBonus: 2.0}
}

// Assessment is the outcome of scoring one page.
type Assessment struct {
	Score      float64
	IsFormPage bool
	// Signals lists what contributed to the score, for logging.
	Signals []string
}

// Classifier is deterministic and holds no per-page state.
type Classifier struct {
	cfg Config
	tax *keywords.Taxonomy
}

func New(cfg Config, tax *keywords.Taxonomy) *Classifier {
	if tax == nil {
		tax = keywords.Default()
	}
	return &Classifier{cfg: cfg, tax: tax}
}

// Assess parses pageHTML and scores it.
func (c *Classifier) Assess(pageHTML, pageURL string) (Assessment, error) {
	doc, err := htmlquery.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return Assessment{}, fmt.Errorf("failed to parse page html: %w", err)
	}
	return c.AssessDocument(doc, pageURL), nil
}

// AssessDocument scores an already parsed document.
func (c *Classifier) AssessDocument(doc *html.Node, pageURL string) Assessment {
	var a Assessment
	add := func(points float64, signal string) {
		a.Score += points
		a.Signals = append(a.Signals, signal)
	}

	if htmlquery.FindOne(doc, "//form") != nil {
		add(formPoints, "form")
	}
	if htmlquery.FindOne(doc, "//input | //textarea | //select") != nil {
		add(inputPoints, "inputs")
	}
	if htmlquery.FindOne(doc, submitXPath) != nil {
		add(submitPoints, "submit")
	}

	text := VisibleText(doc)
	for _, kw := range keywords.CountDistinct(text, c.tax.ContactText) {
		add(keywordPoints, "keyword:"+kw)
	}

	if bonus, token := c.urlBonus(pageURL); bonus > 0 {
		add(bonus, "url:"+token)
	}

	a.IsFormPage = a.Score >= c.cfg.Threshold
	return a
}

const submitXPath = `//input[lower-case(@type)='submit' or lower-case(@type)='image'] | //button[lower-case(@type)='submit']`

// urlBonus inspects only the decoded path. An exact directory or file stem
// match earns the larger bonus; a bare substring of a definitive token earns
// the smaller one. Weaker "likely" tokens only count as whole segments.
func (c *Classifier) urlBonus(raw string) (float64, string) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, ""
	}
	p := u.Path
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}
	p = strings.ToLower(p)
	if p == "" || p == "/" {
		return 0, ""
	}

	segments := pathSegments(p)
	best, bestToken := 0.0, ""
	consider := func(points float64, token string) {
		if points > best {
			best, bestToken = points, token
		}
	}
	for _, tok := range c.tax.URLDefinitive {
		t := strings.ToLower(tok)
		switch {
		case segments[t]:
			consider(c.cfg.URLExactBonus, tok)
		case strings.Contains(p, t):
			consider(c.cfg.URLPartialBonus, tok)
		}
	}
	for _, tok := range c.tax.URLLikely {
		if segments[strings.ToLower(tok)] {
			consider(c.cfg.URLPartialBonus, tok)
		}
	}
	return best, bestToken
}

// pathSegments returns every segment and every segment's stem without its
// extension, so "/contact.php" yields both "contact.php" and "contact".
func pathSegments(p string) map[string]bool {
	out := make(map[string]bool)
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		out[seg] = true
		if ext := path.Ext(seg); ext != "" {
			out[strings.TrimSuffix(seg, ext)] = true
		}
	}
	return out
}

// VisibleText concatenates the document's text nodes, skipping script, style,
// noscript and template content.
func VisibleText(doc *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return b.String()
}
