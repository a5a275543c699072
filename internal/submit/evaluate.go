package submit

import (
	"net/url"
	"sort"
	"strings"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/keywords"
)

// Evaluate decides the outcome of a submission from the page state after
// the final click. before is the page state captured just before that
// click; a success phrase already present there does not count.
// Success needs a signal; an unchanged URL with no other evidence is never
// a success, and neither is a move onto a confirmation page. While
// validation errors are shown only a success URL counts.
func Evaluate(before, sig schemas.PageSignals, tax *keywords.Taxonomy) schemas.SubmissionOutcome {
	out := schemas.SubmissionOutcome{Attempted: true, FinalURL: sig.URL, Signal: schemas.SignalNone}
	after := strings.ToLower(sig.URL)
	errorURL := keywords.ContainsAny(urlPath(after), tax.ErrorURL)
	// Visible validation errors outweigh anything but a success URL.
	invalid := len(sig.Errors) > 0

	switch {
	case !errorURL && keywords.ContainsAny(urlPath(after), tax.SuccessURL):
		out.Signal = schemas.SignalURL
	case invalid:
	case appeared(before.Text, sig.Text, tax.SuccessContent):
		out.Signal = schemas.SignalContent
	case appeared(before.Title, sig.Title, tax.SuccessTitle):
		out.Signal = schemas.SignalTitle
	case !errorURL && sig.URL != "" && stripFragment(before.URL) != stripFragment(sig.URL) && !IsConfirmPage(sig, tax):
		out.Signal = schemas.SignalURLChange
	}
	out.Success = out.Signal != schemas.SignalNone
	if out.Success {
		return out
	}

	problems := append([]string(nil), sig.Errors...)
	if len(problems) == 0 {
		problems = keywords.CountDistinct(sig.Text, tax.ValidationErrors)
	}
	out.Detail = "no success signal after submission"
	if errorURL {
		out.Detail = "landed on an error URL"
	}
	if len(problems) > 0 {
		out.Detail += "; validation: " + strings.Join(problems, " | ")
	}
	return out
}

// IsConfirmPage reports whether the page is an intermediate review step.
// Callers check for success first; success evidence takes precedence.
func IsConfirmPage(sig schemas.PageSignals, tax *keywords.Taxonomy) bool {
	return keywords.ContainsAny(urlPath(strings.ToLower(sig.URL)), tax.ConfirmPageURL) ||
		keywords.ContainsAny(sig.Text, tax.ConfirmPageText)
}

// Rank orders submit candidates. On the input step explicit submit-typed
// controls come first, then controls worded as a confirm or next step, then
// controls worded as a final send. On a confirmation page only controls
// worded as a final send qualify. Back, cancel and reset controls are never
// returned.
func Rank(controls []schemas.ControlInfo, tax *keywords.Taxonomy, confirmStep bool) []schemas.ControlInfo {
	type scored struct {
		c    schemas.ControlInfo
		tier int
	}
	var picked []scored
	for _, c := range controls {
		if !c.Visible {
			continue
		}
		typ := strings.ToLower(c.Type)
		if typ == "reset" || keywords.ContainsAny(c.Text, tax.BackPhrases) {
			continue
		}
		confirm := keywords.ContainsAny(c.Text, tax.ConfirmPhrases)
		terminal := keywords.ContainsAny(c.Text, tax.TerminalPhrases)
		submitTyped := typ == "submit" || typ == "image"

		tier := -1
		if confirmStep {
			switch {
			case terminal && !confirm:
				tier = 0
			case terminal:
				tier = 1
			}
		} else {
			switch {
			case submitTyped && confirm:
				tier = 0
			case submitTyped:
				tier = 1
			case confirm:
				tier = 2
			case terminal:
				tier = 3
			}
		}
		if tier >= 0 {
			picked = append(picked, scored{c: c, tier: tier})
		}
	}
	sort.SliceStable(picked, func(i, j int) bool {
		if picked[i].tier != picked[j].tier {
			return picked[i].tier < picked[j].tier
		}
		return picked[i].c.Order < picked[j].c.Order
	})
	out := make([]schemas.ControlInfo, len(picked))
	for i, p := range picked {
		out[i] = p.c
	}
	return out
}

// appeared reports whether a token matches after but not prior.
func appeared(prior, after string, tokens []string) bool {
	for _, tok := range keywords.CountDistinct(after, tokens) {
		if !keywords.Matches(prior, tok) {
			return true
		}
	}
	return false
}

func stripFragment(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSuffix(raw, "/")
}

// urlPath returns everything after the host so a domain such as
// "check-corp.jp" does not read as a confirm step.
func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	p := u.EscapedPath()
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
