// Package classify assigns a semantic type to a form field from its static
// attributes alone. The result depends only on the descriptor, so the same
// field always classifies the same way.
package classify

import (
	"strings"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/keywords"
)

// minPrefectureOptions is how many prefecture names a select must list
// before it is treated as a prefecture picker without a keyword.
const minPrefectureOptions = 5

type Classifier struct {
	tax   *keywords.Taxonomy
	rules map[schemas.SemanticType]keywords.FieldRule
}

func New(tax *keywords.Taxonomy) *Classifier {
	if tax == nil {
		tax = keywords.Default()
	}
	rules := make(map[schemas.SemanticType]keywords.FieldRule, len(tax.Fields))
	for _, r := range tax.Fields {
		rules[r.Type] = r
	}
	return &Classifier{tax: tax, rules: rules}
}

// Classify returns the field's semantic type. Structural priors from the tag
// and input type are consulted first, then the ordered keyword rules.
func (c *Classifier) Classify(f schemas.FieldDescriptor) schemas.SemanticType {
	text := Haystack(f)
	label := keywords.CleanLabel(f.Label)

	switch f.Kind() {
	case schemas.KindSelect:
		if keywords.ContainsAny(text, c.tax.PrefectureTokens) || keywords.CountPrefectures(optionTexts(f)) >= minPrefectureOptions {
			return schemas.TypePrefecture
		}
		return schemas.TypeConsultationType
	case schemas.KindCheckbox:
		if keywords.ContainsAny(text, c.tax.PrivacyTokens) {
			return schemas.TypePrivacyPolicy
		}
		return schemas.TypeCheckboxOther
	case schemas.KindRadio:
		return schemas.TypeConsultationType
	}

	switch f.InputType {
	case "email":
		if c.matches(schemas.TypeEmailConfirm, text, label) {
			return schemas.TypeEmailConfirm
		}
		return schemas.TypeEmail
	case "tel":
		// Postal codes are often typed tel for the numeric keypad.
		if c.matches(schemas.TypeZip, text, label) {
			return schemas.TypeZip
		}
		return schemas.TypePhone
	case "date", "datetime-local", "time":
		for _, t := range []schemas.SemanticType{schemas.TypeDateThird, schemas.TypeDateSecond} {
			if c.matches(t, text, label) {
				return t
			}
		}
		return schemas.TypeDateFirst
	}
	if f.Tag == "textarea" {
		return schemas.TypeMessage
	}

	for _, rule := range c.tax.Fields {
		if ruleMatches(rule, text, label) {
			return rule.Type
		}
	}
	return schemas.TypeUnknown
}

// NamePart returns TypeSei or TypeMei when f holds only one half of a name,
// such as a "sei_kana" reading field, and TypeUnknown otherwise.
func (c *Classifier) NamePart(f schemas.FieldDescriptor) schemas.SemanticType {
	text := Haystack(f)
	label := keywords.CleanLabel(f.Label)
	sei := c.matches(schemas.TypeSei, text, label)
	mei := c.matches(schemas.TypeMei, text, label)
	switch {
	case sei && !mei:
		return schemas.TypeSei
	case mei && !sei:
		return schemas.TypeMei
	}
	return schemas.TypeUnknown
}

// IsNewsletter reports whether a checkbox opts into mailings.
func (c *Classifier) IsNewsletter(f schemas.FieldDescriptor) bool {
	return f.Kind() == schemas.KindCheckbox && keywords.ContainsAny(Haystack(f), c.tax.NewsletterTokens)
}

func (c *Classifier) matches(t schemas.SemanticType, text, label string) bool {
	rule, ok := c.rules[t]
	return ok && ruleMatches(rule, text, label)
}

func ruleMatches(rule keywords.FieldRule, text, label string) bool {
	hit := false
	for _, exact := range rule.Exact {
		if label == exact {
			hit = true
			break
		}
	}
	if !hit {
		hit = keywords.ContainsAny(text, rule.Tokens)
	}
	if hit && len(rule.Require) > 0 {
		hit = keywords.ContainsAny(text, rule.Require)
	}
	return hit
}

// Haystack joins every static attribute that carries meaning into one
// lower-case string for keyword matching.
func Haystack(f schemas.FieldDescriptor) string {
	parts := []string{f.Name, f.ID, f.Placeholder, f.Label}
	parts = append(parts, f.Classes...)
	return strings.ToLower(strings.Join(parts, " "))
}

func optionTexts(f schemas.FieldDescriptor) []string {
	out := make([]string, 0, len(f.Options))
	for _, o := range f.Options {
		out = append(out, o.Text)
	}
	return out
}
