package inject

import (
	"strings"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/keywords"
)

// placeholderTexts are option labels that mean "nothing chosen".
var placeholderTexts = []string{
	"選択してください", "選択して下さい", "お選びください", "お選び下さい", "選択",
	"please select", "select", "choose", "-", "--", "---", "----",
}

// IsPlaceholder reports whether an option is a "please choose" prompt.
func IsPlaceholder(o schemas.Option) bool {
	text := strings.ToLower(strings.TrimSpace(o.Text))
	if text == "" && o.Value == "" {
		return true
	}
	text = strings.Trim(text, "-=▼ 　")
	if text == "" {
		return true
	}
	for _, p := range placeholderTexts {
		if text == p || strings.HasPrefix(text, p+" ") {
			return true
		}
	}
	return strings.Contains(text, "選択してください") || strings.Contains(text, "please select")
}

// MatchOption picks the option that represents value. The search runs
// through exact text or value equality, containment and the prefecture
// table; consultation types additionally fall back to an "other" entry and
// then to the first real option. It returns -1 when nothing fits.
func MatchOption(options []schemas.Option, value string, t schemas.SemanticType, tax *keywords.Taxonomy) int {
	v := strings.TrimSpace(value)
	usable := func(o schemas.Option) bool { return !o.Disabled && !IsPlaceholder(o) }

	if v != "" {
		for i, o := range options {
			if o.Disabled {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(o.Text), v) || (o.Value != "" && strings.EqualFold(o.Value, v)) {
				return i
			}
		}

		lv := strings.ToLower(v)
		for i, o := range options {
			if !usable(o) {
				continue
			}
			lt := strings.ToLower(strings.TrimSpace(o.Text))
			if lt == "" {
				continue
			}
			if strings.Contains(lt, lv) || (len([]rune(lt)) >= 2 && strings.Contains(lv, lt)) {
				return i
			}
		}

		if want, ok := prefectureOf(v); ok {
			for i, o := range options {
				if !usable(o) {
					continue
				}
				if p, ok := prefectureOf(o.Text); ok && p.Code == want.Code {
					return i
				}
				if p, ok := keywords.LookupPrefecture(o.Value); ok && p.Code == want.Code {
					return i
				}
			}
		}
	}

	if t != schemas.TypeConsultationType {
		return -1
	}
	if tax != nil {
		for i, o := range options {
			if usable(o) && keywords.ContainsAny(o.Text, tax.OtherOptions) {
				return i
			}
		}
	}
	for i, o := range options {
		if usable(o) {
			return i
		}
	}
	return -1
}

func prefectureOf(s string) (keywords.Prefecture, bool) {
	if p, ok := keywords.LookupPrefecture(s); ok {
		return p, true
	}
	return keywords.LeadingPrefecture(s)
}

// radioOption describes a radio button as a single select option.
func radioOption(f schemas.FieldDescriptor) schemas.Option {
	o := schemas.Option{Text: f.Label}
	if len(f.Options) > 0 {
		if f.Options[0].Text != "" {
			o.Text = f.Options[0].Text
		}
		o.Value = f.Options[0].Value
	}
	return o
}

// MatchChoice picks one member of a radio or checkbox group for value, using
// the same rules as MatchOption. A true boolean selects the first member.
func MatchChoice(group []schemas.FieldDescriptor, value string, t schemas.SemanticType, tax *keywords.Taxonomy) int {
	opts := make([]schemas.Option, len(group))
	for i, f := range group {
		opts[i] = radioOption(f)
	}
	return MatchOption(opts, value, t, tax)
}
