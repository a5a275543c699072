// Package resolve maps a field's semantic type to the concrete value that
// should be written into it.
package resolve

import (
	"strings"
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/keywords"
)

// ValueKind tells the injector how to apply a Value.
type ValueKind string

const (
	KindNone ValueKind = "none"
	KindText ValueKind = "text"
	KindBool ValueKind = "bool"
)

// Value is a resolved field value.
type Value struct {
	Kind ValueKind
	Text string
	Bool bool
}

func Text(s string) Value { return Value{Kind: KindText, Text: s} }
func Bool(b bool) Value   { return Value{Kind: KindBool, Bool: b} }

// None means the field is left alone.
var None = Value{Kind: KindNone}

// Skip reports whether there is nothing to write.
func (v Value) Skip() bool { return v.Kind == KindNone || v.Kind == "" }

func (v Value) String() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	}
	return ""
}

// Hint carries the per-element facts that change how a type is rendered.
type Hint struct {
	InputType  string
	Newsletter bool
	// NamePart is TypeSei or TypeMei for a reading field that holds only
	// one half of the name.
	NamePart schemas.SemanticType
}

// Business-day offsets for the three preferred-date fields.
const (
	firstDateOffset  = 7
	secondDateOffset = 8
	thirdDateOffset  = 9
)

// Options configures a Resolver.
type Options struct {
	DefaultMessage string
	// DateTime is the fixed clock time appended to preferred dates, "15:04".
	DateTime       string
	AutoCheckOther bool
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

type Resolver struct {
	opts Options
}

func New(opts Options) *Resolver {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DateTime == "" {
		opts.DateTime = "13:00"
	}
	return &Resolver{opts: opts}
}

// Resolve returns the value for a field of type t.
func (r *Resolver) Resolve(t schemas.SemanticType, target schemas.TargetRecord, sender schemas.SenderProfile, hint Hint) Value {
	if hint.Newsletter {
		return Bool(sender.NewsletterConsent)
	}
	switch t {
	case schemas.TypeCompany:
		return nonEmpty(target.CompanyName)
	case schemas.TypeMessage:
		msg := target.Message
		if strings.TrimSpace(msg) == "" {
			msg = r.opts.DefaultMessage
		}
		return nonEmpty(strings.ReplaceAll(msg, "\r\n", "\n"))
	case schemas.TypeName:
		return nonEmpty(sender.Name)
	case schemas.TypeFurigana:
		return nonEmpty(furigana(sender, hint.NamePart))
	case schemas.TypeSei:
		return nonEmpty(sender.LastName)
	case schemas.TypeMei:
		return nonEmpty(sender.FirstName)
	case schemas.TypeEmail, schemas.TypeEmailConfirm:
		return nonEmpty(sender.Email)
	case schemas.TypePhone:
		return nonEmpty(sender.Phone)
	case schemas.TypeZip:
		return nonEmpty(sender.PostalCode)
	case schemas.TypeAddress:
		return nonEmpty(sender.Address)
	case schemas.TypePrefecture:
		return nonEmpty(Prefecture(sender))
	case schemas.TypeConsultationType:
		return nonEmpty(sender.ConsultationLabel)
	case schemas.TypePrivacyPolicy:
		if sender.PrivacyConsent {
			return Bool(true)
		}
		return None
	case schemas.TypeCheckboxOther:
		if r.opts.AutoCheckOther {
			return Bool(true)
		}
		return None
	case schemas.TypeDateFirst:
		return Text(r.formatDate(firstDateOffset, hint.InputType))
	case schemas.TypeDateSecond:
		return Text(r.formatDate(secondDateOffset, hint.InputType))
	case schemas.TypeDateThird:
		return Text(r.formatDate(thirdDateOffset, hint.InputType))
	}
	return None
}

// furigana returns the reading for the requested half of the name, or the
// full reading when no half is asked for or the half is unknown.
func furigana(sender schemas.SenderProfile, part schemas.SemanticType) string {
	switch {
	case part == schemas.TypeSei && sender.LastNameKana != "":
		return sender.LastNameKana
	case part == schemas.TypeMei && sender.FirstNameKana != "":
		return sender.FirstNameKana
	}
	return sender.Furigana
}

// Prefecture returns the sender's prefecture, derived from the address when
// not configured.
func Prefecture(sender schemas.SenderProfile) string {
	if sender.Prefecture != "" {
		return sender.Prefecture
	}
	if p, ok := keywords.LeadingPrefecture(sender.Address); ok {
		return p.Name
	}
	return ""
}

var weekdays = [...]string{"日", "月", "火", "水", "木", "金", "土"}

func (r *Resolver) formatDate(offset int, inputType string) string {
	d := AddBusinessDays(r.opts.Now(), offset)
	switch inputType {
	case "date":
		return d.Format("2006-01-02")
	case "datetime-local":
		return d.Format("2006-01-02") + "T" + r.opts.DateTime
	case "time":
		return r.opts.DateTime
	}
	return d.Format("2006年1月2日") + "（" + weekdays[d.Weekday()] + "） " + r.opts.DateTime
}

// AddBusinessDays counts n weekdays forward from t, skipping Saturdays and
// Sundays. The time of day is preserved.
func AddBusinessDays(t time.Time, n int) time.Time {
	d := t
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return d
}

func nonEmpty(s string) Value {
	if strings.TrimSpace(s) == "" {
		return None
	}
	return Text(s)
}
