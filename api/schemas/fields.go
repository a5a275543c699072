package schemas

import "strings"

// -- Input Schemas --

// TargetRecord is one company to contact. It is never modified once loaded.
type TargetRecord struct {
	CompanyName string `json:"company_name"`
	URL         string `json:"url"`
	// ContactURL, when set, is visited before any discovered link.
	ContactURL string `json:"contact_url,omitempty"`
	Message    string `json:"message,omitempty"`
}

// SenderProfile holds the identity used to fill forms for a whole run.
type SenderProfile struct {
	Name              string `json:"name" mapstructure:"name"`
	Furigana          string `json:"furigana" mapstructure:"furigana"`
	LastName          string `json:"last_name" mapstructure:"last_name"`
	FirstName         string `json:"first_name" mapstructure:"first_name"`
	LastNameKana      string `json:"last_name_kana" mapstructure:"last_name_kana"`
	FirstNameKana     string `json:"first_name_kana" mapstructure:"first_name_kana"`
	Email             string `json:"email" mapstructure:"email"`
	Phone             string `json:"phone" mapstructure:"phone"`
	PostalCode        string `json:"postal_code" mapstructure:"postal_code"`
	Prefecture        string `json:"prefecture" mapstructure:"prefecture"`
	Address           string `json:"address" mapstructure:"address"`
	ConsultationLabel string `json:"consultation_label" mapstructure:"consultation_label"`
	PrivacyConsent    bool   `json:"privacy_consent" mapstructure:"privacy_consent"`
	NewsletterConsent bool   `json:"newsletter_consent" mapstructure:"newsletter_consent"`
}

// Normalized fills the derived name parts when they were not given
// explicitly. The receiver is not modified.
func (p SenderProfile) Normalized() SenderProfile {
	if p.LastName == "" && p.FirstName == "" {
		p.LastName, p.FirstName = SplitName(p.Name)
	}
	if p.LastNameKana == "" && p.FirstNameKana == "" {
		p.LastNameKana, p.FirstNameKana = SplitName(p.Furigana)
	}
	return p
}

// SplitName splits a full name on the first ASCII or full-width space.
func SplitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if i := strings.IndexAny(full, " 　"); i >= 0 {
		rest := strings.TrimLeft(full[i:], " 　")
		return full[:i], rest
	}
	return full, ""
}

// -- Field Schemas --

// SemanticType is the closed set of meanings a form field can carry.
type SemanticType string

const (
	TypeName             SemanticType = "name"
	TypeFurigana         SemanticType = "furigana"
	TypeSei              SemanticType = "sei"
	TypeMei              SemanticType = "mei"
	TypeCompany          SemanticType = "company"
	TypeEmail            SemanticType = "email"
	TypeEmailConfirm     SemanticType = "email_confirm"
	TypePhone            SemanticType = "phone"
	TypeZip              SemanticType = "zip"
	TypeAddress          SemanticType = "address"
	TypePrefecture       SemanticType = "prefecture"
	TypeMessage          SemanticType = "message"
	TypeConsultationType SemanticType = "consultation_type"
	TypePrivacyPolicy    SemanticType = "privacy_policy"
	TypeCheckboxOther    SemanticType = "checkbox_other"
	TypeDateFirst        SemanticType = "date_first"
	TypeDateSecond       SemanticType = "date_second"
	TypeDateThird        SemanticType = "date_third"
	TypeUnknown          SemanticType = "unknown"
)

// AllSemanticTypes lists every member of the enumeration in declaration order.
var AllSemanticTypes = []SemanticType{
	TypeName, TypeFurigana, TypeSei, TypeMei, TypeCompany, TypeEmail, TypeEmailConfirm,
	TypePhone, TypeZip, TypeAddress, TypePrefecture, TypeMessage, TypeConsultationType,
	TypePrivacyPolicy, TypeCheckboxOther, TypeDateFirst, TypeDateSecond, TypeDateThird,
	TypeUnknown,
}

func (s SemanticType) String() string { return string(s) }

// FieldKind groups elements by how a value is written into them.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindEditable FieldKind = "editable"
	KindCheckbox FieldKind = "checkbox"
	KindRadio    FieldKind = "radio"
	KindSelect   FieldKind = "select"
)

// FieldDescriptor is a single input-like element found on a page visit.
type FieldDescriptor struct {
	Handle      string   `json:"handle"`
	Frame       string   `json:"frame,omitempty"`
	Order       int      `json:"order"`
	Tag         string   `json:"tag"`
	InputType   string   `json:"input_type,omitempty"`
	Name        string   `json:"name,omitempty"`
	ID          string   `json:"id,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Classes     []string `json:"classes,omitempty"`
	Label       string   `json:"label,omitempty"`
	Box         Box      `json:"box"`
	Required    bool     `json:"required,omitempty"`
	Editable    bool     `json:"editable,omitempty"`
	Proxy       bool     `json:"proxy,omitempty"`
	Options     []Option `json:"options,omitempty"`
}

// Kind derives the write semantics from the tag and type.
func (f FieldDescriptor) Kind() FieldKind {
	switch strings.ToLower(f.Tag) {
	case "select":
		return KindSelect
	case "textarea":
		return KindText
	case "input":
		switch strings.ToLower(f.InputType) {
		case "checkbox":
			return KindCheckbox
		case "radio":
			return KindRadio
		}
		return KindText
	}
	if f.Editable {
		return KindEditable
	}
	return KindText
}

// FieldFromElement converts a snapshot element to a descriptor.
func FieldFromElement(e ElementInfo) FieldDescriptor {
	return FieldDescriptor{
		Handle:      e.Ref,
		Frame:       e.Frame,
		Order:       e.Order,
		Tag:         strings.ToLower(e.Tag),
		InputType:   strings.ToLower(e.Type),
		Name:        e.Name,
		ID:          e.ID,
		Placeholder: e.Placeholder,
		Classes:     e.Classes,
		Label:       e.Label,
		Box:         e.Box,
		Required:    e.Required,
		Editable:    e.Editable,
		Proxy:       e.Proxy,
		Options:     e.Options,
	}
}

// DetectionMethod names the discovery strategy that produced a group.
type DetectionMethod string

const (
	MethodTag     DetectionMethod = "tag"
	MethodSpatial DetectionMethod = "spatial"
	MethodKeyword DetectionMethod = "keyword"
	MethodSubmit  DetectionMethod = "submit"
	MethodIframe  DetectionMethod = "iframe"
)

// SourceType records where a group was found.
type SourceType string

const (
	SourceMainPage    SourceType = "main_page"
	SourceContactPage SourceType = "contact_page"
	SourceIframe      SourceType = "iframe"
)

// DetectedForm is a group of fields believed to belong to one logical form.
// No two descriptors in Fields refer to the same element.
type DetectedForm struct {
	Root       string            `json:"root"`
	Fields     []FieldDescriptor `json:"fields"`
	Method     DetectionMethod   `json:"method"`
	Confidence float64           `json:"confidence"`
	SourceURL  string            `json:"source_url"`
	SourceType SourceType        `json:"source_type"`
}

// Handles returns the set of element handles in the group.
func (d DetectedForm) Handles() map[string]struct{} {
	set := make(map[string]struct{}, len(d.Fields))
	for _, f := range d.Fields {
		set[f.Handle] = struct{}{}
	}
	return set
}
