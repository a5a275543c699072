package schemas

import "math"

// -- DOM Snapshot Schemas --
//
// A DOMSnapshot is produced by a single page script that walks the main
// document and every same-origin iframe. Each element of interest is tagged
// with a data-fp-ref attribute; Ref holds a CSS selector for that attribute so
// it can be resolved again later in any frame.

// Box is an element's rectangle in document coordinates (scroll offsets and
// iframe offsets already applied).
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the box has no rendered area.
func (b Box) Empty() bool { return b.Width <= 0 || b.Height <= 0 }

// Center returns the middle point of the box.
func (b Box) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Contains reports whether the point lies inside the box.
func (b Box) Contains(x, y float64) bool {
	return x >= b.X && x <= b.X+b.Width && y >= b.Y && y <= b.Y+b.Height
}

// Gap returns the shortest distance between the edges of two boxes, zero when
// they touch or overlap.
func (b Box) Gap(o Box) float64 {
	dx := math.Max(0, math.Max(o.X-(b.X+b.Width), b.X-(o.X+o.Width)))
	dy := math.Max(0, math.Max(o.Y-(b.Y+b.Height), b.Y-(o.Y+o.Height)))
	return math.Hypot(dx, dy)
}

// Option is a single entry of a select element.
type Option struct {
	Text     string `json:"text"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

// ElementInfo describes one input-like element.
type ElementInfo struct {
	Ref         string   `json:"ref"`
	Frame       string   `json:"frame"`
	Order       int      `json:"order"`
	Tag         string   `json:"tag"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	ID          string   `json:"id"`
	Placeholder string   `json:"placeholder"`
	Classes     []string `json:"classes"`
	Label       string   `json:"label"`
	Box         Box      `json:"box"`
	Visible     bool     `json:"visible"`
	// Proxy is set for a visually hidden checkable whose label is visible.
	Proxy    bool     `json:"proxy"`
	Editable bool     `json:"editable"`
	Form     string   `json:"form"`
	Required bool     `json:"required"`
	Options  []Option `json:"options,omitempty"`
	// Ancestors lists refs of enclosing elements, nearest first.
	Ancestors []string `json:"ancestors"`
}

// FormInfo describes a form container.
type FormInfo struct {
	Ref    string `json:"ref"`
	Frame  string `json:"frame"`
	Action string `json:"action"`
	Method string `json:"method"`
	Box    Box    `json:"box"`
}

// TextBlock is a short visible run of text used as a keyword anchor.
type TextBlock struct {
	Ref   string `json:"ref"`
	Frame string `json:"frame"`
	Text  string `json:"text"`
	Box   Box    `json:"box"`
}

// ControlInfo describes a clickable control that may submit a form.
type ControlInfo struct {
	Ref     string `json:"ref"`
	Frame   string `json:"frame"`
	Order   int    `json:"order"`
	Tag     string `json:"tag"`
	Type    string `json:"type"`
	Text    string `json:"text"`
	Form    string `json:"form"`
	Box     Box    `json:"box"`
	Visible bool   `json:"visible"`
}

// FrameInfo describes an iframe on the page.
type FrameInfo struct {
	Ref        string `json:"ref"`
	Src        string `json:"src"`
	SameOrigin bool   `json:"sameOrigin"`
	Box        Box    `json:"box"`
}

// DOMSnapshot is the structural view of a rendered page.
type DOMSnapshot struct {
	URL      string        `json:"url"`
	Title    string        `json:"title"`
	Elements []ElementInfo `json:"elements"`
	Forms    []FormInfo    `json:"forms"`
	Texts    []TextBlock   `json:"texts"`
	Controls []ControlInfo `json:"controls"`
	Frames   []FrameInfo   `json:"frames"`
}

// ElementState is the read-back of an element after an injection attempt.
type ElementState struct {
	Found         bool   `json:"found"`
	Value         string `json:"value"`
	Checked       bool   `json:"checked"`
	SelectedIndex int    `json:"selectedIndex"`
	SelectedText  string `json:"selectedText"`
	SelectedValue string `json:"selectedValue"`
}

// VerificationProbe is the result of scanning a page for challenge widgets.
type VerificationProbe struct {
	Found   bool     `json:"found"`
	Markers []string `json:"markers"`
}

// PageSignals is the post-submission view used for outcome evaluation.
type PageSignals struct {
	URL    string   `json:"url"`
	Title  string   `json:"title"`
	Text   string   `json:"text"`
	Errors []string `json:"errors"`
}
