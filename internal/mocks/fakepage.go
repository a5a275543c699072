package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser/scripts"
)

// Ref renders the handle selector for element number n, matching the
// selectors produced by the page scripts.
func Ref(n int) string { return fmt.Sprintf(`[data-fp-ref="%d"]`, n) }

// FakeElement is an input-like element of a FakeDocument together with its
// live state and a few behaviour switches.
type FakeElement struct {
	schemas.ElementInfo

	Value         string
	Checked       bool
	SelectedIndex int

	// IgnoreScriptWrites drops values written by page scripts, the way a
	// framework-controlled input reverts a native property set. Typed keys
	// and driver SetValue calls still land.
	IgnoreScriptWrites bool
	// IgnoreSetChecked drops direct checked assignments; clicks still toggle.
	IgnoreSetChecked bool
	// Transform rewrites every stored value, e.g. to model a maxlength.
	Transform func(string) string
	// PointerOnly elements ignore every script and driver write and only take
	// focus or toggle from a trusted pointer click, like custom widgets that
	// listen for real input events.
	PointerOnly bool
	// LabelBox is the visible label of a proxied checkable.
	LabelBox *schemas.Box
}

// FakeControl is a clickable control. OnClick runs when it is activated by
// any means: pointer, script click or form submission.
type FakeControl struct {
	schemas.ControlInfo
	OnClick func(p *FakePage)
}

// FakeDocument is the content served for one URL.
type FakeDocument struct {
	URL      string
	Title    string
	HTML     string
	Text     string
	Errors   []string
	Markers  []string
	Elements []*FakeElement
	Forms    []schemas.FormInfo
	Texts    []schemas.TextBlock
	Controls []*FakeControl
	Frames   []schemas.FrameInfo
	// OnSubmit runs when a form is submitted without a control click.
	OnSubmit func(p *FakePage)
}

// FakeSite maps URLs to documents and records navigations across tabs.
type FakeSite struct {
	mu        sync.Mutex
	Docs      map[string]*FakeDocument
	NavErrors map[string]error
	Visits    []string
}

// NewFakeSite builds a site from documents keyed by their URL.
func NewFakeSite(docs ...*FakeDocument) *FakeSite {
	s := &FakeSite{Docs: make(map[string]*FakeDocument), NavErrors: make(map[string]error)}
	for _, d := range docs {
		s.Docs[d.URL] = d
	}
	return s
}

// VisitLog returns a copy of the navigation history.
func (s *FakeSite) VisitLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Visits...)
}

// FakePage is an in-memory schemas.PageSession that interprets the page
// scripts against a FakeDocument. It is safe for concurrent use.
type FakePage struct {
	mu       sync.Mutex
	id       string
	site     *FakeSite
	doc      *FakeDocument
	url      string
	focused  *FakeElement
	selAll   bool
	closed   bool
	calls    []string
	clicks   []string
	sleeps   time.Duration
	pointerX float64
	pointerY float64
}

var _ schemas.PageSession = (*FakePage)(nil)

// NewFakePage opens a tab on site.
func NewFakePage(id string, site *FakeSite) *FakePage {
	return &FakePage{id: id, site: site}
}

// NewFakePageWithDoc opens a tab already showing doc.
func NewFakePageWithDoc(doc *FakeDocument) *FakePage {
	p := NewFakePage("tab-1", NewFakeSite(doc))
	p.doc, p.url = doc, doc.URL
	return p
}

func (p *FakePage) ID() string { return p.id }

// Load replaces the current document without recording a navigation. Click
// handlers use it to model a server response.
func (p *FakePage) Load(doc *FakeDocument) {
	p.doc = doc
	p.url = doc.URL
	p.focused = nil
}

// Goto loads a document registered on the site. Click handlers use it.
func (p *FakePage) Goto(url string) {
	p.site.mu.Lock()
	doc := p.site.Docs[url]
	p.site.mu.Unlock()
	if doc == nil {
		doc = &FakeDocument{URL: url}
	}
	p.Load(doc)
}

// Calls returns the script tags and driver calls seen so far.
func (p *FakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Clicks returns the refs of activated controls.
func (p *FakePage) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// CalledTimes counts calls with the given tag.
func (p *FakePage) CalledTimes(tag string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == tag {
			n++
		}
	}
	return n
}

// Closed reports whether Close was called.
func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Slept returns the total simulated sleep time.
func (p *FakePage) Slept() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sleeps
}

// Element finds an element of the current document by ref.
func (p *FakePage) Element(ref string) *FakeElement {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.element(ref)
}

func (p *FakePage) element(ref string) *FakeElement {
	if p.doc == nil {
		return nil
	}
	for _, e := range p.doc.Elements {
		if e.Ref == ref {
			return e
		}
	}
	return nil
}

func (p *FakePage) control(ref string) *FakeControl {
	if p.doc == nil {
		return nil
	}
	for _, c := range p.doc.Controls {
		if c.Ref == ref {
			return c
		}
	}
	return nil
}

func (p *FakePage) record(call string) {
	p.calls = append(p.calls, call)
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.site.mu.Lock()
	p.site.Visits = append(p.site.Visits, url)
	navErr := p.site.NavErrors[url]
	doc := p.site.Docs[url]
	p.site.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("navigate")
	if navErr != nil {
		return navErr
	}
	if doc == nil {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", url)
	}
	p.Load(doc)
	return nil
}

func (p *FakePage) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *FakePage) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return "", nil
	}
	return p.doc.Title, nil
}

func (p *FakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return "<html><body></body></html>", nil
	}
	if p.doc.HTML != "" {
		return p.doc.HTML, nil
	}
	return fmt.Sprintf("<html><head><title>%s</title></head><body>%s</body></html>", p.doc.Title, p.doc.Text), nil
}

func (p *FakePage) SetValue(ctx context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("driverSetValue")
	el := p.element(selector)
	if el == nil {
		return fmt.Errorf("no node for selector %s", selector)
	}
	if el.Frame != "" {
		return errors.New("selector not found in main frame")
	}
	if el.PointerOnly {
		return nil
	}
	if strings.EqualFold(el.Tag, "select") {
		for i, o := range el.Options {
			if o.Value == value {
				el.SelectedIndex = i
				return nil
			}
		}
		return nil
	}
	el.Value = el.store(value)
	return nil
}

func (p *FakePage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *FakePage) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.sleeps += d
	p.mu.Unlock()
	return nil
}

func (p *FakePage) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pointerX, p.pointerY = data.X, data.Y
	if data.Type != schemas.MouseRelease {
		return nil
	}
	p.record("pointerClick")
	if el := p.elementAt(data.X, data.Y); el != nil {
		p.focused = el
		p.selAll = false
		p.clickElement(el)
		return nil
	}
	if c := p.controlAt(data.X, data.Y); c != nil {
		p.activate(c)
	}
	return nil
}

func (p *FakePage) elementAt(x, y float64) *FakeElement {
	if p.doc == nil {
		return nil
	}
	for _, e := range p.doc.Elements {
		if e.Box.Contains(x, y) || (e.LabelBox != nil && e.LabelBox.Contains(x, y)) {
			return e
		}
	}
	return nil
}

func (p *FakePage) controlAt(x, y float64) *FakeControl {
	if p.doc == nil {
		return nil
	}
	for _, c := range p.doc.Controls {
		if c.Box.Contains(x, y) {
			return c
		}
	}
	return nil
}

func (p *FakePage) SendKeys(ctx context.Context, keys string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("sendKeys")
	el := p.focused
	if el == nil {
		return nil
	}
	switch el.kind() {
	case schemas.KindCheckbox:
		if keys == " " {
			el.Checked = !el.Checked
		}
		return nil
	case schemas.KindRadio:
		if keys == " " {
			p.checkRadio(el)
		}
		return nil
	case schemas.KindSelect:
		return nil
	}
	if p.selAll {
		el.Value = ""
		p.selAll = false
	}
	if keys == "\r" {
		if el.Tag != "textarea" && !el.Editable {
			return nil
		}
		keys = "\n"
	}
	el.Value = el.store(el.Value + keys)
	return nil
}

func (p *FakePage) DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("key:" + data.Key)
	el := p.focused
	switch {
	case strings.EqualFold(data.Key, "a") && data.Modifiers&(schemas.ModCtrl|schemas.ModMeta) != 0:
		p.selAll = true
	case (data.Key == "Delete" || data.Key == "Backspace") && el != nil:
		if p.selAll {
			el.Value = ""
			p.selAll = false
		} else if r := []rune(el.Value); len(r) > 0 {
			el.Value = string(r[:len(r)-1])
		}
	}
	return nil
}

func (p *FakePage) GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.geometry(selector, false), nil
}

func (p *FakePage) geometry(selector string, preferLabel bool) *schemas.ElementGeometry {
	var (
		box schemas.Box
		tag string
	)
	if el := p.element(selector); el != nil {
		box, tag = el.Box, el.Tag
		if el.LabelBox != nil && (preferLabel || box.Empty()) {
			box, tag = *el.LabelBox, "LABEL"
		}
	} else if c := p.control(selector); c != nil {
		box, tag = c.Box, c.Tag
	} else {
		return nil
	}
	if box.Empty() {
		return nil
	}
	return &schemas.ElementGeometry{
		Vertices: []float64{box.X, box.Y, box.X + box.Width, box.Y, box.X + box.Width, box.Y + box.Height, box.X, box.Y + box.Height},
		Width:    int64(box.Width),
		Height:   int64(box.Height),
		TagName:  strings.ToUpper(tag),
	}
}

// ExecuteScript dispatches on the script's tag and emulates its effect.
func (p *FakePage) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	tag := scripts.TagOf(script)
	p.record(tag)
	result, err := p.eval(tag, args)
	if err != nil {
		return nil, err
	}
	return jsoniter.Marshal(result)
}

func argString(args []interface{}, i int) string {
	if i < len(args) {
		if s, ok := args[i].(string); ok {
			return s
		}
	}
	return ""
}

func argBool(args []interface{}, i int) bool {
	if i < len(args) {
		b, _ := args[i].(bool)
		return b
	}
	return false
}

func argInt(args []interface{}, i int) int {
	if i < len(args) {
		switch v := args[i].(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	return -1
}

func (p *FakePage) eval(tag string, args []interface{}) (interface{}, error) {
	if p.doc == nil && tag != "pageSignals" {
		return nil, nil
	}
	sel := argString(args, 0)
	el := p.element(sel)
	if el != nil && el.PointerOnly {
		switch tag {
		case "setValue", "focus", "clear", "setChecked", "click", "clickLabel", "selectIndex":
			return true, nil
		}
	}

	switch tag {
	case "snapshot":
		return p.snapshot(), nil
	case "geometry":
		return p.geometry(sel, argBool(args, 1)), nil
	case "setValue":
		if el == nil {
			return false, nil
		}
		if !el.IgnoreScriptWrites {
			el.Value = el.store(argString(args, 1))
		}
		return true, nil
	case "focus":
		if el == nil {
			return false, nil
		}
		p.focused, p.selAll = el, false
		return true, nil
	case "clear":
		if el == nil {
			return false, nil
		}
		el.Value = ""
		p.focused, p.selAll = el, false
		return true, nil
	case "readState":
		if el == nil {
			return schemas.ElementState{}, nil
		}
		st := schemas.ElementState{Found: true, Value: el.Value, Checked: el.Checked, SelectedIndex: -1}
		if el.kind() == schemas.KindSelect {
			st.SelectedIndex = el.SelectedIndex
			if el.SelectedIndex >= 0 && el.SelectedIndex < len(el.Options) {
				o := el.Options[el.SelectedIndex]
				st.SelectedText, st.SelectedValue, st.Value = o.Text, o.Value, o.Value
			}
		}
		return st, nil
	case "setChecked":
		if el == nil {
			return false, nil
		}
		if !el.IgnoreSetChecked {
			if el.kind() == schemas.KindRadio && argBool(args, 1) {
				p.checkRadio(el)
			} else {
				el.Checked = argBool(args, 1)
			}
		}
		return true, nil
	case "click", "clickLabel":
		if el != nil {
			p.clickElement(el)
			return true, nil
		}
		if c := p.control(sel); c != nil && tag == "click" {
			p.activate(c)
			return true, nil
		}
		return false, nil
	case "selectIndex":
		idx := argInt(args, 1)
		if el == nil || idx < 0 || idx >= len(el.Options) || el.Options[idx].Disabled {
			return false, nil
		}
		if !el.IgnoreScriptWrites {
			el.SelectedIndex = idx
		}
		return true, nil
	case "fireChange":
		return el != nil, nil
	case "probeVerification":
		return schemas.VerificationProbe{Found: len(p.doc.Markers) > 0, Markers: p.doc.Markers}, nil
	case "submitControls":
		return p.controlsIn(sel), nil
	case "pageSignals":
		if p.doc == nil {
			return schemas.PageSignals{URL: p.url}, nil
		}
		return schemas.PageSignals{URL: p.url, Title: p.doc.Title, Text: p.doc.Text, Errors: p.doc.Errors}, nil
	case "requestSubmit":
		p.record("formSubmit")
		if p.doc.OnSubmit != nil {
			p.doc.OnSubmit(p)
			return true, nil
		}
		return false, nil
	}
	return nil, fmt.Errorf("fake page: unknown script tag %q", tag)
}

func (p *FakePage) snapshot() schemas.DOMSnapshot {
	snap := schemas.DOMSnapshot{
		URL:    p.url,
		Title:  p.doc.Title,
		Forms:  p.doc.Forms,
		Texts:  p.doc.Texts,
		Frames: p.doc.Frames,
	}
	for _, e := range p.doc.Elements {
		info := e.ElementInfo
		if info.Box.Empty() && e.LabelBox != nil {
			info.Box = *e.LabelBox
			info.Proxy = true
			info.Visible = true
		}
		snap.Elements = append(snap.Elements, info)
	}
	for _, c := range p.doc.Controls {
		snap.Controls = append(snap.Controls, c.ControlInfo)
	}
	return snap
}

func (p *FakePage) controlsIn(scope string) []schemas.ControlInfo {
	out := []schemas.ControlInfo{}
	for _, c := range p.doc.Controls {
		if scope == "" || c.Form == scope {
			out = append(out, c.ControlInfo)
		}
	}
	return out
}

func (p *FakePage) clickElement(el *FakeElement) {
	switch el.kind() {
	case schemas.KindCheckbox:
		el.Checked = !el.Checked
	case schemas.KindRadio:
		p.checkRadio(el)
	}
}

func (p *FakePage) checkRadio(el *FakeElement) {
	for _, other := range p.doc.Elements {
		if other.kind() == schemas.KindRadio && other.Name == el.Name {
			other.Checked = false
		}
	}
	el.Checked = true
}

func (p *FakePage) activate(c *FakeControl) {
	p.clicks = append(p.clicks, c.Ref)
	if c.OnClick != nil {
		c.OnClick(p)
	}
}

func (e *FakeElement) kind() schemas.FieldKind {
	return schemas.FieldFromElement(e.ElementInfo).Kind()
}

func (e *FakeElement) store(v string) string {
	if e.Transform != nil {
		return e.Transform(v)
	}
	return v
}
