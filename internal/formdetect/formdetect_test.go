package formdetect

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

func el(ref string, order int, x, y float64, mods ...func(*schemas.ElementInfo)) schemas.ElementInfo {
	e := schemas.ElementInfo{
		Ref: ref, Order: order, Tag: "input", Type: "text", Name: ref,
		Box: schemas.Box{X: x, Y: y, Width: 200, Height: 30}, Visible: true,
		Ancestors: []string{"div.row", "section", "body"},
	}
	for _, m := range mods {
		m(&e)
	}
	return e
}

func inForm(form string) func(*schemas.ElementInfo) {
	return func(e *schemas.ElementInfo) {
		e.Form = form
		e.Ancestors = append([]string{form}, e.Ancestors...)
	}
}

func inFrame(frame string) func(*schemas.ElementInfo) {
	return func(e *schemas.ElementInfo) { e.Frame = frame }
}

func hidden(e *schemas.ElementInfo) { e.Visible = false }

func newDetector(t *testing.T) *Detector {
	return New(DefaultConfig(), nil, zaptest.NewLogger(t))
}

func refs(g schemas.DetectedForm) []string {
	out := make([]string, len(g.Fields))
	for i, f := range g.Fields {
		out[i] = f.Handle
	}
	return out
}

func TestDetect_TagStrategyWinsAndAbsorbsOverlaps(t *testing.T) {
	snap := &schemas.DOMSnapshot{
		URL: "https://example.com/contact",
		Forms: []schemas.FormInfo{
			{Ref: "search", Box: schemas.Box{X: 900, Y: 0, Width: 200, Height: 40}},
			{Ref: "contact", Box: schemas.Box{X: 0, Y: 1000, Width: 600, Height: 400}},
		},
		Elements: []schemas.ElementInfo{
			el("q", 0, 900, 5, inForm("search")),
			el("name", 1, 0, 1000, inForm("contact")),
			el("email", 2, 0, 1050, inForm("contact")),
			el("body", 3, 0, 1100, inForm("contact"), func(e *schemas.ElementInfo) { e.Tag = "textarea"; e.Type = "" }),
			el("secret", 4, 0, 1150, inForm("contact"), hidden),
		},
		Texts: []schemas.TextBlock{
			{Ref: "h1", Text: "お問い合わせ", Box: schemas.Box{X: 0, Y: 900, Width: 300, Height: 40}},
		},
		Controls: []schemas.ControlInfo{
			{Ref: "btn", Type: "submit", Text: "送信", Form: "contact", Visible: true, Box: schemas.Box{X: 0, Y: 1200, Width: 100, Height: 40}},
		},
	}

	res := newDetector(t).Detect(snap, schemas.SourceMainPage)
	require.Len(t, res.Forms, 2)

	first := res.Forms[0]
	assert.Equal(t, schemas.MethodTag, first.Method)
	assert.Equal(t, ConfidenceTag, first.Confidence)
	assert.Equal(t, "contact", first.Root)
	assert.Equal(t, []string{"name", "email", "body"}, refs(first))
	assert.Equal(t, schemas.SourceMainPage, first.SourceType)
	assert.Equal(t, "https://example.com/contact", first.SourceURL)

	// Same confidence, fewer fields.
	assert.Equal(t, []string{"q"}, refs(res.Forms[1]))
	assert.Empty(t, res.ManualFrames)
}

func TestDetect_SpatialClustersWithoutForms(t *testing.T) {
	snap := &schemas.DOMSnapshot{
		Elements: []schemas.ElementInfo{
			el("a", 0, 0, 0),
			el("b", 1, 0, 60),
			el("c", 2, 0, 120),
			el("far", 3, 2000, 3000, func(e *schemas.ElementInfo) { e.Ancestors = []string{"footer", "body"} }),
		},
	}
	res := newDetector(t).Detect(snap, schemas.SourceContactPage)
	require.Len(t, res.Forms, 1)
	g := res.Forms[0]
	assert.Equal(t, schemas.MethodSpatial, g.Method)
	assert.Equal(t, ConfidenceSpatial, g.Confidence)
	assert.Equal(t, "div.row", g.Root)
	assert.Equal(t, []string{"a", "b", "c"}, refs(g))
	assert.Equal(t, schemas.SourceContactPage, g.SourceType)
}

func TestDetect_SpatialSkippedWhenFormsExist(t *testing.T) {
	snap := &schemas.DOMSnapshot{
		Forms: []schemas.FormInfo{{Ref: "f"}},
		Elements: []schemas.ElementInfo{
			el("a", 0, 0, 0),
			el("b", 1, 0, 60),
		},
	}
	res := newDetector(t).Detect(snap, schemas.SourceMainPage)
	assert.Empty(t, res.Forms)
}

func TestDetect_KeywordAndSubmitProximity(t *testing.T) {
	snap := &schemas.DOMSnapshot{
		Elements: []schemas.ElementInfo{
			el("a", 0, 0, 2000),
			el("b", 1, 5000, 2000),
		},
		Texts: []schemas.TextBlock{
			{Ref: "t", Text: "Contact us", Box: schemas.Box{X: 2500, Y: 1900, Width: 100, Height: 20}},
		},
		Controls: []schemas.ControlInfo{
			{Ref: "back", Type: "submit", Text: "戻る", Visible: true, Box: schemas.Box{X: 2500, Y: 2000, Width: 10, Height: 10}},
		},
	}
	cfg := DefaultConfig()
	cfg.KeywordRadius = 2600
	res := New(cfg, nil, nil).Detect(snap, schemas.SourceMainPage)
	require.Len(t, res.Forms, 1)
	assert.Equal(t, schemas.MethodKeyword, res.Forms[0].Method, "the back button never anchors a group")
	assert.Equal(t, []string{"a", "b"}, refs(res.Forms[0]))
}

func TestDetect_ProxyCheckboxCountsAsVisible(t *testing.T) {
	snap := &schemas.DOMSnapshot{
		Forms: []schemas.FormInfo{{Ref: "f"}},
		Elements: []schemas.ElementInfo{
			el("agree", 0, 0, 0, inForm("f"), func(e *schemas.ElementInfo) { e.Type = "checkbox"; e.Proxy = true }),
		},
	}
	res := newDetector(t).Detect(snap, schemas.SourceMainPage)
	require.Len(t, res.Forms, 1)
	assert.True(t, res.Forms[0].Fields[0].Proxy)
}

func TestDetect_IframeScan(t *testing.T) {
	snap := &schemas.DOMSnapshot{
		URL: "https://example.com/",
		Frames: []schemas.FrameInfo{
			{Ref: "frame1", Src: "https://example.com/embed/form", SameOrigin: true},
			{Ref: "frame2", Src: "https://docs.google.com/forms/d/abc/viewform", SameOrigin: false},
			{Ref: "frame3", Src: "https://www.youtube.com/embed/xyz", SameOrigin: false},
		},
		Forms: []schemas.FormInfo{{Ref: "inner", Frame: "frame1"}},
		Elements: []schemas.ElementInfo{
			el("n", 0, 0, 0, inFrame("frame1"), inForm("inner")),
			el("m", 1, 0, 50, inFrame("frame1"), inForm("inner")),
		},
	}
	res := newDetector(t).Detect(snap, schemas.SourceMainPage)
	require.Len(t, res.Forms, 1)
	g := res.Forms[0]
	assert.Equal(t, schemas.MethodIframe, g.Method)
	assert.Equal(t, ConfidenceIframe, g.Confidence)
	assert.Equal(t, schemas.SourceIframe, g.SourceType)
	assert.Equal(t, "https://example.com/embed/form", g.SourceURL)
	assert.Equal(t, "frame1", g.Fields[0].Frame)

	require.Len(t, res.ManualFrames, 1)
	assert.Equal(t, "frame2", res.ManualFrames[0].Ref)
}

func TestDetect_CustomWidgetsAreDiscounted(t *testing.T) {
	editable := func(e *schemas.ElementInfo) { e.Tag = "div"; e.Type = ""; e.Editable = true }
	snap := &schemas.DOMSnapshot{
		Elements: []schemas.ElementInfo{
			el("x", 0, 0, 0, editable),
			el("y", 1, 0, 50, editable),
		},
	}
	res := newDetector(t).Detect(snap, schemas.SourceMainPage)
	require.Len(t, res.Forms, 1)
	assert.InDelta(t, ConfidenceSpatial-customPenalty, res.Forms[0].Confidence, 1e-9)
	assert.Equal(t, schemas.KindEditable, res.Forms[0].Fields[0].Kind())
}

func TestDetect_EmptyPage(t *testing.T) {
	d := newDetector(t)
	assert.True(t, d.Detect(&schemas.DOMSnapshot{}, schemas.SourceMainPage).Empty())
	assert.True(t, d.Detect(nil, schemas.SourceMainPage).Empty())
}

func group(method schemas.DetectionMethod, conf float64, handles ...string) schemas.DetectedForm {
	g := schemas.DetectedForm{Method: method, Confidence: conf}
	for _, h := range handles {
		g.Fields = append(g.Fields, schemas.FieldDescriptor{Handle: h})
	}
	return g
}

func TestDedup(t *testing.T) {
	groups := []schemas.DetectedForm{
		group(schemas.MethodSpatial, 0.7, "a", "b", "c", "d"),
		group(schemas.MethodTag, 0.9, "a", "b"),
		group(schemas.MethodSubmit, 0.8, "x", "y", "z"),
		group(schemas.MethodKeyword, 0.8, "x", "q"),
		group(schemas.MethodIframe, 0.6),
	}
	out := Dedup(groups, 0.5)
	require.Len(t, out, 2)
	assert.Equal(t, schemas.MethodTag, out[0].Method)
	assert.Equal(t, schemas.MethodSubmit, out[1].Method)

	again := Dedup(out, 0.5)
	if diff := cmp.Diff(out, again); diff != "" {
		t.Errorf("dedup is not idempotent (-once +twice):\n%s", diff)
	}
}

func TestOverlap(t *testing.T) {
	a := group(schemas.MethodTag, 1, "a", "b", "c", "d")
	b := group(schemas.MethodTag, 1, "a", "z")
	assert.Equal(t, 0.5, Overlap(a, b))
	assert.Equal(t, 0.0, Overlap(a, group(schemas.MethodTag, 1)))
}
