// Package scripts holds the page-side JavaScript used by the engine. Every
// script is a function expression tagged with a short name, so a real browser
// session can evaluate it against the shared prelude and a fake page can
// dispatch on the tag alone.
package scripts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

const tagPrefix = "/*fp:"

// Script is a tagged function expression.
type Script struct {
	Tag    string
	Source string
}

// String renders the script with its tag comment.
func (s Script) String() string {
	return tagPrefix + s.Tag + "*/" + s.Source
}

// TagOf extracts the tag from a rendered script, or "" if it has none.
func TagOf(src string) string {
	src = strings.TrimSpace(src)
	if !strings.HasPrefix(src, tagPrefix) {
		return ""
	}
	rest := src[len(tagPrefix):]
	end := strings.Index(rest, "*/")
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// Compose builds a self-contained expression that installs the prelude and
// applies fn to the JSON-encoded args.
func Compose(fn string, args []interface{}) (string, error) {
	if args == nil {
		args = []interface{}{}
	}
	encoded, err := jsoniter.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode script arguments: %w", err)
	}
	var b strings.Builder
	b.WriteString("(function(){")
	b.WriteString(Prelude)
	b.WriteString("return (")
	b.WriteString(fn)
	b.WriteString(").apply(null, ")
	b.Write(encoded)
	b.WriteString(");})()")
	return b.String(), nil
}

// Executor is the subset of a page session needed to run scripts.
type Executor interface {
	ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error)
}

// Call runs s on the page and decodes the result into out. A null result
// leaves out untouched; out may be nil when the caller ignores the result.
func Call(ctx context.Context, page Executor, s Script, out interface{}, args ...interface{}) error {
	raw, err := page.ExecuteScript(ctx, s.String(), args)
	if err != nil {
		return fmt.Errorf("script %s failed: %w", s.Tag, err)
	}
	if out == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := jsoniter.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("script %s returned undecodable result: %w", s.Tag, err)
	}
	return nil
}

// Snapshot walks the main document and all same-origin frames and returns a
// schemas.DOMSnapshot.
var Snapshot = Script{Tag: "snapshot", Source: `function () {
  var skip = { hidden: 1, submit: 1, button: 1, reset: 1, image: 1, file: 1, password: 1, search: 1 };
  var out = { url: location.href, title: document.title, elements: [], forms: [], texts: [], controls: [], frames: [] };
  var order = 0;
  function ancestors(el) {
    var list = [];
    for (var p = el.parentElement; p && p.tagName !== 'HTML'; p = p.parentElement) list.push(__fp.ref(p));
    return list;
  }
  __fp.docs().forEach(function (d) {
    var doc = d.doc;
    var forms = doc.querySelectorAll('form');
    for (var i = 0; i < forms.length; i++) {
      var f = forms[i];
      out.forms.push({ ref: __fp.ref(f), frame: d.frame, action: f.getAttribute('action') || '', method: (f.getAttribute('method') || 'get').toLowerCase(), box: __fp.box(f, d) });
    }
    var nodes = doc.querySelectorAll('input, textarea, select, [contenteditable=""], [contenteditable="true"], [data-name], [data-field], [data-input]');
    for (var j = 0; j < nodes.length; j++) {
      var el = nodes[j];
      var tag = el.tagName.toLowerCase();
      var type = tag === 'select' ? 'select-one' : (el.getAttribute('type') || (tag === 'input' ? 'text' : '')).toLowerCase();
      if (tag === 'select' && el.multiple) type = 'select-multiple';
      if (tag === 'input' && skip[type]) continue;
      var editable = __fp.isEditable(el);
      if (['input', 'textarea', 'select'].indexOf(tag) < 0 && !editable && !el.hasAttribute('data-name') && !el.hasAttribute('data-field') && !el.hasAttribute('data-input')) continue;
      if (el.disabled || el.readOnly) continue;
      var vis = __fp.visible(el), proxy = false, b = __fp.box(el, d);
      if (!vis && (type === 'checkbox' || type === 'radio')) {
        var lab = __fp.labelEl(el);
        if (lab && __fp.visible(lab)) { vis = true; proxy = true; b = __fp.box(lab, d); }
      }
      var form = el.form || el.closest('form');
      var info = {
        ref: __fp.ref(el), frame: d.frame, order: order++, tag: tag, type: type,
        name: el.getAttribute('name') || el.getAttribute('data-name') || el.getAttribute('data-field') || '',
        id: el.id || '', placeholder: el.getAttribute('placeholder') || '',
        classes: Array.prototype.slice.call(el.classList || []),
        label: __fp.labelText(el), box: b, visible: vis, proxy: proxy, editable: editable,
        form: form ? __fp.ref(form) : '', required: !!el.required || el.getAttribute('aria-required') === 'true',
        ancestors: ancestors(el)
      };
      if (tag === 'select') {
        info.options = Array.prototype.map.call(el.options, function (o) {
          return { text: __fp.clean(o.text), value: o.value, disabled: !!o.disabled };
        });
      } else if (type === 'radio') {
        var own = __fp.labelEl(el);
        info.options = [{ text: own ? __fp.clean(own.innerText || own.textContent) : '', value: el.value }];
      }
      out.elements.push(info);
    }
    var walker = doc.createTreeWalker(doc.body || doc.documentElement, NodeFilter.SHOW_ELEMENT);
    for (var n = walker.currentNode; n; n = walker.nextNode()) {
      if (/^(SCRIPT|STYLE|NOSCRIPT|TEMPLATE|OPTION|SELECT|TEXTAREA)$/.test(n.tagName)) continue;
      var own = '';
      for (var c = n.firstChild; c; c = c.nextSibling) if (c.nodeType === 3) own += c.nodeValue;
      own = __fp.clean(own);
      if (own.length < 1 || own.length > 120 || !__fp.visible(n)) continue;
      out.texts.push({ ref: __fp.ref(n), frame: d.frame, text: own, box: __fp.box(n, d) });
    }
    var frames = doc.querySelectorAll('iframe, frame');
    for (var k = 0; k < frames.length; k++) {
      var fr = frames[k], same = false;
      try { same = !!(fr.contentDocument && fr.contentDocument.documentElement); } catch (e) { same = false; }
      out.frames.push({ ref: __fp.ref(fr), src: fr.src || fr.getAttribute('src') || '', sameOrigin: same, box: __fp.box(fr, d) });
    }
  });
  out.controls = __fp.controls(null);
  return out;
}`}

// Geometry scrolls the element (or its label, when preferLabel is set or the
// element has no area) into view and returns its viewport quad.
var Geometry = Script{Tag: "geometry", Source: `function (sel, preferLabel) {
  var el = __fp.find(sel);
  if (!el) return null;
  var target = el;
  var r = el.getBoundingClientRect();
  if (preferLabel || r.width <= 0 || r.height <= 0) {
    var lab = __fp.labelEl(el);
    if (lab && __fp.visible(lab)) target = lab;
  }
  target.scrollIntoView({ block: 'center', inline: 'center' });
  var d = null, all = __fp.docs();
  for (var i = 0; i < all.length; i++) if (all[i].doc === target.ownerDocument) d = all[i];
  r = target.getBoundingClientRect();
  if (r.width <= 0 || r.height <= 0) return null;
  var x = r.left + d.offX, y = r.top + d.offY;
  return {
    vertices: [x, y, x + r.width, y, x + r.width, y + r.height, x, y + r.height],
    width: Math.round(r.width), height: Math.round(r.height),
    tagName: target.tagName, type: target.getAttribute('type') || ''
  };
}`}

// SetValue writes value through the native setter and fires input, change
// and blur. Contenteditable regions get their text replaced.
var SetValue = Script{Tag: "setValue", Source: `function (sel, value) {
  var el = __fp.find(sel);
  if (!el) return false;
  if (__fp.isEditable(el)) {
    el.textContent = value;
    __fp.fire(el, ['input', 'change', 'blur']);
    return true;
  }
  __fp.nativeSet(el, value);
  __fp.fire(el, ['input', 'change', 'blur']);
  return true;
}`}

// Focus focuses and clicks the element without changing its value.
var Focus = Script{Tag: "focus", Source: `function (sel) {
  var el = __fp.find(sel);
  if (!el) return false;
  el.focus();
  if (typeof el.click === 'function' && ['checkbox', 'radio'].indexOf((el.type || '').toLowerCase()) < 0) el.click();
  return true;
}`}

// Clear empties the element and focuses it.
var Clear = Script{Tag: "clear", Source: `function (sel) {
  var el = __fp.find(sel);
  if (!el) return false;
  el.focus();
  if (__fp.isEditable(el)) el.textContent = ''; else __fp.nativeSet(el, '');
  __fp.fire(el, ['input']);
  return true;
}`}

// ReadState reads the element back as a schemas.ElementState.
var ReadState = Script{Tag: "readState", Source: `function (sel) {
  var el = __fp.find(sel);
  if (!el) return { found: false };
  var st = { found: true, value: '', checked: false, selectedIndex: -1, selectedText: '', selectedValue: '' };
  if (__fp.isEditable(el)) { st.value = el.innerText; return st; }
  if (el.tagName === 'SELECT') {
    st.selectedIndex = el.selectedIndex;
    var o = el.options[el.selectedIndex];
    if (o) { st.selectedText = __fp.clean(o.text); st.selectedValue = o.value; }
    st.value = el.value;
    return st;
  }
  st.value = el.value == null ? '' : String(el.value);
  st.checked = !!el.checked;
  return st;
}`}

// SetChecked sets a checkbox or radio directly and fires the usual events.
var SetChecked = Script{Tag: "setChecked", Source: `function (sel, checked) {
  var el = __fp.find(sel);
  if (!el) return false;
  el.checked = !!checked;
  __fp.fire(el, ['input', 'change']);
  return true;
}`}

// Click performs a programmatic click on the element.
var Click = Script{Tag: "click", Source: `function (sel) {
  var el = __fp.find(sel);
  if (!el) return false;
  el.click();
  return true;
}`}

// ClickLabel clicks the label associated with a checkable element.
var ClickLabel = Script{Tag: "clickLabel", Source: `function (sel) {
  var el = __fp.find(sel);
  if (!el) return false;
  var lab = __fp.labelEl(el);
  if (!lab) return false;
  lab.click();
  return true;
}`}

// SelectIndex selects an option by index and fires change.
var SelectIndex = Script{Tag: "selectIndex", Source: `function (sel, index) {
  var el = __fp.find(sel);
  if (!el || el.tagName !== 'SELECT' || index < 0 || index >= el.options.length) return false;
  el.selectedIndex = index;
  __fp.fire(el, ['input', 'change']);
  return true;
}`}

// FireChange dispatches a change event, used after a driver-level SetValue.
var FireChange = Script{Tag: "fireChange", Source: `function (sel) {
  var el = __fp.find(sel);
  if (!el) return false;
  __fp.fire(el, ['input', 'change']);
  return true;
}`}

// ProbeVerification checks every document for the given CSS markers and
// returns the ones that matched a visible or widget element.
var ProbeVerification = Script{Tag: "probeVerification", Source: `function (markers) {
  var hits = [];
  __fp.docs().forEach(function (d) {
    markers.forEach(function (m) {
      var found = null;
      try { found = d.doc.querySelector(m); } catch (e) { found = null; }
      if (found && hits.indexOf(m) < 0) hits.push(m);
    });
  });
  return { found: hits.length > 0, markers: hits };
}`}

// SubmitControls lists clickable controls within the scope element, or the
// whole page when scope is empty or no longer present.
var SubmitControls = Script{Tag: "submitControls", Source: `function (scope) {
  var root = scope ? __fp.find(scope) : null;
  return __fp.controls(root);
}`}

// PageSignals captures the current URL, title, visible text and any
// validation messages matching the given selectors.
var PageSignals = Script{Tag: "pageSignals", Source: `function (errorSelectors) {
  var body = document.body;
  var text = body ? (body.innerText || body.textContent || '') : '';
  var errors = [];
  (errorSelectors || []).forEach(function (s) {
    var nodes = [];
    try { nodes = document.querySelectorAll(s); } catch (e) { nodes = []; }
    for (var i = 0; i < nodes.length && errors.length < 10; i++) {
      var t = __fp.clean(nodes[i].innerText || nodes[i].textContent);
      if (t && __fp.visible(nodes[i])) errors.push(t.slice(0, 200));
    }
  });
  return { url: location.href, title: document.title, text: text.slice(0, 20000), errors: errors };
}`}

// RequestSubmit submits the form owning sel, or sel itself when it is a form.
var RequestSubmit = Script{Tag: "requestSubmit", Source: `function (sel) {
  var el = __fp.find(sel);
  if (!el) return false;
  var form = el.tagName === 'FORM' ? el : (el.form || el.closest('form'));
  if (!form) return false;
  if (typeof form.requestSubmit === 'function') form.requestSubmit(); else form.submit();
  return true;
}`}

// All lists every script, for diagnostics and tests.
var All = []Script{
	Snapshot, Geometry, SetValue, Focus, Clear, ReadState, SetChecked, Click,
	ClickLabel, SelectIndex, FireChange, ProbeVerification, SubmitControls,
	PageSignals, RequestSubmit,
}

// Helpers with typed results.

// TakeSnapshot runs Snapshot.
func TakeSnapshot(ctx context.Context, page Executor) (*schemas.DOMSnapshot, error) {
	var snap schemas.DOMSnapshot
	if err := Call(ctx, page, Snapshot, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// State runs ReadState.
func State(ctx context.Context, page Executor, handle string) (schemas.ElementState, error) {
	var st schemas.ElementState
	err := Call(ctx, page, ReadState, &st, handle)
	return st, err
}

// Bool runs a script that reports success as a boolean.
func Bool(ctx context.Context, page Executor, s Script, args ...interface{}) (bool, error) {
	var ok bool
	err := Call(ctx, page, s, &ok, args...)
	return ok, err
}
