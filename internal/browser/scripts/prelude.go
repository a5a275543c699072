package scripts

// Prelude defines the __fp helper object every script can rely on. It walks
// the main document plus all same-origin frames, and hands out stable
// data-fp-ref handles that resolve in any of them.
const Prelude = `
var __fp = (function () {
  var top = window;
  function ref(el) {
    if (!el.hasAttribute('data-fp-ref')) {
      top.__fpSeq = (top.__fpSeq || 0) + 1;
      el.setAttribute('data-fp-ref', String(top.__fpSeq));
    }
    return '[data-fp-ref="' + el.getAttribute('data-fp-ref') + '"]';
  }
  function docs() {
    var out = [{ doc: document, frame: '', offX: 0, offY: 0 }];
    for (var i = 0; i < out.length; i++) {
      var d = out[i];
      var frames = d.doc.querySelectorAll('iframe, frame');
      for (var j = 0; j < frames.length; j++) {
        var f = frames[j], inner = null;
        try { inner = f.contentDocument; } catch (e) { inner = null; }
        if (inner && inner.documentElement) {
          var r = f.getBoundingClientRect();
          out.push({ doc: inner, frame: ref(f), offX: d.offX + r.left, offY: d.offY + r.top });
        }
      }
    }
    return out;
  }
  function find(sel) {
    var all = docs();
    for (var i = 0; i < all.length; i++) {
      var el = null;
      try { el = all[i].doc.querySelector(sel); } catch (e) { return null; }
      if (el) return el;
    }
    return null;
  }
  function ctxOf(el) {
    var all = docs();
    for (var i = 0; i < all.length; i++) {
      if (all[i].doc === el.ownerDocument) return all[i];
    }
    return all[0];
  }
  function box(el, d) {
    d = d || ctxOf(el);
    var r = el.getBoundingClientRect();
    return { x: r.left + d.offX + top.scrollX, y: r.top + d.offY + top.scrollY, width: r.width, height: r.height };
  }
  function visible(el) {
    if (!el || !el.getBoundingClientRect) return false;
    var r = el.getBoundingClientRect();
    if (r.width <= 0 || r.height <= 0) return false;
    var view = el.ownerDocument.defaultView || window;
    var s = view.getComputedStyle(el);
    return s.display !== 'none' && s.visibility !== 'hidden' && s.opacity !== '0';
  }
  function clean(t) { return (t || '').replace(/\s+/g, ' ').trim(); }
  function labelEl(el) {
    if (el.labels && el.labels.length) return el.labels[0];
    var wrap = el.closest ? el.closest('label') : null;
    if (wrap) return wrap;
    if (el.id) {
      try { return el.ownerDocument.querySelector('label[for="' + CSS.escape(el.id) + '"]'); } catch (e) { return null; }
    }
    return null;
  }
  function contextLabel(el) {
    var cell = el.closest ? el.closest('td, dd') : null;
    if (cell) {
      var row = cell.parentElement;
      if (cell.tagName === 'TD' && row) {
        var th = row.querySelector('th');
        if (th) return clean(th.innerText || th.textContent);
      }
      if (cell.tagName === 'DD') {
        var dt = cell.previousElementSibling;
        if (dt && dt.tagName === 'DT') return clean(dt.innerText || dt.textContent);
      }
    }
    var fs = el.closest ? el.closest('fieldset') : null;
    if (fs) {
      var lg = fs.querySelector('legend');
      if (lg) return clean(lg.innerText || lg.textContent);
    }
    for (var p = el, depth = 0; p && depth < 3; p = p.parentElement, depth++) {
      var prev = p.previousElementSibling;
      if (prev && !prev.querySelector('input, textarea, select')) {
        var t = clean(prev.innerText || prev.textContent);
        if (t && t.length <= 60) return t;
      }
    }
    return '';
  }
  function labelText(el) {
    var parts = [];
    var l = labelEl(el);
    if (l) parts.push(clean(l.innerText || l.textContent));
    var aria = el.getAttribute('aria-label');
    if (aria) parts.push(clean(aria));
    var by = el.getAttribute('aria-labelledby');
    if (by) {
      by.split(/\s+/).forEach(function (id) {
        var n = el.ownerDocument.getElementById(id);
        if (n) parts.push(clean(n.textContent));
      });
    }
    var type = (el.getAttribute('type') || '').toLowerCase();
    if (!parts.length || type === 'checkbox' || type === 'radio') {
      var c = contextLabel(el);
      if (c) parts.push(c);
    }
    return parts.join(' ').slice(0, 200);
  }
  function controlText(el) {
    return clean(el.innerText || el.value || el.getAttribute('aria-label') || el.getAttribute('alt') || el.getAttribute('title') || '');
  }
  var controlSel = 'button, input[type="submit"], input[type="button"], input[type="image"], [role="button"], a.btn, a.button, a[class*="submit"], a[class*="send"], a[class*="confirm"]';
  function controls(scope) {
    var out = [], order = 0;
    docs().forEach(function (d) {
      var root = d.doc;
      if (scope && scope.ownerDocument !== d.doc) return;
      var nodes = (scope || root).querySelectorAll(controlSel);
      for (var i = 0; i < nodes.length; i++) {
        var el = nodes[i];
        var form = el.form || (el.closest ? el.closest('form') : null);
        out.push({
          ref: ref(el), frame: d.frame, order: order++,
          tag: el.tagName.toLowerCase(),
          type: (el.getAttribute('type') || (el.tagName === 'BUTTON' ? 'submit' : '')).toLowerCase(),
          text: controlText(el), form: form ? ref(form) : '',
          box: box(el, d), visible: visible(el)
        });
      }
    });
    return out;
  }
  function fire(el, names) {
    names.forEach(function (n) {
      el.dispatchEvent(new Event(n, { bubbles: true }));
    });
  }
  function nativeSet(el, value) {
    var view = el.ownerDocument.defaultView || window;
    var proto = el.tagName === 'TEXTAREA' ? view.HTMLTextAreaElement.prototype : view.HTMLInputElement.prototype;
    var desc = Object.getOwnPropertyDescriptor(proto, 'value');
    if (desc && desc.set) desc.set.call(el, value); else el.value = value;
  }
  function isEditable(el) {
    return el.isContentEditable && ['INPUT', 'TEXTAREA', 'SELECT'].indexOf(el.tagName) < 0;
  }
  return { ref: ref, docs: docs, find: find, box: box, visible: visible, clean: clean, labelEl: labelEl,
           labelText: labelText, controls: controls, fire: fire, nativeSet: nativeSet, isEditable: isEditable };
})();
`
