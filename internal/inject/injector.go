// Package inject writes resolved values into form fields. Each write is tried
// through an ordered list of strategies and only counts once the element
// reads back exactly the intended state.
package inject

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser/humanoid"
	"github.com/xkilldash9x/formpilot/internal/browser/scripts"
	"github.com/xkilldash9x/formpilot/internal/keywords"
	"github.com/xkilldash9x/formpilot/internal/resolve"
)

// errNotApplicable marks a strategy that cannot serve the current element.
var errNotApplicable = errors.New("strategy not applicable")

// Options tunes keystroke timing for the keystroke strategy.
type Options struct {
	KeyDelayMin time.Duration
	KeyDelayMax time.Duration
}

// intent is the verified end state a strategy must reach.
type intent struct {
	field   schemas.FieldDescriptor
	text    string
	checked bool
	index   int
	option  schemas.Option
}

// Strategy is one way of writing a value. A nil function means the strategy
// has nothing to offer for that kind of element.
type Strategy struct {
	Name   string
	Text   func(ctx context.Context, in *Injector, it intent) error
	Check  func(ctx context.Context, in *Injector, it intent) error
	Select func(ctx context.Context, in *Injector, it intent) error
}

// Strategies is the ordered fallback chain; a result's Method is the 1-based
// position of the strategy that verified.
var Strategies = []Strategy{
	{Name: "direct", Text: directText, Check: directCheck, Select: directSelect},
	{Name: "focus", Text: focusText, Check: focusCheck, Select: focusSelect},
	{Name: "keystroke", Text: keystrokeText, Check: keystrokeCheck},
	{Name: "setvalue", Text: setValueText, Check: labelCheck, Select: setValueSelect},
	{Name: "keyboard", Text: keyboardText, Check: pointerCheck},
}

// Injector writes values into the fields of one page.
type Injector struct {
	page   schemas.PageSession
	human  humanoid.Controller
	tax    *keywords.Taxonomy
	logger *zap.Logger
	opts   Options

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an Injector for page. human may be nil, which disables the
// pointer-driven strategy.
func New(page schemas.PageSession, human humanoid.Controller, tax *keywords.Taxonomy, opts Options, logger *zap.Logger) *Injector {
	if tax == nil {
		tax = keywords.Default()
	}
	return &Injector{
		page:   page,
		human:  human,
		tax:    tax,
		logger: logger.Named("injector"),
		opts:   opts,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Inject writes value into field and reports whether a verified write
// happened. It never panics and never returns early on a strategy error.
func (in *Injector) Inject(ctx context.Context, field schemas.FieldDescriptor, t schemas.SemanticType, value resolve.Value) schemas.InjectionResult {
	res := schemas.InjectionResult{Field: field, Type: t, Value: value.String()}
	log := in.logger.With(zap.String("handle", field.Handle), zap.String("type", string(t)))

	it, err := in.intentFor(field, t, value)
	if err != nil {
		res.Err = schemas.NewError(schemas.ErrorFieldInjection, err)
		log.Debug("Field cannot take value.", zap.Error(err))
		return res
	}

	kind := field.Kind()
	var lastErr error
	for i, s := range Strategies {
		fn := s.forKind(kind)
		if fn == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		err := in.attempt(ctx, s.Name, fn, it)
		if errors.Is(err, errNotApplicable) {
			continue
		}
		if err != nil {
			log.Debug("Injection strategy failed.", zap.String("strategy", s.Name), zap.Error(err))
			lastErr = err
			continue
		}
		ok, verr := in.verify(ctx, it)
		if verr != nil {
			lastErr = verr
			continue
		}
		if ok {
			res.Success = true
			res.Method = i + 1
			log.Debug("Field injected.", zap.String("strategy", s.Name))
			return res
		}
		lastErr = fmt.Errorf("%s: read-back did not match", s.Name)
	}
	if lastErr == nil {
		lastErr = errors.New("no strategy applied")
	}
	res.Err = schemas.NewError(schemas.ErrorFieldInjection, lastErr)
	log.Info("All injection strategies failed.", zap.Error(lastErr))
	return res
}

func (s Strategy) forKind(k schemas.FieldKind) func(context.Context, *Injector, intent) error {
	switch k {
	case schemas.KindCheckbox, schemas.KindRadio:
		return s.Check
	case schemas.KindSelect:
		return s.Select
	}
	return s.Text
}

// attempt runs one strategy with panics converted to errors.
func (in *Injector) attempt(ctx context.Context, name string, fn func(context.Context, *Injector, intent) error, it intent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	return fn(ctx, in, it)
}

func (in *Injector) intentFor(field schemas.FieldDescriptor, t schemas.SemanticType, value resolve.Value) (intent, error) {
	it := intent{field: field, index: -1}
	switch field.Kind() {
	case schemas.KindCheckbox, schemas.KindRadio:
		switch value.Kind {
		case resolve.KindBool:
			it.checked = value.Bool
		case resolve.KindText:
			it.checked = strings.TrimSpace(value.Text) != ""
		default:
			return it, errors.New("no value")
		}
		if field.Kind() == schemas.KindRadio && !it.checked {
			return it, errors.New("a radio button cannot be cleared")
		}
	case schemas.KindSelect:
		if value.Kind != resolve.KindText {
			return it, errors.New("select needs a text value")
		}
		idx := MatchOption(field.Options, value.Text, t, in.tax)
		if idx < 0 {
			return it, fmt.Errorf("no option matches %q", value.Text)
		}
		it.index, it.option = idx, field.Options[idx]
	default:
		if value.Kind != resolve.KindText {
			return it, errors.New("text field needs a text value")
		}
		it.text = normalizeNewlines(value.Text)
	}
	return it, nil
}

// verify reads the element back and compares it with the intent.
func (in *Injector) verify(ctx context.Context, it intent) (bool, error) {
	st, err := scripts.State(ctx, in.page, it.field.Handle)
	if err != nil {
		return false, err
	}
	if !st.Found {
		return false, fmt.Errorf("element %s is gone", it.field.Handle)
	}
	switch it.field.Kind() {
	case schemas.KindCheckbox, schemas.KindRadio:
		return st.Checked == it.checked, nil
	case schemas.KindSelect:
		return st.SelectedIndex == it.index, nil
	case schemas.KindEditable:
		return strings.TrimRight(normalizeNewlines(st.Value), "\n") == strings.TrimRight(it.text, "\n"), nil
	}
	return normalizeNewlines(st.Value) == it.text, nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
}

func (in *Injector) keyDelay() time.Duration {
	lo, hi := in.opts.KeyDelayMin, in.opts.KeyDelayMax
	if hi <= 0 {
		return 0
	}
	if hi <= lo {
		return lo
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return lo + time.Duration(in.rng.Int63n(int64(hi-lo)))
}

// needsToggle reports whether a checkable is not yet in the wanted state.
func (in *Injector) needsToggle(ctx context.Context, it intent) (bool, error) {
	st, err := scripts.State(ctx, in.page, it.field.Handle)
	if err != nil {
		return false, err
	}
	return st.Checked != it.checked, nil
}

func mustFind(ok bool, err error, what string, it intent) error {
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: element %s not found", what, it.field.Handle)
	}
	return nil
}

// -- Text strategies --

func directText(ctx context.Context, in *Injector, it intent) error {
	ok, err := scripts.Bool(ctx, in.page, scripts.SetValue, it.field.Handle, it.text)
	return mustFind(ok, err, "set value", it)
}

func focusText(ctx context.Context, in *Injector, it intent) error {
	ok, err := scripts.Bool(ctx, in.page, scripts.Focus, it.field.Handle)
	if err := mustFind(ok, err, "focus", it); err != nil {
		return err
	}
	return directText(ctx, in, it)
}

func keystrokeText(ctx context.Context, in *Injector, it intent) error {
	ok, err := scripts.Bool(ctx, in.page, scripts.Clear, it.field.Handle)
	if err := mustFind(ok, err, "clear", it); err != nil {
		return err
	}
	for _, r := range it.text {
		key := string(r)
		if r == '\n' {
			key = "\r"
		}
		if err := in.page.SendKeys(ctx, key); err != nil {
			return fmt.Errorf("typing failed: %w", err)
		}
		if d := in.keyDelay(); d > 0 {
			if err := in.page.Sleep(ctx, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func setValueText(ctx context.Context, in *Injector, it intent) error {
	if it.field.Frame != "" || it.field.Kind() == schemas.KindEditable {
		return errNotApplicable
	}
	if err := in.page.SetValue(ctx, it.field.Handle, it.text); err != nil {
		return err
	}
	_, err := scripts.Bool(ctx, in.page, scripts.FireChange, it.field.Handle)
	return err
}

func keyboardText(ctx context.Context, in *Injector, it intent) error {
	if in.human == nil {
		return errNotApplicable
	}
	if err := in.human.IntelligentClick(ctx, it.field.Handle); err != nil {
		return err
	}
	if err := in.human.Shortcut(ctx, "ctrl+a"); err != nil {
		return err
	}
	if err := in.human.Shortcut(ctx, "Delete"); err != nil {
		return err
	}
	return in.human.TypeText(ctx, it.text)
}

// -- Checkbox and radio strategies --

func directCheck(ctx context.Context, in *Injector, it intent) error {
	ok, err := scripts.Bool(ctx, in.page, scripts.SetChecked, it.field.Handle, it.checked)
	return mustFind(ok, err, "set checked", it)
}

// toggleWith focuses the element (when focus is set) and runs act only when
// the current state differs from the intent.
func toggleWith(ctx context.Context, in *Injector, it intent, focus bool, act func() error) error {
	if focus {
		ok, err := scripts.Bool(ctx, in.page, scripts.Focus, it.field.Handle)
		if err := mustFind(ok, err, "focus", it); err != nil {
			return err
		}
	}
	toggle, err := in.needsToggle(ctx, it)
	if err != nil || !toggle {
		return err
	}
	return act()
}

func focusCheck(ctx context.Context, in *Injector, it intent) error {
	return toggleWith(ctx, in, it, true, func() error {
		ok, err := scripts.Bool(ctx, in.page, scripts.Click, it.field.Handle)
		return mustFind(ok, err, "click", it)
	})
}

func keystrokeCheck(ctx context.Context, in *Injector, it intent) error {
	return toggleWith(ctx, in, it, true, func() error {
		return in.page.SendKeys(ctx, " ")
	})
}

func labelCheck(ctx context.Context, in *Injector, it intent) error {
	return toggleWith(ctx, in, it, false, func() error {
		ok, err := scripts.Bool(ctx, in.page, scripts.ClickLabel, it.field.Handle)
		return mustFind(ok, err, "label click", it)
	})
}

func pointerCheck(ctx context.Context, in *Injector, it intent) error {
	if in.human == nil {
		return errNotApplicable
	}
	return toggleWith(ctx, in, it, false, func() error {
		return in.human.IntelligentClick(ctx, it.field.Handle)
	})
}

// -- Select strategies --

func directSelect(ctx context.Context, in *Injector, it intent) error {
	ok, err := scripts.Bool(ctx, in.page, scripts.SelectIndex, it.field.Handle, it.index)
	return mustFind(ok, err, "select index", it)
}

func focusSelect(ctx context.Context, in *Injector, it intent) error {
	ok, err := scripts.Bool(ctx, in.page, scripts.Focus, it.field.Handle)
	if err := mustFind(ok, err, "focus", it); err != nil {
		return err
	}
	return directSelect(ctx, in, it)
}

func setValueSelect(ctx context.Context, in *Injector, it intent) error {
	if it.field.Frame != "" || it.option.Value == "" {
		return errNotApplicable
	}
	if err := in.page.SetValue(ctx, it.field.Handle, it.option.Value); err != nil {
		return err
	}
	_, err := scripts.Bool(ctx, in.page, scripts.FireChange, it.field.Handle)
	return err
}
