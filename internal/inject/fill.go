package inject

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/classify"
	"github.com/xkilldash9x/formpilot/internal/keywords"
	"github.com/xkilldash9x/formpilot/internal/resolve"
)

// FillReport summarizes one form fill.
type FillReport struct {
	Results []schemas.InjectionResult
	Filled  int
}

// Failed returns the results that did not verify.
func (r FillReport) Failed() []schemas.InjectionResult {
	var out []schemas.InjectionResult
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res)
		}
	}
	return out
}

// Filler classifies, resolves and injects every field of a detected form.
type Filler struct {
	classifier *classify.Classifier
	resolver   *resolve.Resolver
	tax        *keywords.Taxonomy
	logger     *zap.Logger

	pauseMin, pauseMax time.Duration
	mu                 sync.Mutex
	rng                *rand.Rand
}

// NewFiller builds a Filler. pauseMin and pauseMax bound the pause taken
// after each successfully written field.
func NewFiller(c *classify.Classifier, r *resolve.Resolver, tax *keywords.Taxonomy, pauseMin, pauseMax time.Duration, logger *zap.Logger) *Filler {
	if tax == nil {
		tax = keywords.Default()
	}
	return &Filler{
		classifier: c,
		resolver:   r,
		tax:        tax,
		logger:     logger.Named("filler"),
		pauseMin:   pauseMin,
		pauseMax:   pauseMax,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fill writes every field of form that has a value. Radio groups, and
// checkbox groups answered with text, are resolved to one member and filled
// once. A failing field never stops the rest of the form.
func (f *Filler) Fill(ctx context.Context, in *Injector, form schemas.DetectedForm, target schemas.TargetRecord, sender schemas.SenderProfile) FillReport {
	var report FillReport
	doneGroups := make(map[string]bool)

	for _, field := range form.Fields {
		if ctx.Err() != nil {
			break
		}
		t := f.classifier.Classify(field)
		newsletter := f.classifier.IsNewsletter(field)
		hint := resolve.Hint{InputType: field.InputType, Newsletter: newsletter}
		if t == schemas.TypeFurigana {
			hint.NamePart = f.classifier.NamePart(field)
		}
		v := f.resolver.Resolve(t, target, sender, hint)
		if v.Skip() {
			continue
		}

		kind := field.Kind()
		choice := kind == schemas.KindRadio || (kind == schemas.KindCheckbox && v.Kind == resolve.KindText)
		if choice && field.Name != "" {
			key := string(kind) + ":" + field.Name
			if doneGroups[key] {
				continue
			}
			doneGroups[key] = true
			group := groupOf(form.Fields, field)
			if len(group) > 1 || kind == schemas.KindRadio {
				res, ok := f.fillChoice(ctx, in, group, t, v)
				if !ok {
					continue
				}
				report.add(res)
				if res.Success {
					f.pause(ctx, in)
				}
				continue
			}
		}

		res := in.Inject(ctx, field, t, v)
		report.add(res)
		if res.Success {
			f.pause(ctx, in)
		}
	}
	f.logger.Debug("Form filled.",
		zap.String("root", form.Root),
		zap.Int("filled", report.Filled),
		zap.Int("attempted", len(report.Results)))
	return report
}

func (r *FillReport) add(res schemas.InjectionResult) {
	r.Results = append(r.Results, res)
	if res.Success {
		r.Filled++
	}
}

// fillChoice picks the group member for v and checks it. It reports false
// when no member fits, in which case nothing was attempted.
func (f *Filler) fillChoice(ctx context.Context, in *Injector, group []schemas.FieldDescriptor, t schemas.SemanticType, v resolve.Value) (schemas.InjectionResult, bool) {
	idx := -1
	switch v.Kind {
	case resolve.KindText:
		idx = MatchChoice(group, v.Text, t, f.tax)
		if idx < 0 && group[0].Kind() == schemas.KindRadio {
			// A required radio group still needs an answer.
			idx = firstUsable(group)
		}
	case resolve.KindBool:
		if v.Bool {
			idx = 0
		}
	}
	if idx < 0 {
		return schemas.InjectionResult{}, false
	}
	res := in.Inject(ctx, group[idx], t, resolve.Bool(true))
	res.Value = v.String()
	return res, true
}

func firstUsable(group []schemas.FieldDescriptor) int {
	for i, g := range group {
		if !IsPlaceholder(radioOption(g)) {
			return i
		}
	}
	return 0
}

// groupOf collects the members of field's named group in document order.
func groupOf(fields []schemas.FieldDescriptor, field schemas.FieldDescriptor) []schemas.FieldDescriptor {
	var group []schemas.FieldDescriptor
	for _, g := range fields {
		if g.Name == field.Name && g.Kind() == field.Kind() && g.Frame == field.Frame {
			group = append(group, g)
		}
	}
	return group
}

func (f *Filler) pause(ctx context.Context, in *Injector) {
	if f.pauseMax <= 0 {
		return
	}
	d := f.pauseMin
	if f.pauseMax > f.pauseMin {
		f.mu.Lock()
		d += time.Duration(f.rng.Int63n(int64(f.pauseMax - f.pauseMin)))
		f.mu.Unlock()
	}
	_ = in.page.Sleep(ctx, d)
}
