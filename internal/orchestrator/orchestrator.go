// Package orchestrator drives targets through the contact-form pipeline.
// Processor handles one target on one tab; Runner walks a batch, owning the
// browser, pacing, deduplication and run state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser/humanoid"
	"github.com/xkilldash9x/formpilot/internal/browser/scripts"
	"github.com/xkilldash9x/formpilot/internal/classify"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/formdetect"
	"github.com/xkilldash9x/formpilot/internal/inject"
	"github.com/xkilldash9x/formpilot/internal/keywords"
	"github.com/xkilldash9x/formpilot/internal/linkfinder"
	"github.com/xkilldash9x/formpilot/internal/metrics"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/relevance"
	"github.com/xkilldash9x/formpilot/internal/resolve"
	"github.com/xkilldash9x/formpilot/internal/submit"
)

// TargetProcessor produces exactly one outcome for a target on page.
type TargetProcessor interface {
	Process(ctx context.Context, page schemas.PageSession, target schemas.TargetRecord) schemas.ProcessingOutcome
}

// Processor runs the single-target flow: navigate, hop towards a contact
// page, detect forms, fill and submit.
type Processor struct {
	cfg        config.Interface
	tax        *keywords.Taxonomy
	logger     *zap.Logger
	metrics    *metrics.Metrics
	relevance  *relevance.Classifier
	links      *linkfinder.Finder
	detector   *formdetect.Detector
	classifier *classify.Classifier
	filler     *inject.Filler
	now        func() time.Time
}

var _ TargetProcessor = (*Processor)(nil)

// NewProcessor wires the pipeline stages from cfg. m may be nil.
func NewProcessor(cfg config.Interface, logger *zap.Logger, m *metrics.Metrics) (*Processor, error) {
	if cfg == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize processor with nil dependencies")
	}
	tax := cfg.Taxonomy()
	det := cfg.Detection()
	inj := cfg.Injection()
	msg := cfg.Message()

	classifier := classify.New(tax)
	resolver := resolve.New(resolve.Options{
		DefaultMessage: msg.Default,
		DateTime:       msg.DateTime,
		AutoCheckOther: inj.AutoCheckOther,
	})
	return &Processor{
		cfg:     cfg,
		tax:     tax,
		logger:  logger.Named("processor"),
		metrics: m,
		relevance: relevance.New(relevance.Config{
			Threshold:       det.RelevanceThreshold,
			URLExactBonus:   det.URLExactBonus,
			URLPartialBonus: det.URLPartialBonus,
		}, tax),
		links: linkfinder.New(tax),
		detector: formdetect.New(formdetect.Config{
			ClusterRadius:    det.ClusterRadius,
			KeywordRadius:    det.KeywordRadius,
			SubmitRadius:     det.SubmitRadius,
			OverlapThreshold: det.OverlapThreshold,
			MinGroupSize:     det.MinGroupSize,
		}, tax, logger),
		classifier: classifier,
		filler:     inject.NewFiller(classifier, resolver, tax, inj.FieldPauseMin, inj.FieldPauseMax, logger),
		now:        time.Now,
	}, nil
}

// outcomeBuilder accumulates the fields of the one outcome a target gets.
type outcomeBuilder struct {
	o   schemas.ProcessingOutcome
	now func() time.Time
}

func (b *outcomeBuilder) finish(status schemas.Status, message string) schemas.ProcessingOutcome {
	b.o.Status = status
	b.o.Message = message
	b.o.FinishedAt = b.now()
	return b.o
}

func (b *outcomeBuilder) fail(kind schemas.ErrorKind, message string, err error) schemas.ProcessingOutcome {
	b.o.ErrorKind = kind
	if err != nil {
		b.o.ErrorDetails = err.Error()
	}
	return b.finish(schemas.StatusFailed, message)
}

func (b *outcomeBuilder) manual(message, details string) schemas.ProcessingOutcome {
	b.o.ErrorKind = schemas.ErrorHumanVerification
	b.o.ErrorDetails = details
	return b.finish(schemas.StatusManualRequired, message)
}

// Process runs the whole flow for target. It never panics and always
// returns a finished outcome.
func (p *Processor) Process(ctx context.Context, page schemas.PageSession, target schemas.TargetRecord) (out schemas.ProcessingOutcome) {
	b := &outcomeBuilder{now: p.now}
	b.o.Target = target
	b.o.StartedAt = p.now()
	log := observability.ForTarget(p.logger, target).With(zap.String("session_id", page.ID()))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic while processing target.", zap.Any("panic", r), zap.Stack("stack"))
			out = b.fail(schemas.ErrorUnexpected, "unexpected error", fmt.Errorf("panic: %v", r))
		}
	}()

	out = p.process(ctx, page, target, b, log)
	log.Info("Target finished.",
		zap.String("status", string(out.Status)),
		zap.Int("filled", out.FilledFieldCount),
		zap.String("error_type", string(out.ErrorKind)),
		zap.Duration("duration", out.Duration()),
	)
	return out
}

func (p *Processor) process(ctx context.Context, page schemas.PageSession, target schemas.TargetRecord, b *outcomeBuilder, log *zap.Logger) schemas.ProcessingOutcome {
	stage := time.Now()
	if err := p.navigate(ctx, page, target.URL); err != nil {
		log.Warn("Navigation failed.", zap.Error(err))
		return b.fail(schemas.ErrorNavigation, "could not open the site", err)
	}

	landed, err := p.hop(ctx, page, target, log)
	if err != nil {
		if errors.Is(err, schemas.ErrNavigation) {
			return b.fail(schemas.ErrorNavigation, "could not reopen the site after a failed hop", err)
		}
		return b.fail(schemas.KindOf(err), "page analysis failed", err)
	}
	p.metrics.ObserveStage(metrics.StageNavigate, time.Since(stage))

	stage = time.Now()
	snap, err := scripts.TakeSnapshot(ctx, page)
	if err != nil {
		return b.fail(schemas.ErrorUnexpected, "could not read the page", err)
	}
	source := schemas.SourceContactPage
	if sameURL(landed, target.URL) {
		source = schemas.SourceMainPage
	}
	detected := p.detector.Detect(snap, source)
	p.metrics.ObserveStage(metrics.StageDetect, time.Since(stage))
	b.o.SourceURL = landed

	if len(detected.Forms) == 0 {
		if len(detected.ManualFrames) > 0 {
			srcs := make([]string, 0, len(detected.ManualFrames))
			for _, f := range detected.ManualFrames {
				srcs = append(srcs, f.Src)
			}
			log.Info("Form is embedded in a cross-origin frame.", zap.Strings("frames", srcs))
			return b.manual("form is embedded in a cross-origin frame", strings.Join(srcs, ", "))
		}
		return b.fail(schemas.ErrorNoFormFound, "no contact form found", schemas.ErrNoFormFound)
	}
	log.Debug("Forms detected.", zap.Int("groups", len(detected.Forms)), zap.String("best", string(detected.Forms[0].Method)))

	human := humanoid.New(p.cfg.Browser().Humanoid, log, page)
	sub := p.submitter(page, human, log)

	probe, err := sub.Probe(ctx)
	if err != nil {
		return b.fail(schemas.ErrorUnexpected, "verification probe failed", err)
	}
	if probe.Found {
		log.Info("Verification widget present. Leaving target for a human.", zap.Strings("markers", probe.Markers))
		return b.manual("human verification required", strings.Join(probe.Markers, ", "))
	}

	stage = time.Now()
	inj := p.cfg.Injection()
	injector := inject.New(page, human, p.tax, inject.Options{KeyDelayMin: inj.KeyDelayMin, KeyDelayMax: inj.KeyDelayMax}, log)
	sender := p.cfg.Sender()
	var (
		chosen   *schemas.DetectedForm
		failures []string
	)
	for i := range detected.Forms {
		if err := ctx.Err(); err != nil {
			return b.fail(schemas.ErrorUnexpected, "cancelled while filling", err)
		}
		form := detected.Forms[i]
		report := p.filler.Fill(ctx, injector, form, target, sender)
		for _, r := range report.Failed() {
			failures = append(failures, fmt.Sprintf("%s(%s)", r.Type, r.Field.Name))
		}
		if report.Filled > 0 {
			chosen = &detected.Forms[i]
			b.o.FilledFieldCount = report.Filled
			b.o.DetectionMethod = form.Method
			b.o.SourceURL = form.SourceURL
			break
		}
		log.Debug("Form group took no values. Trying the next one.", zap.String("root", form.Root))
	}
	p.metrics.ObserveStage(metrics.StageFill, time.Since(stage))
	if chosen == nil {
		err := schemas.NewError(schemas.ErrorFieldInjection, fmt.Errorf("no field accepted a value: %s", strings.Join(failures, ", ")))
		return b.fail(schemas.ErrorFieldInjection, "no field could be filled", err)
	}

	stage = time.Now()
	result, err := sub.Submit(ctx, *chosen)
	p.metrics.ObserveStage(metrics.StageSubmit, time.Since(stage))
	if err != nil {
		return b.fail(schemas.ErrorUnexpected, "submission failed", err)
	}
	switch {
	case result.ManualRequired:
		return b.manual("human verification required", result.Detail)
	case result.Success:
		return b.finish(schemas.StatusSuccess, fmt.Sprintf("submitted, confirmed by %s", result.Signal))
	default:
		detail := result.Detail
		if detail == "" {
			detail = "no success signal after submission"
		}
		return b.fail(schemas.ErrorSubmissionUncertain, "submission unconfirmed", errors.New(detail))
	}
}

// hop walks from the landing page towards a contact page and returns the
// URL the form search should run on.
func (p *Processor) hop(ctx context.Context, page schemas.PageSession, target schemas.TargetRecord, log *zap.Logger) (string, error) {
	current, err := page.CurrentURL(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read current url: %w", err)
	}
	visited := map[string]bool{normalizeURL(current): true, normalizeURL(target.URL): true}
	maxHops := p.cfg.Detection().MaxHops

	for hops := 0; ; {
		pageHTML, err := page.HTML(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to read page html: %w", err)
		}
		assessment, err := p.relevance.Assess(pageHTML, current)
		if err != nil {
			return "", err
		}
		log.Debug("Page scored.", zap.String("url", current), zap.Float64("score", assessment.Score), zap.Strings("signals", assessment.Signals))
		if assessment.IsFormPage || hops >= maxHops {
			return current, nil
		}

		next := ""
		if hops == 0 && target.ContactURL != "" && !visited[normalizeURL(target.ContactURL)] {
			next = target.ContactURL
		} else {
			links, err := p.links.Find(pageHTML, current)
			if err != nil {
				return "", err
			}
			for _, l := range links {
				if !visited[normalizeURL(l.URL)] {
					next = l.URL
					break
				}
			}
		}
		if next == "" {
			return current, nil
		}

		hops++
		visited[normalizeURL(next)] = true
		log.Info("Page is not a form page. Following link.", zap.String("from", current), zap.String("to", next), zap.Int("hop", hops))
		if err := p.navigate(ctx, page, next); err != nil {
			log.Warn("Hop navigation failed. Returning to the last good page.", zap.String("url", next), zap.Error(err))
			if err := p.navigate(ctx, page, current); err != nil {
				return "", schemas.NewError(schemas.ErrorNavigation, err)
			}
			continue
		}
		if current, err = page.CurrentURL(ctx); err != nil {
			return "", fmt.Errorf("failed to read current url: %w", err)
		}
		visited[normalizeURL(current)] = true
	}
}

// navigate loads rawURL within the navigation timeout and waits for the page
// to settle.
func (p *Processor) navigate(ctx context.Context, page schemas.PageSession, rawURL string) error {
	nc := p.cfg.Network()
	navCtx, cancel := context.WithTimeout(ctx, nc.NavigationTimeout)
	defer cancel()
	if err := page.Navigate(navCtx, rawURL); err != nil {
		return schemas.NewError(schemas.ErrorNavigation, fmt.Errorf("navigate to %s: %w", rawURL, err))
	}
	if nc.PostLoadWait > 0 {
		if err := page.Sleep(ctx, nc.PostLoadWait); err != nil {
			return schemas.NewError(schemas.ErrorNavigation, err)
		}
	}
	return nil
}

func (p *Processor) submitter(page schemas.PageSession, human humanoid.Controller, log *zap.Logger) *submit.Controller {
	sc := p.cfg.Submission()
	return submit.New(page, human, p.tax, submit.Options{PostClickDelay: sc.PostClickDelay, SettleDelay: sc.SettleDelay}, log)
}

// normalizeURL drops the fragment and a trailing slash so that trivially
// different spellings of one page compare equal.
func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	s := u.String()
	return strings.TrimSuffix(s, "/")
}

func sameURL(a, b string) bool {
	return normalizeURL(a) == normalizeURL(b)
}
