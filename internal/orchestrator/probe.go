package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser/humanoid"
	"github.com/xkilldash9x/formpilot/internal/browser/scripts"
	"github.com/xkilldash9x/formpilot/internal/linkfinder"
	"github.com/xkilldash9x/formpilot/internal/relevance"
)

// ProbedField is a detected field with the type the classifier assigned it.
type ProbedField struct {
	Field schemas.FieldDescriptor
	Type  schemas.SemanticType
}

// ProbedForm is one detected group and its classified fields.
type ProbedForm struct {
	Form   schemas.DetectedForm
	Fields []ProbedField
}

// ProbeReport is a dry run of the analysis stages on a single page.
type ProbeReport struct {
	URL          string
	Relevance    relevance.Assessment
	Links        []linkfinder.Link
	Forms        []ProbedForm
	ManualFrames []schemas.FrameInfo
	Verification schemas.VerificationProbe
}

// Probe loads rawURL and reports what every analysis stage sees, without
// hopping, filling or submitting.
func (p *Processor) Probe(ctx context.Context, page schemas.PageSession, rawURL string) (*ProbeReport, error) {
	log := p.logger.With(zap.String("url", rawURL), zap.String("session_id", page.ID()))
	if err := p.navigate(ctx, page, rawURL); err != nil {
		return nil, err
	}
	current, err := page.CurrentURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read current url: %w", err)
	}
	pageHTML, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read page html: %w", err)
	}

	report := &ProbeReport{URL: current}
	if report.Relevance, err = p.relevance.Assess(pageHTML, current); err != nil {
		return nil, err
	}
	if report.Links, err = p.links.Find(pageHTML, current); err != nil {
		return nil, err
	}

	snap, err := scripts.TakeSnapshot(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("could not read the page: %w", err)
	}
	source := schemas.SourceContactPage
	if sameURL(current, rawURL) {
		source = schemas.SourceMainPage
	}
	detected := p.detector.Detect(snap, source)
	report.ManualFrames = detected.ManualFrames
	for _, form := range detected.Forms {
		pf := ProbedForm{Form: form}
		for _, f := range form.Fields {
			pf.Fields = append(pf.Fields, ProbedField{Field: f, Type: p.classifier.Classify(f)})
		}
		report.Forms = append(report.Forms, pf)
	}

	sub := p.submitter(page, humanoid.New(p.cfg.Browser().Humanoid, log, page), log)
	if report.Verification, err = sub.Probe(ctx); err != nil {
		return nil, err
	}
	log.Debug("Probe finished.", zap.Float64("score", report.Relevance.Score), zap.Int("forms", len(report.Forms)))
	return report, nil
}
