// Package submit triggers form submission and decides whether it worked.
// It handles the two-step input, confirm, send flow common on Japanese
// contact forms and refuses to submit when a verification widget is present.
package submit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser/humanoid"
	"github.com/xkilldash9x/formpilot/internal/browser/scripts"
	"github.com/xkilldash9x/formpilot/internal/keywords"
)

// errorSelectors locate visible validation messages after a submit.
var errorSelectors = []string{
	".error", ".errors", ".error-message", ".err", ".wpcf7-not-valid-tip", ".wpcf7-response-output",
	".is-error", ".has-error .help-block", ".invalid-feedback", ".mw_wp_form .error", "[role='alert']",
	"[aria-invalid='true'] + *",
}

// Options holds the fixed waits around a click.
type Options struct {
	PostClickDelay time.Duration
	SettleDelay    time.Duration
}

// Controller submits one form on one page.
type Controller struct {
	page   schemas.PageSession
	human  humanoid.Controller
	tax    *keywords.Taxonomy
	opts   Options
	logger *zap.Logger
}

// New creates a Controller. human may be nil, in which case clicks start at
// the script fallback.
func New(page schemas.PageSession, human humanoid.Controller, tax *keywords.Taxonomy, opts Options, logger *zap.Logger) *Controller {
	if tax == nil {
		tax = keywords.Default()
	}
	return &Controller{page: page, human: human, tax: tax, opts: opts, logger: logger.Named("submit")}
}

// Probe looks for human-verification widgets in every reachable document.
func (c *Controller) Probe(ctx context.Context) (schemas.VerificationProbe, error) {
	var probe schemas.VerificationProbe
	if err := scripts.Call(ctx, c.page, scripts.ProbeVerification, &probe, c.tax.VerificationMarkers); err != nil {
		return probe, fmt.Errorf("verification probe failed: %w", err)
	}
	return probe, nil
}

// Submit presses the form's submit control, follows a confirmation step when
// one appears and evaluates the result. The returned error is set only when
// the page could not be driven at all; an unconfirmed submission is reported
// through the outcome.
func (c *Controller) Submit(ctx context.Context, form schemas.DetectedForm) (schemas.SubmissionOutcome, error) {
	log := c.logger.With(zap.String("root", form.Root))

	if out, stop, err := c.probeGate(ctx, "before submit"); stop || err != nil {
		return out, err
	}

	candidates, err := c.candidates(ctx, form.Root, false)
	if err != nil {
		return schemas.SubmissionOutcome{}, err
	}
	before, err := c.signals(ctx)
	if err != nil {
		return schemas.SubmissionOutcome{}, fmt.Errorf("failed to read page before submit: %w", err)
	}
	if err := c.press(ctx, candidates, form.Root); err != nil {
		log.Info("No submit control could be triggered.", zap.Error(err))
		return schemas.SubmissionOutcome{FinalURL: before.URL, Signal: schemas.SignalNone, Detail: err.Error()}, nil
	}
	if err := c.page.Sleep(ctx, c.opts.PostClickDelay); err != nil {
		return schemas.SubmissionOutcome{}, err
	}

	sig, err := c.signals(ctx)
	if err != nil {
		return schemas.SubmissionOutcome{}, err
	}
	if out := Evaluate(before, sig, c.tax); out.Success {
		log.Info("Submission confirmed.", zap.String("signal", string(out.Signal)))
		return out, nil
	}

	confirmStep := false
	if IsConfirmPage(sig, c.tax) {
		confirmStep = true
		log.Info("Confirmation page reached.", zap.String("url", sig.URL))
		if out, stop, err := c.probeGate(ctx, "on confirmation page"); stop || err != nil {
			out.ConfirmStep = true
			return out, err
		}
		final, err := c.candidates(ctx, form.Root, true)
		if err != nil {
			return schemas.SubmissionOutcome{}, err
		}
		before = sig
		if err := c.press(ctx, final, ""); err != nil {
			log.Info("No terminal control on confirmation page.", zap.Error(err))
		}
	}

	if err := c.page.Sleep(ctx, c.opts.SettleDelay); err != nil {
		return schemas.SubmissionOutcome{}, err
	}
	sig, err = c.signals(ctx)
	if err != nil {
		return schemas.SubmissionOutcome{}, err
	}
	out := Evaluate(before, sig, c.tax)
	out.ConfirmStep = confirmStep
	if out.Success {
		log.Info("Submission confirmed.", zap.String("signal", string(out.Signal)), zap.Bool("confirm_step", confirmStep))
	} else {
		log.Info("Submission unconfirmed.", zap.String("detail", out.Detail))
	}
	return out, nil
}

// probeGate runs the verification probe and, on a hit, returns the manual
// outcome with stop set.
func (c *Controller) probeGate(ctx context.Context, when string) (schemas.SubmissionOutcome, bool, error) {
	probe, err := c.Probe(ctx)
	if err != nil {
		return schemas.SubmissionOutcome{}, false, err
	}
	if !probe.Found {
		return schemas.SubmissionOutcome{}, false, nil
	}
	url, _ := c.page.CurrentURL(ctx)
	c.logger.Info("Human verification detected.", zap.String("when", when), zap.Strings("markers", probe.Markers))
	return schemas.SubmissionOutcome{
		FinalURL:       url,
		Signal:         schemas.SignalNone,
		ManualRequired: true,
		Detail:         "human verification " + when + ": " + strings.Join(probe.Markers, ", "),
	}, true, nil
}

// candidates ranks controls inside the form root, falling back to the
// whole page when the root yields nothing usable.
func (c *Controller) candidates(ctx context.Context, root string, confirmStep bool) ([]schemas.ControlInfo, error) {
	var scoped []schemas.ControlInfo
	if root != "" {
		if err := scripts.Call(ctx, c.page, scripts.SubmitControls, &scoped, root); err != nil {
			return nil, err
		}
		if ranked := Rank(scoped, c.tax, confirmStep); len(ranked) > 0 {
			return ranked, nil
		}
	}
	var all []schemas.ControlInfo
	if err := scripts.Call(ctx, c.page, scripts.SubmitControls, &all, ""); err != nil {
		return nil, err
	}
	return Rank(all, c.tax, confirmStep), nil
}

// press triggers the best candidate: a humanoid pointer click, then a
// script click, then form.requestSubmit(). Only the first candidate is
// pressed; a submit must never fire twice.
func (c *Controller) press(ctx context.Context, candidates []schemas.ControlInfo, root string) error {
	if len(candidates) == 0 {
		if root == "" {
			return fmt.Errorf("no submit control found")
		}
		ok, err := scripts.Bool(ctx, c.page, scripts.RequestSubmit, root)
		if err != nil || !ok {
			return fmt.Errorf("no submit control found and form submission failed: %v", err)
		}
		return nil
	}
	target := candidates[0]
	log := c.logger.With(zap.String("control", target.Ref), zap.String("text", target.Text))

	if c.human != nil {
		err := c.human.IntelligentClick(ctx, target.Ref)
		if err == nil {
			log.Debug("Submit clicked with pointer.")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Debug("Pointer click failed, falling back.", zap.Error(err))
	}
	if ok, err := scripts.Bool(ctx, c.page, scripts.Click, target.Ref); err == nil && ok {
		log.Debug("Submit clicked by script.")
		return nil
	}
	ok, err := scripts.Bool(ctx, c.page, scripts.RequestSubmit, target.Ref)
	if err != nil {
		return fmt.Errorf("all submit triggers failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("all submit triggers failed for %s", target.Ref)
	}
	log.Debug("Form submitted via requestSubmit.")
	return nil
}

func (c *Controller) signals(ctx context.Context) (schemas.PageSignals, error) {
	var sig schemas.PageSignals
	if err := scripts.Call(ctx, c.page, scripts.PageSignals, &sig, errorSelectors); err != nil {
		return sig, fmt.Errorf("failed to read page state: %w", err)
	}
	return sig, nil
}
