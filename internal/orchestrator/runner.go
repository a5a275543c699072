package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/metrics"
	"github.com/xkilldash9x/formpilot/internal/observability"
)

// DedupStore remembers outcomes across runs so a company is not contacted
// twice within the retention window.
type DedupStore interface {
	HasRecentSuccess(ctx context.Context, companyName, url string, since time.Time) (bool, error)
	Append(ctx context.Context, runID string, outcome schemas.ProcessingOutcome) error
}

const (
	reasonStopped   = "run stopped"
	reasonDuplicate = "already contacted successfully within the retention window"
)

// RunnerConfig holds the batch settings.
type RunnerConfig struct {
	Mode      schemas.RunMode
	Retention time.Duration
}

// Option customizes a Runner.
type Option func(*Runner)

// WithStore enables deduplication and outcome persistence.
func WithStore(s DedupStore) Option { return func(r *Runner) { r.store = s } }

// WithPacer replaces the default pacer.
func WithPacer(p Pacer) Option { return func(r *Runner) { r.pacer = p } }

// WithNotifier receives progress updates.
func WithNotifier(n Notifier) Option { return func(r *Runner) { r.notifier = n } }

// WithMetrics records outcomes to m.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Runner) { r.metrics = m } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// Runner processes a batch of targets one at a time. It owns the browser for
// the duration of a run.
type Runner struct {
	browser   schemas.BrowserManager
	processor TargetProcessor
	cfg       RunnerConfig
	logger    *zap.Logger

	store    DedupStore
	pacer    Pacer
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time

	runMu   sync.Mutex
	running atomic.Bool
	state   *RunState
}

// NewRunner creates a Runner. Without WithPacer targets are not spaced out.
func NewRunner(browser schemas.BrowserManager, processor TargetProcessor, cfg RunnerConfig, logger *zap.Logger, opts ...Option) (*Runner, error) {
	if browser == nil || processor == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize runner with nil dependencies")
	}
	switch cfg.Mode {
	case schemas.ModeSequential, schemas.ModeSupervised:
	case "":
		cfg.Mode = schemas.ModeSequential
	default:
		return nil, fmt.Errorf("unknown run mode %q", cfg.Mode)
	}
	r := &Runner{
		browser:   browser,
		processor: processor,
		cfg:       cfg,
		logger:    logger.Named("runner"),
		pacer:     NewPacer(0),
		notifier:  nopNotifier{},
		now:       time.Now,
		state:     newRunState(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if w, ok := browser.(TabWatcher); ok {
		w.OnTabClosed(r.tabClosed)
	}
	return r, nil
}

// TabWatcher is implemented by browsers that report tabs closed outside the
// runner, such as by an operator in supervised mode.
type TabWatcher interface {
	OnTabClosed(fn func(tabID string))
}

func (r *Runner) tabClosed(tabID string) {
	if !r.state.removePending(tabID) {
		return
	}
	pending := len(r.state.Snapshot().Pending)
	r.metrics.SetPendingTabs(pending)
	r.logger.Info("Pending tab closed.", zap.String("session_id", tabID), zap.Int("pending_tabs", pending))
}

// Stop asks the runner to finish after the current target. Targets not yet
// started are reported as skipped.
func (r *Runner) Stop() {
	if r.running.CompareAndSwap(true, false) {
		r.logger.Info("Stop requested. Finishing the current target.")
	}
}

// State returns the current running totals.
func (r *Runner) State() StateSnapshot {
	return r.state.Snapshot()
}

// Run processes targets in order and returns a summary holding exactly one
// outcome per target. Stop and ctx are honored between targets only.
func (r *Runner) Run(ctx context.Context, runID string, targets []schemas.TargetRecord) schemas.RunSummary {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.state.begin(runID, r.cfg.Mode, len(targets), r.now())
	r.running.Store(true)
	log := r.logger.With(zap.String("run_id", runID), zap.String("mode", string(r.cfg.Mode)))
	log.Info("Run starting.", zap.Int("targets", len(targets)))

	for i, target := range targets {
		if !r.running.Load() || ctx.Err() != nil {
			log.Info("Run stopped before completion.", zap.Int("remaining", len(targets)-i))
			for _, rest := range targets[i:] {
				r.complete(ctx, r.skipped(rest, reasonStopped))
			}
			break
		}

		r.state.setCurrent(target.CompanyName)
		r.notify(ctx, PhaseStart, target, nil)

		if r.isDuplicate(ctx, target) {
			r.metrics.IncDedupSkip()
			r.complete(ctx, r.skipped(target, reasonDuplicate))
			continue
		}

		if err := r.pacer.Wait(ctx); err != nil {
			// Cancelled while waiting; the loop head reports the rest.
			r.complete(ctx, r.skipped(target, reasonStopped))
			continue
		}

		out := r.processOne(ctx, target)
		r.persist(ctx, runID, out)
		r.pacer.Done()
		r.complete(ctx, out)
	}

	r.running.Store(false)
	r.state.end()
	summary := r.state.summary(r.now())
	log.Info("Run finished.",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("manual_required", summary.ManualRequired),
		zap.Int("skipped", summary.Skipped),
		zap.Strings("pending_tabs", summary.PendingTabs),
	)
	return summary
}

// processOne opens a tab, runs the processor and applies the mode's tab and
// status policy.
func (r *Runner) processOne(ctx context.Context, target schemas.TargetRecord) (out schemas.ProcessingOutcome) {
	log := observability.ForTarget(r.logger, target)
	started := r.now()

	page, err := r.browser.NewPage(ctx)
	if err != nil {
		log.Error("Failed to open a tab.", zap.Error(err))
		return schemas.ProcessingOutcome{
			Target:       target,
			Status:       schemas.StatusFailed,
			Message:      "could not open a browser tab",
			ErrorKind:    schemas.ErrorUnexpected,
			ErrorDetails: err.Error(),
			StartedAt:    started,
			FinishedAt:   r.now(),
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Recovered from panic in processor.", zap.Any("panic", rec), zap.Stack("stack"))
			out = schemas.ProcessingOutcome{
				Target:       target,
				Status:       schemas.StatusFailed,
				Message:      "unexpected error",
				ErrorKind:    schemas.ErrorUnexpected,
				ErrorDetails: fmt.Sprintf("panic: %v", rec),
				StartedAt:    started,
				FinishedAt:   r.now(),
			}
			r.closeTab(ctx, page, log)
		}
	}()

	out = r.processor.Process(ctx, page, target)

	switch r.cfg.Mode {
	case schemas.ModeSupervised:
		if out.Status == schemas.StatusSuccess {
			r.closeTab(ctx, page, log)
			break
		}
		reason := out.Message
		if out.ErrorDetails != "" {
			reason = fmt.Sprintf("%s: %s", out.Message, out.ErrorDetails)
		}
		r.state.addPending(PendingTab{TabID: page.ID(), Target: target, Status: out.Status, Reason: reason})
		r.metrics.SetPendingTabs(len(r.state.Snapshot().Pending))
		log.Info("Tab left open for manual completion.", zap.String("session_id", page.ID()), zap.String("status", string(out.Status)))
	default:
		r.closeTab(ctx, page, log)
		if out.Status == schemas.StatusManualRequired {
			out.Status = schemas.StatusFailed
			if out.ErrorKind == schemas.ErrorNone {
				out.ErrorKind = schemas.ErrorHumanVerification
			}
		}
	}
	return out
}

func (r *Runner) closeTab(ctx context.Context, page schemas.PageSession, log *zap.Logger) {
	// The run context may already be cancelled; the tab still has to go.
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := page.Close(closeCtx); err != nil {
		log.Debug("Error closing tab.", zap.String("session_id", page.ID()), zap.Error(err))
	}
}

func (r *Runner) isDuplicate(ctx context.Context, target schemas.TargetRecord) bool {
	if r.store == nil {
		return false
	}
	since := r.now().Add(-r.cfg.Retention)
	found, err := r.store.HasRecentSuccess(ctx, target.CompanyName, target.URL, since)
	if err != nil {
		observability.ForTarget(r.logger, target).Warn("Dedup lookup failed. Processing anyway.", zap.Error(err))
		return false
	}
	return found
}

func (r *Runner) persist(ctx context.Context, runID string, out schemas.ProcessingOutcome) {
	if r.store == nil {
		return
	}
	if err := r.store.Append(context.WithoutCancel(ctx), runID, out); err != nil {
		observability.ForTarget(r.logger, out.Target).Error("Failed to store outcome.", zap.Error(err))
	}
}

func (r *Runner) skipped(target schemas.TargetRecord, reason string) schemas.ProcessingOutcome {
	at := r.now()
	return schemas.ProcessingOutcome{
		Target:     target,
		Status:     schemas.StatusSkipped,
		Message:    reason,
		StartedAt:  at,
		FinishedAt: at,
	}
}

func (r *Runner) complete(ctx context.Context, out schemas.ProcessingOutcome) {
	r.state.record(out)
	r.metrics.ObserveOutcome(out)
	r.notify(ctx, PhaseDone, out.Target, &out)
}

func (r *Runner) notify(ctx context.Context, phase Phase, target schemas.TargetRecord, out *schemas.ProcessingOutcome) {
	s := r.state.Snapshot()
	r.notifier.Notify(ctx, Progress{
		Processed:      s.Processed,
		Succeeded:      s.Succeeded,
		Failed:         s.Failed,
		ManualRequired: s.ManualRequired,
		Skipped:        s.Skipped,
		Total:          s.Total,
		Current:        target,
		Phase:          phase,
		Outcome:        out,
	})
}
