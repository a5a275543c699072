package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// Pacer enforces the minimum gap between processed targets. The gap is
// measured from the end of one target to the start of the next, so a slow
// target never eats into it.
type Pacer interface {
	// Wait blocks until the gap since the last Done has passed.
	Wait(ctx context.Context) error
	// Done marks the end of a processed target.
	Done()
}

// NewPacer returns a Pacer that keeps interval between the end of one target
// and the start of the next. The first Wait returns immediately. A
// non-positive interval never waits.
func NewPacer(interval time.Duration) Pacer {
	if interval <= 0 {
		return nopPacer{}
	}
	return &intervalPacer{interval: interval}
}

type nopPacer struct{}

func (nopPacer) Wait(ctx context.Context) error { return ctx.Err() }
func (nopPacer) Done()                          {}

// intervalPacer restarts a one-token limiter every time a target finishes.
type intervalPacer struct {
	interval time.Duration

	mu  sync.Mutex
	lim *rate.Limiter
}

func (p *intervalPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	lim := p.lim
	p.mu.Unlock()
	if lim == nil {
		return ctx.Err()
	}
	return lim.Wait(ctx)
}

func (p *intervalPacer) Done() {
	lim := rate.NewLimiter(rate.Every(p.interval), 1)
	// Spend the only token now so the next Wait lasts a full interval.
	lim.Allow()
	p.mu.Lock()
	p.lim = lim
	p.mu.Unlock()
}

// Phase marks where in a target's processing a Progress was emitted.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseDone  Phase = "done"
)

// Progress is reported at the start and completion of each target.
type Progress struct {
	Processed      int
	Succeeded      int
	Failed         int
	ManualRequired int
	Skipped        int
	Total          int
	Current        schemas.TargetRecord
	Phase          Phase
	// Outcome is set on PhaseDone.
	Outcome *schemas.ProcessingOutcome
}

// Notifier receives progress synchronously from the runner's goroutine.
type Notifier interface {
	Notify(ctx context.Context, p Progress)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, p Progress)

func (f NotifierFunc) Notify(ctx context.Context, p Progress) { f(ctx, p) }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Progress) {}
