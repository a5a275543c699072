// Package humanoid emulates a person driving the mouse and keyboard: curved,
// noisy pointer paths timed by Fitts's law, randomized press/release holds and
// jittered inter-key pauses. When disabled, every pause is skipped and every
// move is a single straight step, so behaviour is deterministic.
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// Executor defines the low-level interface required by the Humanoid controller.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error
	SendKeys(ctx context.Context, keys string) error
	// DispatchStructuredKey presses a key combination. The executor is
	// responsible for the KeyDown and KeyUp sequence.
	DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error
	GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error)
}

// Controller is the high-level interface the form filler depends on.
type Controller interface {
	MoveTo(ctx context.Context, selector string) error
	IntelligentClick(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	TypeText(ctx context.Context, text string) error
	Shortcut(ctx context.Context, expression string) error
	ActionPause(ctx context.Context) error
}

// Humanoid holds the pointer state for one tab. Methods are safe for
// concurrent use but a tab is only ever driven by one goroutine at a time.
type Humanoid struct {
	mu         sync.Mutex
	cfg        config.HumanoidConfig
	logger     *zap.Logger
	executor   Executor
	currentPos Vector2D
	rng        *rand.Rand
	noiseX     *perlin.Perlin
	noiseY     *perlin.Perlin
	started    time.Time
}

var _ Controller = (*Humanoid)(nil)

// Standard Perlin noise parameters.
const (
	perlinAlpha = 2.0
	perlinBeta  = 2.0
	perlinN     = int32(3)
)

// New creates a Humanoid seeded from the clock.
func New(cfg config.HumanoidConfig, logger *zap.Logger, executor Executor) *Humanoid {
	return newWithSeed(cfg, logger, executor, time.Now().UnixNano())
}

// NewTestHumanoid creates an enabled Humanoid with deterministic randomness.
func NewTestHumanoid(executor Executor, seed int64) *Humanoid {
	cfg := config.NewDefaultConfig().Browser().Humanoid
	cfg.Enabled = true
	return newWithSeed(cfg, zap.NewNop(), executor, seed)
}

func newWithSeed(cfg config.HumanoidConfig, logger *zap.Logger, executor Executor, seed int64) *Humanoid {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Humanoid{
		cfg:      cfg,
		logger:   logger.Named("humanoid"),
		executor: executor,
		rng:      rand.New(rand.NewSource(seed)),
		noiseX:   perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed),
		noiseY:   perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed+1),
		started:  time.Now(),
	}
}

// Enabled reports whether human-like timing is active.
func (h *Humanoid) Enabled() bool { return h.cfg.Enabled }

// Position returns the last known cursor position.
func (h *Humanoid) Position() Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentPos
}

// ActionPause waits between two high-level actions, such as filling
// consecutive fields.
func (h *Humanoid) ActionPause(ctx context.Context) error {
	return h.pause(ctx, h.cfg.ActionPauseMinMs, h.cfg.ActionPauseMaxMs)
}

// pause sleeps for a uniformly random duration in [minMs, maxMs]. It is a
// no-op when the humanoid is disabled.
func (h *Humanoid) pause(ctx context.Context, minMs, maxMs int) error {
	if !h.cfg.Enabled || maxMs <= 0 {
		return nil
	}
	return h.executor.Sleep(ctx, h.uniform(minMs, maxMs))
}

func (h *Humanoid) uniform(minMs, maxMs int) time.Duration {
	if maxMs < minMs {
		maxMs = minMs
	}
	h.mu.Lock()
	n := minMs + h.rng.Intn(maxMs-minMs+1)
	h.mu.Unlock()
	return time.Duration(n) * time.Millisecond
}
