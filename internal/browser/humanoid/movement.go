package humanoid

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

const (
	// fittsTargetWidth is the assumed target width, in pixels, for the index
	// of difficulty.
	fittsTargetWidth = 30.0
	// stepInterval is the nominal time between two dispatched move events.
	stepInterval = 10 * time.Millisecond
	maxSteps     = 120
)

// MoveTo moves the pointer onto the element matched by selector.
func (h *Humanoid) MoveTo(ctx context.Context, selector string) error {
	target, err := h.targetPoint(ctx, selector)
	if err != nil {
		return err
	}
	return h.MoveToVector(ctx, target)
}

// MoveToVector moves the pointer to a viewport coordinate.
func (h *Humanoid) MoveToVector(ctx context.Context, target Vector2D) error {
	h.mu.Lock()
	start := h.currentPos
	h.mu.Unlock()

	if !h.cfg.Enabled {
		return h.dispatchMove(ctx, target)
	}

	duration := h.fittsDuration(start.Dist(target))
	steps := int(duration / stepInterval)
	if steps < 2 {
		steps = 2
	}
	if steps > maxSteps {
		steps = maxSteps
	}
	path := h.idealPath(start, target, steps)
	perStep := duration / time.Duration(len(path))

	for i, p := range path {
		if err := ctx.Err(); err != nil {
			return err
		}
		// The last point lands exactly on target so the click hits it.
		if i < len(path)-1 {
			p = h.perturb(p, float64(i)/float64(len(path)))
		}
		if err := h.dispatchMove(ctx, p); err != nil {
			return err
		}
		if err := h.executor.Sleep(ctx, perStep); err != nil {
			return err
		}
	}
	h.logger.Debug("Pointer moved.", zap.Float64("x", target.X), zap.Float64("y", target.Y), zap.Int("steps", len(path)))
	return nil
}

func (h *Humanoid) dispatchMove(ctx context.Context, p Vector2D) error {
	if err := h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
		Type:   schemas.MouseMove,
		X:      p.X,
		Y:      p.Y,
		Button: schemas.ButtonNone,
	}); err != nil {
		return fmt.Errorf("humanoid: failed to dispatch mouse move: %w", err)
	}
	h.mu.Lock()
	h.currentPos = p
	h.mu.Unlock()
	return nil
}

// fittsDuration is A + B*log2(1 + d/W) milliseconds with +/-15% jitter.
func (h *Humanoid) fittsDuration(distance float64) time.Duration {
	id := math.Log2(1.0 + distance/fittsTargetWidth)
	mt := h.cfg.FittsA + h.cfg.FittsB*id
	h.mu.Lock()
	mt += mt * (h.rng.Float64()*0.3 - 0.15)
	h.mu.Unlock()
	return time.Duration(mt * float64(time.Millisecond))
}

// idealPath is a cubic Bezier curve whose control points are pushed off the
// straight line by a random perpendicular offset, sampled with ease-in-out
// timing.
func (h *Humanoid) idealPath(start, end Vector2D, steps int) []Vector2D {
	main := end.Sub(start)
	dist := main.Mag()
	if dist < 1.0 {
		return []Vector2D{end}
	}
	normal := main.Normalize().Perp()

	h.mu.Lock()
	bend1 := (h.rng.Float64() - 0.5) * dist * 0.3
	bend2 := (h.rng.Float64() - 0.5) * dist * 0.2
	h.mu.Unlock()

	p1 := start.Add(main.Mul(1.0 / 3.0)).Add(normal.Mul(bend1))
	p2 := start.Add(main.Mul(2.0 / 3.0)).Add(normal.Mul(bend2))

	path := make([]Vector2D, steps)
	for i := 0; i < steps; i++ {
		t := easeInOutCubic(float64(i) / float64(steps-1))
		omt := 1.0 - t
		path[i] = start.Mul(omt * omt * omt).
			Add(p1.Mul(3 * omt * omt * t)).
			Add(p2.Mul(3 * omt * t * t)).
			Add(end.Mul(t * t * t))
	}
	return path
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// perturb adds low-frequency Perlin drift plus Gaussian tremor to a point.
func (h *Humanoid) perturb(p Vector2D, progress float64) Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	elapsed := time.Since(h.started).Seconds() + progress
	const frequency = 0.8
	drift := Vector2D{
		X: h.noiseX.Noise1D(elapsed*frequency) * h.cfg.PerlinAmplitude,
		Y: h.noiseY.Noise1D(elapsed*frequency) * h.cfg.PerlinAmplitude,
	}
	strength := h.cfg.GaussianStrength * (0.5 + h.rng.Float64())
	tremor := Vector2D{X: h.rng.NormFloat64() * strength, Y: h.rng.NormFloat64() * strength}
	return p.Add(drift).Add(tremor)
}

// targetPoint picks a click point inside the element, normally distributed
// around its centre and clamped one pixel inside its edges.
func (h *Humanoid) targetPoint(ctx context.Context, selector string) (Vector2D, error) {
	geo, err := h.executor.GetElementGeometry(ctx, selector)
	if err != nil {
		return Vector2D{}, fmt.Errorf("humanoid: failed to locate target '%s': %w", selector, err)
	}
	if geo == nil || len(geo.Vertices) < 8 {
		return Vector2D{}, fmt.Errorf("humanoid: element '%s' has invalid geometry", selector)
	}
	cx, cy := geo.Center()
	center := Vector2D{X: cx, Y: cy}
	if !h.cfg.Enabled || geo.Width <= 2 || geo.Height <= 2 {
		return center, nil
	}

	w, hgt := float64(geo.Width), float64(geo.Height)
	h.mu.Lock()
	x := center.X + h.rng.NormFloat64()*w*0.9/6.0
	y := center.Y + h.rng.NormFloat64()*hgt*0.9/6.0
	h.mu.Unlock()

	x = math.Max(center.X-w/2+1, math.Min(center.X+w/2-1, x))
	y = math.Max(center.Y-hgt/2+1, math.Min(center.Y+hgt/2-1, y))
	return Vector2D{X: x, Y: y}, nil
}
