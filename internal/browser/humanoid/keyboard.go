package humanoid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// Type clicks into the element and types text one rune at a time.
func (h *Humanoid) Type(ctx context.Context, selector, text string) error {
	if err := h.IntelligentClick(ctx, selector); err != nil {
		return fmt.Errorf("humanoid: failed to click/focus selector '%s': %w", selector, err)
	}
	return h.TypeText(ctx, text)
}

// TypeText types into whatever currently has focus. Runes are sent one by
// one so IME-free CJK input works the same as ASCII. There are no typos:
// the field is read back afterwards and must match exactly.
func (h *Humanoid) TypeText(ctx context.Context, text string) error {
	for _, r := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.pause(ctx, h.cfg.KeyPauseMinMs, h.cfg.KeyPauseMaxMs); err != nil {
			return err
		}
		key := string(r)
		if r == '\n' {
			key = "\r"
		}
		if err := h.executor.SendKeys(ctx, key); err != nil {
			return fmt.Errorf("humanoid: failed to send key %q: %w", r, err)
		}
		if err := h.hold(ctx); err != nil {
			return err
		}
	}
	return nil
}

// hold simulates key dwell time around the configured mean.
func (h *Humanoid) hold(ctx context.Context) error {
	if !h.cfg.Enabled || h.cfg.KeyHoldMeanMs <= 0 {
		return nil
	}
	h.mu.Lock()
	ms := h.cfg.KeyHoldMeanMs + h.rng.NormFloat64()*h.cfg.KeyHoldMeanMs*0.3
	h.mu.Unlock()
	if ms < 20 {
		ms = 20
	}
	return h.executor.Sleep(ctx, time.Duration(ms*float64(time.Millisecond)))
}

// Shortcut presses a key combination such as "ctrl+a" or "Delete".
func (h *Humanoid) Shortcut(ctx context.Context, expression string) error {
	data, err := ParseKeyExpression(expression)
	if err != nil {
		return err
	}
	if err := h.executor.DispatchStructuredKey(ctx, data); err != nil {
		return fmt.Errorf("humanoid: shortcut %q failed: %w", expression, err)
	}
	return h.pause(ctx, h.cfg.KeyPauseMinMs, h.cfg.KeyPauseMaxMs)
}

// ParseKeyExpression turns "ctrl+shift+t" into a structured key event. With
// shift held, a single-letter key is upper-cased.
func ParseKeyExpression(expression string) (schemas.KeyEventData, error) {
	parts := strings.Split(strings.TrimSpace(expression), "+")
	var data schemas.KeyEventData
	for i, raw := range parts {
		p := strings.TrimSpace(raw)
		if p == "" {
			return schemas.KeyEventData{}, fmt.Errorf("humanoid: invalid key expression %q", expression)
		}
		if i == len(parts)-1 {
			data.Key = p
			break
		}
		switch strings.ToLower(p) {
		case "ctrl", "control":
			data.Modifiers |= schemas.ModCtrl
		case "alt", "option":
			data.Modifiers |= schemas.ModAlt
		case "shift":
			data.Modifiers |= schemas.ModShift
		case "meta", "cmd", "command", "super":
			data.Modifiers |= schemas.ModMeta
		default:
			return schemas.KeyEventData{}, fmt.Errorf("humanoid: unknown modifier %q in %q", p, expression)
		}
	}
	if data.Modifiers&schemas.ModShift != 0 && len([]rune(data.Key)) == 1 {
		data.Key = strings.ToUpper(data.Key)
	}
	return data, nil
}
