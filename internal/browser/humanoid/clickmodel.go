package humanoid

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// IntelligentClick moves onto the element, hesitates briefly, then presses
// and releases the left button with a randomized hold.
func (h *Humanoid) IntelligentClick(ctx context.Context, selector string) error {
	if err := h.MoveTo(ctx, selector); err != nil {
		return err
	}
	if err := h.pause(ctx, h.cfg.PreClickMinMs, h.cfg.PreClickMaxMs); err != nil {
		return err
	}

	pos := h.Position()
	press := schemas.MouseEventData{
		Type:       schemas.MousePress,
		X:          pos.X,
		Y:          pos.Y,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
		Buttons:    1,
	}
	if err := h.executor.DispatchMouseEvent(ctx, press); err != nil {
		return fmt.Errorf("humanoid: mouse press failed: %w", err)
	}

	holdErr := h.pause(ctx, h.cfg.ClickHoldMinMs, h.cfg.ClickHoldMaxMs)

	// Always release, even if the hold was interrupted, so the page never
	// sees a stuck button.
	release := press
	release.Type = schemas.MouseRelease
	release.Buttons = 0
	releaseCtx := ctx
	if ctx.Err() != nil {
		releaseCtx = context.WithoutCancel(ctx)
	}
	if err := h.executor.DispatchMouseEvent(releaseCtx, release); err != nil {
		return fmt.Errorf("humanoid: mouse release failed: %w", err)
	}
	return holdErr
}
