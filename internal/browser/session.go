package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser/scripts"
	"github.com/xkilldash9x/formpilot/internal/config"
)

const (
	defaultScriptTimeout = 20 * time.Second
	inputTimeout         = 10 * time.Second
	keyTimeout           = 5 * time.Second
)

// Session is one browser tab. It implements schemas.PageSession.
type Session struct {
	id       string
	targetID target.ID
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger

	navTimeout    time.Duration
	scriptTimeout time.Duration

	onClose func()

	mu     sync.Mutex
	closed bool
}

var _ schemas.PageSession = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, netCfg config.NetworkConfig, logger *zap.Logger) *Session {
	id := uuid.New().String()
	s := &Session{
		id:            id,
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger.With(zap.String("session_id", id)),
		navTimeout:    netCfg.NavigationTimeout,
		scriptTimeout: cfg.ScriptTimeout,
	}
	if s.scriptTimeout <= 0 {
		s.scriptTimeout = defaultScriptTimeout
	}
	return s
}

// ID returns the unique identifier for the tab.
func (s *Session) ID() string { return s.id }

// runActions executes actions bound to both the tab lifetime and ctx.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// runWithTimeout is runActions with an operation deadline. A deadline hit is
// reported as such rather than as a bare cancellation.
func (s *Session) runWithTimeout(ctx context.Context, timeout time.Duration, op string, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := s.runActions(opCtx, actions...)
	if err != nil && opCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return fmt.Errorf("%s timed out after %v: %w", op, timeout, context.DeadlineExceeded)
	}
	return err
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	timeout := s.navTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.runWithTimeout(ctx, timeout, "navigation", chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.runWithTimeout(ctx, s.scriptTimeout, "location", chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read current URL: %w", err)
	}
	return loc, nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.runWithTimeout(ctx, s.scriptTimeout, "title", chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

// HTML returns the rendered outer HTML of the main document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.runWithTimeout(ctx, s.scriptTimeout, "outer html", chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	return html, nil
}

// ExecuteScript applies the function expression script to args, with the
// page helpers installed, and returns the JSON result.
func (s *Session) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	expr, err := scripts.Compose(script, args)
	if err != nil {
		return nil, err
	}
	// *[]byte receives the raw JSON value and tolerates undefined results.
	var res []byte
	err = s.runWithTimeout(ctx, s.scriptTimeout, "script", chromedp.Evaluate(expr, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithUserGesture(true)
	}))
	if err != nil {
		return nil, fmt.Errorf("script evaluation failed: %w", err)
	}
	return json.RawMessage(res), nil
}

// SetValue uses chromedp's value setter on a main-frame selector.
func (s *Session) SetValue(ctx context.Context, selector, value string) error {
	if err := s.runWithTimeout(ctx, inputTimeout, "set value",
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to set value on '%s': %w", selector, err)
	}
	return nil
}

// Close closes the tab. Calling it twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	if !s.markClosed() {
		return nil
	}

	s.logger.Debug("Closing tab.")
	// chromedp.Cancel closes the target gracefully; the cancel func below is
	// the hard stop if that fails.
	if err := chromedp.Cancel(s.ctx); err != nil && !strings.Contains(err.Error(), "context canceled") {
		s.logger.Debug("Graceful tab close failed.", zap.Error(err))
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// release tears down a tab whose target is already gone. It reports false
// when the session was closed before.
func (s *Session) release() bool {
	if !s.markClosed() {
		return false
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return true
}

func (s *Session) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

// -- Humanoid executor --

// Sleep pauses for d unless ctx or the tab ends first.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *Session) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButton(input.MouseButton(data.Button)).
		WithButtons(data.Buttons).
		WithClickCount(int64(data.ClickCount))
	if data.Type == schemas.MouseWheel {
		p = p.WithDeltaX(data.DeltaX).WithDeltaY(data.DeltaY)
	}
	return s.runWithTimeout(ctx, inputTimeout, "mouse event", p)
}

func (s *Session) SendKeys(ctx context.Context, keys string) error {
	return s.runWithTimeout(ctx, inputTimeout, "key event", chromedp.KeyEvent(keys))
}

// DispatchStructuredKey presses and releases a key with modifiers held.
func (s *Session) DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error {
	var mods input.Modifier
	if data.Modifiers&schemas.ModAlt != 0 {
		mods |= input.ModifierAlt
	}
	if data.Modifiers&schemas.ModCtrl != 0 {
		mods |= input.ModifierCtrl
	}
	if data.Modifiers&schemas.ModMeta != 0 {
		mods |= input.ModifierMeta
	}
	if data.Modifiers&schemas.ModShift != 0 {
		mods |= input.ModifierShift
	}
	down := input.DispatchKeyEvent(input.KeyRawDown).WithModifiers(mods).WithKey(data.Key).WithCode(keyCode(data.Key))
	up := input.DispatchKeyEvent(input.KeyUp).WithModifiers(mods).WithKey(data.Key).WithCode(keyCode(data.Key))
	if err := s.runWithTimeout(ctx, keyTimeout, "shortcut", down, up); err != nil {
		return fmt.Errorf("failed to dispatch shortcut sequence: %w", err)
	}
	return nil
}

// keyCode maps a key name to its physical code for the handful of keys the
// filler uses.
func keyCode(key string) string {
	if len(key) == 1 {
		c := key[0]
		switch {
		case c >= 'a' && c <= 'z':
			return "Key" + strings.ToUpper(key)
		case c >= 'A' && c <= 'Z':
			return "Key" + key
		case c >= '0' && c <= '9':
			return "Digit" + key
		}
	}
	return key
}

// GetElementGeometry scrolls the element into view and returns its viewport
// quad. Elements inside same-origin frames are offset by the frame position.
func (s *Session) GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	var geo *schemas.ElementGeometry
	if err := scripts.Call(ctx, s, scripts.Geometry, &geo, selector, false); err != nil {
		return nil, fmt.Errorf("failed to get geometry for '%s': %w", selector, err)
	}
	if geo == nil || geo.Width <= 0 || geo.Height <= 0 {
		return nil, fmt.Errorf("element '%s' not found or not visible", selector)
	}
	return geo, nil
}
