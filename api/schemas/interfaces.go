package schemas

import (
	"context"
	"encoding/json"
	"time"
)

// BrowserManager owns the browser process and hands out tabs.
type BrowserManager interface {
	// NewPage opens a fresh tab with the configured persona applied.
	NewPage(ctx context.Context) (PageSession, error)
	// Shutdown terminates every tab and the browser process. It is safe to call
	// from another goroutine as an emergency stop.
	Shutdown(ctx context.Context) error
}

// PageSession defines the operations the engine performs against a single
// browser tab. It doubles as the low-level executor for humanoid input.
type PageSession interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// HTML returns the rendered outer HTML of the main document.
	HTML(ctx context.Context) (string, error)
	// ExecuteScript applies a function expression to args and returns its
	// JSON-encoded result.
	ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error)
	// SetValue uses the driver's own value setter on a main-frame selector.
	SetValue(ctx context.Context, selector, value string) error
	Close(ctx context.Context) error

	Sleep(ctx context.Context, d time.Duration) error
	DispatchMouseEvent(ctx context.Context, data MouseEventData) error
	SendKeys(ctx context.Context, keys string) error
	DispatchStructuredKey(ctx context.Context, data KeyEventData) error
	GetElementGeometry(ctx context.Context, selector string) (*ElementGeometry, error)
}
