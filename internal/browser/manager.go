// Package browser drives Chrome through chromedp. A Manager owns one browser
// process; every target gets its own tab wrapped in a Session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser/stealth"
	"github.com/xkilldash9x/formpilot/internal/config"
)

const browserStartTimeout = 30 * time.Second

// ErrManagerClosed is returned by NewPage after Shutdown.
var ErrManagerClosed = errors.New("browser manager is shut down")

// Manager handles the browser process lifecycle and tab creation.
type Manager struct {
	logger  *zap.Logger
	cfg     config.BrowserConfig
	network config.NetworkConfig
	persona schemas.Persona

	// allocatorCtx owns the browser process; browserCtx holds the initial
	// tab, from which every new tab is derived.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	targets  map[target.ID]*Session
	watchers []func(tabID string)
	closed   bool
	wg       sync.WaitGroup
}

var _ schemas.BrowserManager = (*Manager)(nil)

// NewManager launches the browser and verifies it responds.
func NewManager(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Manager, error) {
	bcfg := cfg.Browser()
	m := &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      bcfg,
		network:  cfg.Network(),
		persona:  stealth.Normalize(bcfg.Persona),
		sessions: make(map[string]*Session),
		targets:  make(map[target.ID]*Session),
	}
	if err := m.launch(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launch(ctx context.Context) error {
	opts := DefaultAllocatorOptions(m.cfg, m.persona)
	m.logger.Info("Launching browser.", zap.Bool("headless", m.cfg.Headless))

	// The allocator must outlive ctx: the caller's startup context is usually
	// short-lived, the browser is not.
	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(Detach(ctx), opts...)

	var ctxOpts []chromedp.ContextOption
	if m.cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(m.logger.Sugar().Debugf))
	}
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx, ctxOpts...)

	startCtx, cancel := context.WithTimeout(ctx, browserStartTimeout)
	defer cancel()
	runCtx, runCancel := CombineContext(m.browserCtx, startCtx)
	defer runCancel()
	if err := chromedp.Run(runCtx, chromedp.Navigate("about:blank")); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}
	chromedp.ListenBrowser(m.browserCtx, m.handleBrowserEvent)
	m.logger.Info("Browser launched and responsive.")
	return nil
}

// handleBrowserEvent notices tabs that disappear without Session.Close,
// typically closed by hand in a visible browser.
func (m *Manager) handleBrowserEvent(ev interface{}) {
	var id target.ID
	switch e := ev.(type) {
	case *target.EventTargetDestroyed:
		id = e.TargetID
	case *target.EventDetachedFromTarget:
		id = e.TargetID
	default:
		return
	}
	// Listeners run on the event loop and must not block it.
	go m.targetGone(id)
}

func (m *Manager) targetGone(id target.ID) {
	m.mu.Lock()
	s, ok := m.targets[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	if s.release() {
		s.logger.Info("Tab closed outside the run.")
	}
}

// OnTabClosed registers fn to be called with the session ID of every tab
// that closes, whoever closed it.
func (m *Manager) OnTabClosed(fn func(tabID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
}

// track registers s and returns the hook run once when it closes.
func (m *Manager) track(s *Session) func() {
	return func() {
		m.mu.Lock()
		delete(m.sessions, s.ID())
		if s.targetID != "" {
			delete(m.targets, s.targetID)
		}
		watchers := append([]func(string){}, m.watchers...)
		m.mu.Unlock()
		for _, fn := range watchers {
			fn(s.ID())
		}
		m.wg.Done()
	}
}

// NewPage opens a fresh tab with the persona applied.
func (m *Manager) NewPage(ctx context.Context) (schemas.PageSession, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	s := newSession(tabCtx, tabCancel, m.cfg, m.network, m.logger)
	s.onClose = m.track(s)

	initCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()
	if err := chromedp.Run(initCtx, stealth.Apply(m.persona, s.logger)); err != nil {
		_ = s.Close(context.Background())
		return nil, fmt.Errorf("failed to initialize tab: %w", err)
	}

	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		s.targetID = c.Target.TargetID
	}
	m.mu.Lock()
	m.sessions[s.ID()] = s
	if s.targetID != "" {
		m.targets[s.targetID] = s
	}
	m.mu.Unlock()
	s.logger.Debug("Tab opened.", zap.String("target_id", string(s.targetID)))
	return s, nil
}

// OpenTabs returns the number of tabs not yet closed.
func (m *Manager) OpenTabs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Wait blocks until every tab has been closed or ctx ends. Supervised runs
// use it to keep the browser alive while an operator finishes pending tabs.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown closes every tab and terminates the browser. It is safe to call
// concurrently and more than once; the CLI calls it as an emergency stop.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down browser.", zap.Int("open_tabs", len(open)))
	for _, s := range open {
		if err := s.Close(ctx); err != nil {
			m.logger.Debug("Error closing tab during shutdown.", zap.String("session_id", s.ID()), zap.Error(err))
		}
	}

	if err := m.Wait(ctx); err != nil {
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(err))
	}
	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocatorCancel != nil {
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
