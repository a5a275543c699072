package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/keywords"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Network() config.NetworkConfig {
	args := m.Called()
	return args.Get(0).(config.NetworkConfig)
}

func (m *MockConfig) Detection() config.DetectionConfig {
	args := m.Called()
	return args.Get(0).(config.DetectionConfig)
}

func (m *MockConfig) Injection() config.InjectionConfig {
	args := m.Called()
	return args.Get(0).(config.InjectionConfig)
}

func (m *MockConfig) Submission() config.SubmissionConfig {
	args := m.Called()
	return args.Get(0).(config.SubmissionConfig)
}

func (m *MockConfig) Run() config.RunConfig {
	args := m.Called()
	return args.Get(0).(config.RunConfig)
}

func (m *MockConfig) Sender() schemas.SenderProfile {
	args := m.Called()
	return args.Get(0).(schemas.SenderProfile)
}

func (m *MockConfig) Message() config.MessageConfig {
	args := m.Called()
	return args.Get(0).(config.MessageConfig)
}

func (m *MockConfig) Taxonomy() *keywords.Taxonomy {
	args := m.Called()
	if t, ok := args.Get(0).(*keywords.Taxonomy); ok {
		return t
	}
	return keywords.Default()
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool)       { m.Called(b) }
func (m *MockConfig) SetHumanoidEnabled(b bool)       { m.Called(b) }
func (m *MockConfig) SetRunMode(mode schemas.RunMode) { m.Called(mode) }

// -- Browser Mocks --

// MockBrowserManager mocks schemas.BrowserManager.
type MockBrowserManager struct {
	mock.Mock
}

func (m *MockBrowserManager) NewPage(ctx context.Context) (schemas.PageSession, error) {
	args := m.Called(ctx)
	if p, ok := args.Get(0).(schemas.PageSession); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBrowserManager) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// FakeBrowser hands out FakePages over a shared FakeSite and tracks which
// of them are still open.
type FakeBrowser struct {
	Site *FakeSite

	mu       sync.Mutex
	pages    []*FakePage
	shutdown bool
	watchers []func(string)
	// NewPageErr, when set, fails every NewPage call.
	NewPageErr error
}

var _ schemas.BrowserManager = (*FakeBrowser)(nil)

// NewFakeBrowser creates a browser over site.
func NewFakeBrowser(site *FakeSite) *FakeBrowser {
	return &FakeBrowser{Site: site}
}

func (b *FakeBrowser) NewPage(ctx context.Context) (schemas.PageSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return nil, fmt.Errorf("browser is shut down")
	}
	if b.NewPageErr != nil {
		return nil, b.NewPageErr
	}
	p := NewFakePage(fmt.Sprintf("tab-%d", len(b.pages)+1), b.Site)
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *FakeBrowser) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdown = true
	for _, p := range b.pages {
		_ = p.Close(ctx)
	}
	return nil
}

// Pages returns every page opened so far.
func (b *FakeBrowser) Pages() []*FakePage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*FakePage(nil), b.pages...)
}

// OpenPages returns the pages not yet closed.
func (b *FakeBrowser) OpenPages() []*FakePage {
	var open []*FakePage
	for _, p := range b.Pages() {
		if !p.Closed() {
			open = append(open, p)
		}
	}
	return open
}

func (b *FakeBrowser) OnTabClosed(fn func(tabID string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers = append(b.watchers, fn)
}

// CloseTab closes the page with the given ID the way an operator would,
// notifying OnTabClosed watchers. It reports whether the page was open.
func (b *FakeBrowser) CloseTab(id string) bool {
	b.mu.Lock()
	var page *FakePage
	for _, p := range b.pages {
		if p.ID() == id {
			page = p
		}
	}
	watchers := append([]func(string){}, b.watchers...)
	b.mu.Unlock()
	if page == nil || page.Closed() {
		return false
	}
	_ = page.Close(context.Background())
	for _, fn := range watchers {
		fn(id)
	}
	return true
}

// IsShutdown reports whether Shutdown was called.
func (b *FakeBrowser) IsShutdown() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shutdown
}

// -- Store Mock --

// MockDedupStore mocks the runner's deduplication store.
type MockDedupStore struct {
	mock.Mock
}

func (m *MockDedupStore) HasRecentSuccess(ctx context.Context, companyName, url string, since time.Time) (bool, error) {
	args := m.Called(ctx, companyName, url, since)
	return args.Bool(0), args.Error(1)
}

func (m *MockDedupStore) Append(ctx context.Context, runID string, outcome schemas.ProcessingOutcome) error {
	return m.Called(ctx, runID, outcome).Error(0)
}
