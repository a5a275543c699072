package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/mocks"
	"github.com/xkilldash9x/formpilot/internal/store"
)

func init() {
	color.NoColor = true
}

// -- Fixtures --

func newTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.SetHumanoidEnabled(false)
	cfg.NetworkCfg.PostLoadWait = 0
	cfg.RunCfg.MinDelay = 0
	cfg.InjectionCfg.FieldPauseMin = 0
	cfg.InjectionCfg.FieldPauseMax = 0
	cfg.SenderCfg = schemas.SenderProfile{
		Name:           "佐藤 花子",
		Email:          "hanako@example.jp",
		PrivacyConsent: true,
	}
	return cfg
}

func field(ref int, tag, typ, name, label string) *mocks.FakeElement {
	return &mocks.FakeElement{
		ElementInfo: schemas.ElementInfo{
			Ref: mocks.Ref(ref), Order: ref, Tag: tag, Type: typ, Name: name, Label: label,
			Visible: true, Form: "f1",
			Box: schemas.Box{X: 20, Y: float64(40 * ref), Width: 300, Height: 30},
		},
		SelectedIndex: -1,
	}
}

// contactSite serves a working contact form at url and its thank-you page.
func contactSite(site *mocks.FakeSite, url string) {
	thanks := url + "/thanks"
	site.Docs[url] = &mocks.FakeDocument{
		URL:   url,
		Title: "お問い合わせ",
		HTML: `<html><body><h1>お問い合わせ</h1><form><input name="name"><input type="email" name="email">
<textarea name="message"></textarea><button type="submit">送信</button></form></body></html>`,
		Elements: []*mocks.FakeElement{
			field(1, "input", "text", "name", "お名前"),
			field(2, "input", "email", "email", "メールアドレス"),
			field(3, "textarea", "", "message", "お問い合わせ内容"),
		},
		Forms: []schemas.FormInfo{{Ref: "f1", Box: schemas.Box{X: 10, Y: 30, Width: 400, Height: 420}}},
		Controls: []*mocks.FakeControl{{
			ControlInfo: schemas.ControlInfo{
				Ref: mocks.Ref(4), Order: 4, Tag: "button", Type: "submit", Text: "送信", Form: "f1", Visible: true,
				Box: schemas.Box{X: 20, Y: 400, Width: 100, Height: 30},
			},
			OnClick: func(p *mocks.FakePage) { p.Goto(thanks) },
		}},
	}
	site.Docs[thanks] = &mocks.FakeDocument{URL: thanks, Title: "送信完了", Text: "お問い合わせありがとうございました。"}
}

// fakeFactory hands out a fresh fake browser per run over a shared site
// and store.
type fakeFactory struct {
	mu       sync.Mutex
	site     *mocks.FakeSite
	store    store.Backend
	err      error
	browsers []*mocks.FakeBrowser
	waited   int
}

func (f *fakeFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*runComponents, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b := mocks.NewFakeBrowser(f.site)
	f.browsers = append(f.browsers, b)
	return &runComponents{
		Browser: b,
		Store:   f.store,
		WaitTabs: func(ctx context.Context) error {
			f.mu.Lock()
			f.waited++
			f.mu.Unlock()
			return nil
		},
	}, nil
}

func (f *fakeFactory) lastBrowser() *mocks.FakeBrowser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.browsers[len(f.browsers)-1]
}

func newFakeFactory() *fakeFactory {
	site := mocks.NewFakeSite()
	contactSite(site, "https://alpha.example.jp/contact")
	contactSite(site, "https://gamma.example.jp/contact")
	site.NavErrors["https://beta.example.jp"] = errors.New("net::ERR_NAME_NOT_RESOLVED")
	return &fakeFactory{site: site, store: store.NewMemory()}
}

var batchTargets = []schemas.TargetRecord{
	{CompanyName: "アルファ株式会社", URL: "https://alpha.example.jp/contact"},
	{CompanyName: "ベータ合同会社", URL: "https://beta.example.jp"},
	{CompanyName: "ガンマ株式会社", URL: "https://gamma.example.jp/contact"},
}

// -- Tests --

func TestRunBatch_SummaryAndReport(t *testing.T) {
	cfg := newTestConfig()
	cfg.RunCfg.Output = filepath.Join(t.TempDir(), "report.json")
	factory := newFakeFactory()
	var out, progress bytes.Buffer

	sum, err := runBatch(context.Background(), cfg, batchTargets, factory, runIO{Out: &out, Progress: &progress}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Len(t, sum.Outcomes, 3)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, schemas.ErrorNavigation, sum.Outcomes[1].ErrorKind)

	text := out.String()
	assert.Contains(t, text, "Succeeded:       2")
	assert.Contains(t, text, "Needs attention:")
	assert.Contains(t, text, "ベータ合同会社")
	assert.Contains(t, text, "navigation_error")
	assert.Contains(t, text, "Report written to")

	report, err := os.ReadFile(cfg.RunCfg.Output)
	require.NoError(t, err)
	assert.Contains(t, string(report), sum.RunID)
	assert.Contains(t, string(report), "アルファ株式会社")

	b := factory.lastBrowser()
	assert.True(t, b.IsShutdown(), "the browser is released when the run ends")
	assert.Zero(t, factory.waited, "sequential runs never wait for tabs")
}

func TestRunBatch_DeduplicatesAcrossRuns(t *testing.T) {
	cfg := newTestConfig()
	factory := newFakeFactory()
	logger := zaptest.NewLogger(t)
	rio := runIO{Out: &bytes.Buffer{}, Progress: &bytes.Buffer{}}

	first, err := runBatch(context.Background(), cfg, batchTargets[:1], factory, rio, logger)
	require.NoError(t, err)
	require.Equal(t, schemas.StatusSuccess, first.Outcomes[0].Status)

	second, err := runBatch(context.Background(), cfg, batchTargets[:1], factory, rio, logger)
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusSkipped, second.Outcomes[0].Status)
	assert.Empty(t, factory.lastBrowser().Pages(), "a duplicate never opens a tab")
}

func TestRunBatch_SupervisedWaitsForPendingTabs(t *testing.T) {
	cfg := newTestConfig()
	cfg.SetRunMode(schemas.ModeSupervised)
	factory := newFakeFactory()
	factory.site.Docs["https://delta.example.jp"] = &mocks.FakeDocument{
		URL: "https://delta.example.jp", HTML: "<html><body>工事中</body></html>",
	}
	var out bytes.Buffer

	sum, err := runBatch(context.Background(), cfg, []schemas.TargetRecord{
		batchTargets[0],
		{CompanyName: "デルタ商事", URL: "https://delta.example.jp"},
	}, factory, runIO{Out: &out, Progress: &bytes.Buffer{}}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"tab-2"}, sum.PendingTabs)
	assert.Contains(t, out.String(), "1 tab(s) left open")
	assert.Contains(t, out.String(), "デルタ商事")
	assert.Equal(t, 1, factory.waited)
}

func TestRunBatch_ComponentFailure(t *testing.T) {
	factory := &fakeFactory{err: errors.New("chrome not found")}
	_, err := runBatch(context.Background(), newTestConfig(), batchTargets, factory, runIO{Out: &bytes.Buffer{}, Progress: &bytes.Buffer{}}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")
}

// countingStopper records Stop calls.
type countingStopper struct {
	mu    sync.Mutex
	stops int
	ch    chan struct{}
}

func (s *countingStopper) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	if s.ch != nil {
		s.ch <- struct{}{}
	}
}

func TestWatchInterrupts(t *testing.T) {
	t.Run("first interrupt stops, second shuts the browser down", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		sigs := make(chan os.Signal, 2)
		sigs <- os.Interrupt
		sigs <- os.Interrupt
		stopper := &countingStopper{}
		browser := new(mocks.MockBrowserManager)
		browser.On("Shutdown", mock.Anything).Return(nil).Once()

		watchInterrupts(context.Background(), sigs, stopper, browser, zaptest.NewLogger(t))

		assert.Equal(t, 1, stopper.stops)
		browser.AssertExpectations(t)
	})

	t.Run("returns when the run ends", func(t *testing.T) {
		defer goleak.VerifyNone(t)

		sigs := make(chan os.Signal, 1)
		stopper := &countingStopper{ch: make(chan struct{}, 1)}
		browser := new(mocks.MockBrowserManager)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			watchInterrupts(ctx, sigs, stopper, browser, zaptest.NewLogger(t))
		}()

		sigs <- os.Interrupt
		select {
		case <-stopper.ch:
		case <-time.After(time.Second):
			t.Fatal("runner was not stopped")
		}
		cancel()
		<-done
		browser.AssertNotCalled(t, "Shutdown", mock.Anything)
	})
}

func TestWaitForTabs_InterruptEndsWait(t *testing.T) {
	defer goleak.VerifyNone(t)

	sigs := make(chan os.Signal, 1)
	sigs <- os.Interrupt
	var waitErr error
	waitForTabs(context.Background(), sigs, func(ctx context.Context) error {
		<-ctx.Done()
		waitErr = ctx.Err()
		return waitErr
	}, zaptest.NewLogger(t))
	assert.ErrorIs(t, waitErr, context.Canceled)
}
