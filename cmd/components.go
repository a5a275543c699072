package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/store"
)

const shutdownTimeout = 15 * time.Second

// runComponents holds the services that live for a whole run.
type runComponents struct {
	Browser schemas.BrowserManager
	Store   store.Backend
	// WaitTabs blocks until every tab left for an operator has been closed.
	WaitTabs func(ctx context.Context) error

	closeStore func()
}

// Shutdown releases the browser and the store.
func (rc *runComponents) Shutdown(logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if rc.Browser != nil {
		if err := rc.Browser.Shutdown(ctx); err != nil {
			logger.Warn("Error during browser shutdown", zap.Error(err))
		}
	}
	if rc.closeStore != nil {
		rc.closeStore()
	}
}

// componentFactory builds run components. Tests swap in fakes.
type componentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*runComponents, error)
}

type defaultComponentFactory struct{}

func (defaultComponentFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*runComponents, error) {
	backend, closeStore, err := openBackend(ctx, cfg, logger, true)
	if err != nil {
		return nil, err
	}
	cached, err := store.NewCached(backend, cfg.Database().LookupCacheSize)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to create lookup cache: %w", err)
	}

	mgr, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to initialize browser manager: %w", err)
	}
	return &runComponents{Browser: mgr, Store: cached, WaitTabs: mgr.Wait, closeStore: closeStore}, nil
}

// openBackend connects to PostgreSQL when database.url is set. Without it a
// run falls back to an in-process store, which only deduplicates within the
// run; other commands need the database and fail.
func openBackend(ctx context.Context, cfg config.Interface, logger *zap.Logger, allowMemory bool) (store.Backend, func(), error) {
	dsn := cfg.Database().URL
	if dsn == "" {
		if !allowMemory {
			return nil, nil, fmt.Errorf("database URL is not configured (FORMPILOT_DATABASE_URL)")
		}
		logger.Warn("No database configured. Outcomes are kept in memory and deduplication covers this run only.")
		return store.NewMemory(), func() {}, nil
	}
	s, closePool, err := store.Connect(ctx, dsn, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database store: %w", err)
	}
	return s, func() {
		closePool()
		logger.Debug("Database connection pool closed.")
	}, nil
}

// storeProvider opens the outcome store for the maintenance commands.
type storeProvider interface {
	Create(ctx context.Context, cfg config.Interface) (store.Backend, func(), error)
}

type defaultStoreProvider struct{}

// NewStoreProvider returns the PostgreSQL-backed provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (store.Backend, func(), error) {
	return openBackend(ctx, cfg, observability.GetLogger(), false)
}

// browserFactory launches a browser for one-off commands.
type browserFactory interface {
	NewBrowser(ctx context.Context, cfg config.Interface, logger *zap.Logger) (schemas.BrowserManager, error)
}

type defaultBrowserFactory struct{}

func (defaultBrowserFactory) NewBrowser(ctx context.Context, cfg config.Interface, logger *zap.Logger) (schemas.BrowserManager, error) {
	return browser.NewManager(ctx, cfg, logger)
}
