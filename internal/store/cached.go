package store

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// Backend is the store surface the cache wraps.
type Backend interface {
	HasRecentSuccess(ctx context.Context, companyName, url string, since time.Time) (bool, error)
	Append(ctx context.Context, runID string, outcome schemas.ProcessingOutcome) error
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*Memory)(nil)
	_ Backend = (*Cached)(nil)
)

const defaultCacheSize = 1024

type cacheKey struct {
	company string
	url     string
}

// Cached remembers proven successes in an LRU so repeated lookups for the
// same company skip the backend. Only positive answers are cached: a
// success at time T answers every query with since <= T.
type Cached struct {
	Backend
	proven *lru.Cache[cacheKey, time.Time]
}

// NewCached wraps backend with an LRU of the given size.
func NewCached(backend Backend, size int) (*Cached, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[cacheKey, time.Time](size)
	if err != nil {
		return nil, err
	}
	return &Cached{Backend: backend, proven: c}, nil
}

func (c *Cached) HasRecentSuccess(ctx context.Context, companyName, url string, since time.Time) (bool, error) {
	key := cacheKey{company: companyName, url: url}
	if at, ok := c.proven.Get(key); ok && !at.Before(since) {
		return true, nil
	}
	found, err := c.Backend.HasRecentSuccess(ctx, companyName, url, since)
	if err != nil || !found {
		return found, err
	}
	c.remember(key, since)
	return true, nil
}

func (c *Cached) Append(ctx context.Context, runID string, outcome schemas.ProcessingOutcome) error {
	if err := c.Backend.Append(ctx, runID, outcome); err != nil {
		return err
	}
	if outcome.Status == schemas.StatusSuccess {
		c.remember(cacheKey{company: outcome.Target.CompanyName, url: outcome.Target.URL}, outcome.FinishedAt)
	}
	return nil
}

// Prune drops the cache along with old rows, since a cached proof may
// point at a deleted success.
func (c *Cached) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := c.Backend.Prune(ctx, olderThan)
	c.proven.Purge()
	return n, err
}

func (c *Cached) remember(key cacheKey, at time.Time) {
	if prev, ok := c.proven.Peek(key); ok && prev.After(at) {
		return
	}
	c.proven.Add(key, at)
}
