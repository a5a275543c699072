package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// Memory is an in-process outcome store. It backs runs without a database
// and keeps nothing across processes.
type Memory struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) HasRecentSuccess(ctx context.Context, companyName, url string, since time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		o := r.Outcome
		if o.Status == schemas.StatusSuccess && o.Target.CompanyName == companyName && o.Target.URL == url && !o.FinishedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Append(ctx context.Context, runID string, outcome schemas.ProcessingOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, Record{ID: uuid.NewString(), RunID: runID, Outcome: outcome})
	return nil
}

func (m *Memory) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	var removed int64
	for _, r := range m.records {
		if r.Outcome.FinishedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return removed, nil
}

func (m *Memory) Recent(ctx context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	out := append([]Record(nil), m.records...)
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Outcome.FinishedAt.After(out[j].Outcome.FinishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
