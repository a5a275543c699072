package humanoid

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// mockExecutor records every low-level call so tests can assert on the
// emitted event stream.
type mockExecutor struct {
	mu               sync.Mutex
	dispatchedEvents []schemas.MouseEventData
	sentKeys         []string
	structuredKeys   []schemas.KeyEventData
	sleepDurations   []time.Duration
	returnErr        error
	geometry         *schemas.ElementGeometry
	geometryErr      error

	// cancelOnSleep cancels the test context on the Nth sleep call.
	cancelOnSleep int
	cancelFunc    context.CancelFunc
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{
		geometry: &schemas.ElementGeometry{
			Vertices: []float64{100, 200, 200, 200, 200, 240, 100, 240},
			Width:    100,
			Height:   40,
			TagName:  "INPUT",
		},
	}
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.sleepDurations = append(m.sleepDurations, d)
	n := len(m.sleepDurations)
	m.mu.Unlock()
	if m.cancelOnSleep > 0 && n == m.cancelOnSleep && m.cancelFunc != nil {
		m.cancelFunc()
		return context.Canceled
	}
	return nil
}

func (m *mockExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	m.mu.Lock()
	m.dispatchedEvents = append(m.dispatchedEvents, data)
	m.mu.Unlock()
	if m.returnErr != nil {
		return m.returnErr
	}
	return ctx.Err()
}

func (m *mockExecutor) SendKeys(ctx context.Context, keys string) error {
	if m.returnErr != nil {
		return m.returnErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentKeys = append(m.sentKeys, keys)
	return nil
}

func (m *mockExecutor) DispatchStructuredKey(ctx context.Context, data schemas.KeyEventData) error {
	if m.returnErr != nil {
		return m.returnErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structuredKeys = append(m.structuredKeys, data)
	return nil
}

func (m *mockExecutor) GetElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	return m.geometry, m.geometryErr
}

func (m *mockExecutor) eventsOfType(t schemas.MouseEventType) []schemas.MouseEventData {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []schemas.MouseEventData
	for _, e := range m.dispatchedEvents {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
