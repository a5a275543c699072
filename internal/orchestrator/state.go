package orchestrator

import (
	"sync"
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// PendingTab is a tab left open in supervised mode for a human to finish.
type PendingTab struct {
	TabID  string               `json:"tab_id"`
	Target schemas.TargetRecord `json:"target"`
	Status schemas.Status       `json:"status"`
	Reason string               `json:"reason"`
}

// StateSnapshot is a point-in-time copy of a RunState.
type StateSnapshot struct {
	RunID          string
	Mode           schemas.RunMode
	StartedAt      time.Time
	Total          int
	Processed      int
	Succeeded      int
	Failed         int
	ManualRequired int
	Skipped        int
	Current        string
	Running        bool
	Pending        []PendingTab
}

// AutoCompleted is the number of targets confirmed without a human.
func (s StateSnapshot) AutoCompleted() int { return s.Succeeded }

// RunState holds the running totals of one batch. All access goes through
// its methods.
type RunState struct {
	mu       sync.Mutex
	snap     StateSnapshot
	outcomes []schemas.ProcessingOutcome
}

func newRunState() *RunState {
	return &RunState{}
}

func (s *RunState) begin(runID string, mode schemas.RunMode, total int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = StateSnapshot{RunID: runID, Mode: mode, StartedAt: at, Total: total, Running: true}
	s.outcomes = make([]schemas.ProcessingOutcome, 0, total)
}

func (s *RunState) setCurrent(company string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Current = company
}

func (s *RunState) record(o schemas.ProcessingOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
	s.snap.Processed++
	switch o.Status {
	case schemas.StatusSuccess:
		s.snap.Succeeded++
	case schemas.StatusFailed:
		s.snap.Failed++
	case schemas.StatusManualRequired:
		s.snap.ManualRequired++
	case schemas.StatusSkipped:
		s.snap.Skipped++
	}
}

func (s *RunState) addPending(tab PendingTab) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Pending = append(s.snap.Pending, tab)
}

// removePending drops the pending entry for tabID and reports whether one
// was found.
func (s *RunState) removePending(tabID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tab := range s.snap.Pending {
		if tab.TabID == tabID {
			s.snap.Pending = append(s.snap.Pending[:i:i], s.snap.Pending[i+1:]...)
			return true
		}
	}
	return false
}

func (s *RunState) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Running = false
	s.snap.Current = ""
}

// Snapshot returns a copy that is safe to keep.
func (s *RunState) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	out.Pending = append([]PendingTab(nil), s.snap.Pending...)
	return out
}

func (s *RunState) summary(finished time.Time) schemas.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := schemas.RunSummary{
		RunID:          s.snap.RunID,
		Mode:           s.snap.Mode,
		StartedAt:      s.snap.StartedAt,
		FinishedAt:     finished,
		Processed:      s.snap.Processed,
		Succeeded:      s.snap.Succeeded,
		Failed:         s.snap.Failed,
		ManualRequired: s.snap.ManualRequired,
		Skipped:        s.snap.Skipped,
		Outcomes:       append([]schemas.ProcessingOutcome(nil), s.outcomes...),
	}
	for _, p := range s.snap.Pending {
		sum.PendingTabs = append(sum.PendingTabs, p.TabID)
	}
	return sum
}
