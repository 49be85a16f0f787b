package pipeline

import (
	"sync"
	"time"
)

// RunStats counts the outcome of one run. Duration is whole seconds.
type RunStats struct {
	Extracted  int     `json:"extracted"`
	Duplicates int     `json:"duplicates"`
	Errors     int     `json:"errors"`
	Duration   float64 `json:"duration"`
	RunID      string  `json:"runId,omitempty"`
	Limit      int     `json:"limit,omitempty"`
	Candidates int     `json:"candidates,omitempty"`
}

// RunState is a point-in-time view of the orchestrator.
type RunState struct {
	IsRunning  bool       `json:"isRunning"`
	LastRun    *time.Time `json:"lastRun"`
	LastResult *RunStats  `json:"lastResult"`
	NextRun    string     `json:"nextRun"`
}

// State guards RunState. The zero value is idle with no history.
type State struct {
	mu sync.Mutex
	s  RunState
}

// TryStart marks a run as active. It returns false if one already is.
func (st *State) TryStart() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.IsRunning {
		return false
	}
	st.s.IsRunning = true
	return true
}

// Finish marks the run idle and records its completion time and stats.
func (st *State) Finish(stats RunStats, at time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.IsRunning = false
	st.s.LastRun = &at
	st.s.LastResult = &stats
}

// SetNextRun records the human-readable schedule description.
func (st *State) SetNextRun(next string) {
	st.mu.Lock()
	st.s.NextRun = next
	st.mu.Unlock()
}

// Snapshot returns a copy that shares nothing with the guarded state.
func (st *State) Snapshot() RunState {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := st.s
	if st.s.LastRun != nil {
		at := *st.s.LastRun
		out.LastRun = &at
	}
	if st.s.LastResult != nil {
		stats := *st.s.LastResult
		out.LastResult = &stats
	}
	return out
}
