package server

import (
	"sync"

	"github.com/fleetsink-io/fleetsink/internal/backup"
)

// Status is the shared view of the agent the operational endpoints serve.
// The scheduler side writes, the HTTP side reads.
type Status struct {
	mu        sync.Mutex
	state     string
	ready     bool
	completed uint64
	lastCycle *backup.CycleReport
	lastError string
}

func NewStatus() *Status {
	return &Status{state: backup.StateAuthenticating}
}

// SetState records the scheduler's current state.
func (s *Status) SetState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// RecordCycle stores the outcome of a finished cycle. The agent is
// considered ready once a cycle has completed without error.
func (s *Status) RecordCycle(report backup.CycleReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed++
	s.lastCycle = &report
	if err != nil {
		s.lastError = err.Error()
		return
	}
	s.lastError = ""
	s.ready = true
}

// Ready reports whether at least one cycle has succeeded.
func (s *Status) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// View is the JSON shape of /statusz.
type View struct {
	State           string              `json:"state"`
	Ready           bool                `json:"ready"`
	CyclesCompleted uint64              `json:"cyclesCompleted"`
	LastCycle       *backup.CycleReport `json:"lastCycle,omitempty"`
	LastError       string              `json:"lastError,omitempty"`
}

// Snapshot returns a copy safe to serialize without holding the lock.
func (s *Status) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := View{
		State:           s.state,
		Ready:           s.ready,
		CyclesCompleted: s.completed,
		LastError:       s.lastError,
	}
	if s.lastCycle != nil {
		cp := *s.lastCycle
		view.LastCycle = &cp
	}
	return view
}
