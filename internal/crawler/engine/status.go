package engine

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of Status.
type Snapshot struct {
	Cycles         int       `json:"cycles"`
	LastCycleID    string    `json:"last_cycle_id,omitempty"`
	Delivered      int       `json:"delivered"`
	LastCycleStart time.Time `json:"last_cycle_start"`
	LastCycleEnd   time.Time `json:"last_cycle_end"`
	LastError      string    `json:"last_error,omitempty"`
}

// Status tracks loop progress for the status endpoint.
type Status struct {
	mu   sync.Mutex
	snap Snapshot
}

func (s *Status) cycleStarted(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Cycles++
	s.snap.LastCycleID = id
	s.snap.LastCycleStart = at
}

func (s *Status) cycleFinished(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastCycleEnd = at
	s.snap.LastError = ""
	if err != nil {
		s.snap.LastError = err.Error()
	}
}

func (s *Status) delivered() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Delivered++
}

func (s *Status) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}
