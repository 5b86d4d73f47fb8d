// ABOUTME: BridgeState tracks registration, processed jobs, last sync and polling
// ABOUTME: Fields are atomics with one writer each; readers take a Snapshot

package bridge

import (
	"sync/atomic"
	"time"
)

// State is the node's view of its hive connection.
type State struct {
	registered    atomic.Bool
	regErr        atomic.Pointer[string]
	jobsProcessed atomic.Int64
	lastSync      atomic.Pointer[time.Time]
	pollActive    atomic.Bool
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	Registered        bool       `json:"registered"`
	RegistrationError string     `json:"registration_error,omitempty"`
	JobsProcessed     int64      `json:"jobs_processed"`
	LastSync          *time.Time `json:"last_sync"`
	PollActive        bool       `json:"poll_active"`
}

// NewState returns a zeroed State.
func NewState() *State {
	return &State{}
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Registered:    s.registered.Load(),
		JobsProcessed: s.jobsProcessed.Load(),
		PollActive:    s.pollActive.Load(),
	}
	if msg := s.regErr.Load(); msg != nil {
		snap.RegistrationError = *msg
	}
	if t := s.lastSync.Load(); t != nil {
		ts := *t
		snap.LastSync = &ts
	}
	return snap
}

// Connected reports whether the hive accepted the node's registration.
func (snap Snapshot) Connected() bool {
	return snap.Registered
}

func (s *State) markRegistered() {
	s.regErr.Store(nil)
	s.registered.Store(true)
}

func (s *State) markRegistrationFailed(err error) {
	msg := err.Error()
	s.regErr.Store(&msg)
}

func (s *State) incProcessed() {
	s.jobsProcessed.Add(1)
}

func (s *State) markSynced(t time.Time) {
	s.lastSync.Store(&t)
}

func (s *State) setPollActive(active bool) {
	s.pollActive.Store(active)
}
