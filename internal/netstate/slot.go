package netstate

import (
	"sync"
)

// Slot holds one service's session snapshot and the handle of its running
// tasks.
//
// cmd serializes start/stop commands for the service. mu guards the snapshot
// and the handle and is only held for short read-modify-write sections, never
// across network or storage calls.
type Slot[S any] struct {
	cmd    sync.Mutex
	mu     sync.RWMutex
	state  S
	handle *TaskHandle
	clone  func(S) S
}

func newSlot[S any](initial S, clone func(S) S) *Slot[S] {
	if clone == nil {
		clone = func(s S) S { return s }
	}
	return &Slot[S]{state: initial, clone: clone}
}

// Lock acquires the command lock. Start and Stop implementations hold it for
// their whole duration so concurrent commands on the same service serialize.
func (s *Slot[S]) Lock()   { s.cmd.Lock() }
func (s *Slot[S]) Unlock() { s.cmd.Unlock() }

// Snapshot returns a copy of the current session.
func (s *Slot[S]) Snapshot() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clone(s.state)
}

// Update applies fn to the session under the snapshot lock and returns a copy
// of the result.
func (s *Slot[S]) Update(fn func(*S)) S {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	return s.clone(s.state)
}

// Handle returns the running task handle, or nil if the service is stopped.
func (s *Slot[S]) Handle() *TaskHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

// SetHandle stores h and returns the previously stored handle.
func (s *Slot[S]) SetHandle(h *TaskHandle) *TaskHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.handle
	s.handle = h
	return prev
}
