package google

import "sync"

// PendingStore owns the verification material for the single in-flight OAuth
// flow. It is injected into both the flow orchestrator and the host command
// handlers; all access goes through its interior mutex, and critical sections
// never span network I/O.
//
// A new flow overwrites the previous pending request rather than queuing
// behind it. Multiple concurrent flows are out of scope for the desktop
// application.
type PendingStore struct {
	mu      sync.Mutex
	pending *PendingOAuthRequest
}

// NewPendingStore creates an empty store.
func NewPendingStore() *PendingStore {
	return &PendingStore{}
}

// Set replaces the current pending request unconditionally.
func (s *PendingStore) Set(req PendingOAuthRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &req
}

// Snapshot returns a copy of the pending request without clearing it. The
// exchange step still needs the material after the validation decision, so
// consumption is deferred to Clear.
func (s *PendingStore) Snapshot() (PendingOAuthRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingOAuthRequest{}, false
	}
	return *s.pending, true
}

// Clear removes the pending request. It is called exactly once per concluded
// flow so stale verification material never leaks into the next flow.
func (s *PendingStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}
