package httpapi

import (
	"sync"
)

// SessionRegistry tracks active media bridge sessions keyed by provider call
// id and supports graceful draining. When draining is enabled, new sessions
// are rejected while in-flight calls finish naturally.
//
// The mu mutex makes the draining check and wg.Add atomic in Add(), so no
// session can slip in between StartDraining and Wait.
type SessionRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	sessions map[string]func()
}

// NewSessionRegistry creates a new SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]func())}
}

// Add registers an active bridge session with a function that tears it down.
// Returns false if the registry is draining, meaning the session must not
// start. Sessions registered before their call sid is known may pass an
// empty key and re-register via Rekey once the stream starts.
func (sr *SessionRegistry) Add(callSID string, closeFn func()) bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.draining {
		return false
	}
	sr.wg.Add(1)
	if callSID != "" {
		sr.sessions[callSID] = closeFn
	}
	return true
}

// Rekey attaches a call sid to a session registered before the sid was known.
func (sr *SessionRegistry) Rekey(callSID string, closeFn func()) {
	if callSID == "" {
		return
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.sessions[callSID] = closeFn
}

// Done marks a session as finished. Must be called exactly once per
// successful Add.
func (sr *SessionRegistry) Done(callSID string) {
	sr.mu.Lock()
	delete(sr.sessions, callSID)
	sr.mu.Unlock()
	sr.wg.Done()
}

// Close tears down the session for a call, if one is active. Used when the
// provider reports a terminal call status while the bridge still thinks the
// call is live.
func (sr *SessionRegistry) Close(callSID string) {
	sr.mu.Lock()
	closeFn := sr.sessions[callSID]
	sr.mu.Unlock()
	if closeFn != nil {
		closeFn()
	}
}

// StartDraining sets the draining flag so that future Add calls return false.
func (sr *SessionRegistry) StartDraining() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (sr *SessionRegistry) IsDraining() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.draining
}

// ActiveCount returns the number of sessions with a known call sid.
func (sr *SessionRegistry) ActiveCount() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return len(sr.sessions)
}

// Wait blocks until all active sessions have finished.
func (sr *SessionRegistry) Wait() {
	sr.wg.Wait()
}
