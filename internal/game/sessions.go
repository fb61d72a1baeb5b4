package game

import (
	"sync"
	"time"
)

// Session is the ephemeral per-connection player state. It is owned by the
// Registry and never persisted.
type Session struct {
	ConnID   string
	UID      string
	Name     string
	TeamCode string

	HasPos     bool
	Pos        Position
	Rot        float64
	LastUpdate time.Time
}

// Registry maps live connections to authenticated players. All mutation goes
// through its methods under a single lock, mirroring the single-threaded
// event loop the protocol assumes.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Put registers or replaces the session for a connection.
func (r *Registry) Put(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ConnID] = &s
}

// Get returns a copy of the session for connID.
func (r *Registry) Get(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Remove drops the session and returns its final state.
func (r *Registry) Remove(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, connID)
	return *s, true
}

// UpdateMovement applies the movement guard to a new position sample and
// advances the session baseline. It returns the post-update session snapshot,
// the instantaneous speed, and whether the sample exceeded the guard's
// ceiling. ok is false when the connection has no registered session.
func (r *Registry) UpdateMovement(connID string, guard MovementGuard, p Position, rot float64, now time.Time) (snap Session, speed float64, flagged, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, found := r.sessions[connID]
	if !found {
		return Session{}, 0, false, false
	}
	speed, flagged = guard.Apply(s, p, now)
	s.Rot = rot
	return *s, speed, flagged, true
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
