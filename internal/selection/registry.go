package selection

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/compare-engine/internal/entity"
)

// Session is one client's selection.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Set       *Set      `json:"-"`

	lastSeen time.Time
}

// Registry holds selection sessions in memory, keyed by a random UUID.
type Registry struct {
	mu       sync.Mutex
	schema   entity.Schema
	sessions map[string]*Session
	nowFunc  func() time.Time
}

// NewRegistry returns an empty registry using the default schema.
func NewRegistry() *Registry {
	return NewRegistryForSchema(entity.SolarDeveloper)
}

// NewRegistryForSchema returns an empty registry whose sessions key raw
// records with schema.
func NewRegistryForSchema(schema entity.Schema) *Registry {
	return &Registry{
		schema:   schema,
		sessions: make(map[string]*Session),
		nowFunc:  time.Now,
	}
}

// Create starts a new empty session.
func (r *Registry) Create() *Session {
	now := r.nowFunc()
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Set:       NewForSchema(r.schema),
		lastSeen:  now,
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns the session with id and marks it as used.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if ok {
		s.lastSeen = r.nowFunc()
	}
	return s, ok
}

// Drop deletes a session. It reports whether the session existed.
func (r *Registry) Drop(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than maxIdle and returns how many
// were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.nowFunc().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}
