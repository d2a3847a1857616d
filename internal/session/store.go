package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"technical-analyst/chart"
	"technical-analyst/observability"
)

// DefaultIdleTimeout is how long a session survives without activity
const DefaultIdleTimeout = 30 * time.Minute

// Store maps session ids to live sessions
type Store struct {
	deps Deps
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty store whose sessions share deps
func NewStore(deps Deps) *Store {
	if deps.Metrics == nil {
		deps.Metrics = observability.GetMetrics()
	}
	return &Store{
		deps:     deps,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session with a fresh id
func (st *Store) Create(theme chart.Theme) *Session {
	s := newSession(uuid.NewString(), st.deps, theme, st.now)

	st.mu.Lock()
	st.sessions[s.id] = s
	n := len(st.sessions)
	st.mu.Unlock()

	st.deps.Metrics.SetActiveSessions(n)
	observability.WithSession(s.id).Debug("session opened", "theme", theme)
	return s
}

// Get returns a live session and marks it active
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s.touch()
	return s, true
}

// Close closes and forgets one session
func (st *Store) Close(id string) bool {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	n := len(st.sessions)
	st.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	st.deps.Metrics.SetActiveSessions(n)
	return true
}

// Sweep closes sessions idle for longer than maxIdle and returns how many
func (st *Store) Sweep(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		maxIdle = DefaultIdleTimeout
	}
	cutoff := st.now().Add(-maxIdle)

	st.mu.Lock()
	var stale []*Session
	for id, s := range st.sessions {
		if s.idleSince().Before(cutoff) {
			stale = append(stale, s)
			delete(st.sessions, id)
		}
	}
	n := len(st.sessions)
	st.mu.Unlock()

	for _, s := range stale {
		s.Close()
		observability.WithSession(s.id).Debug("idle session closed")
	}
	st.deps.Metrics.SetActiveSessions(n)
	return len(stale)
}

// CloseAll closes every session, for shutdown
func (st *Store) CloseAll() {
	st.mu.Lock()
	all := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	st.deps.Metrics.SetActiveSessions(0)
}

// Len returns the number of live sessions
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// IDs lists live session ids in order
func (st *Store) IDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
