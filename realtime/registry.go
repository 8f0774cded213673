package realtime

import "sync"

// Registry maps usernames to their live authenticated sessions. Only
// authenticated sessions are ever registered.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]map[string]*Session)}
}

// Register adds s under its authenticated username. Unauthenticated and
// closed sessions are refused. A session must be closed before it is
// unregistered so the two cannot interleave into a stale entry.
func (r *Registry) Register(s *Session) bool {
	name := s.Username()
	if name == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-s.Done():
		return false
	default:
	}

	sessions, ok := r.byName[name]
	if !ok {
		sessions = make(map[string]*Session)
		r.byName[name] = sessions
	}
	sessions[s.ID] = s
	return true
}

// Unregister removes s. Safe to call for sessions that were never registered.
func (r *Registry) Unregister(s *Session) {
	name := s.Username()
	if name == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.byName[name]
	if !ok {
		return
	}
	delete(sessions, s.ID)
	if len(sessions) == 0 {
		delete(r.byName, name)
	}
}

// Sessions returns a snapshot of the sessions registered for username
func (r *Registry) Sessions(username string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.byName[username]
	out := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of registered sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, sessions := range r.byName {
		n += len(sessions)
	}
	return n
}
