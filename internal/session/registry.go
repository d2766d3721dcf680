// Package session holds the per-connection state for the progress channel:
// which sessions exist, which workspace they own and whether a playlist job
// is currently running for them. All mutation goes through Registry methods.
package session

import "sync"

// Session is one logical client connection.
type Session struct {
	ID            string
	WorkspacePath string
	jobActive     bool
}

// Registry is a concurrent map from session identity to session state.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register creates the state for a freshly connected session. Registering an
// existing id returns the existing state.
func (r *Registry) Register(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := &Session{ID: id}
	r.sessions[id] = s
	return s
}

// Unregister removes a session and returns its workspace path, if any, so
// the caller can schedule cleanup of an abandoned workspace.
func (r *Registry) Unregister(id string) (workspacePath string, existed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return "", false
	}
	delete(r.sessions, id)
	return s.WorkspacePath, true
}

// Known reports whether a session id is registered.
func (r *Registry) Known(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	return ok
}

// TryStartJob flips the session's job flag. It returns false when the
// session is unknown or when a job is already active; each session's
// playlist job is a singleton.
func (r *Registry) TryStartJob(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.jobActive {
		return false
	}
	s.jobActive = true
	return true
}

// FinishJob clears the job flag. Safe to call for an unregistered session.
func (r *Registry) FinishJob(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.jobActive = false
	}
}

// SetWorkspace records the workspace path a session owns.
func (r *Registry) SetWorkspace(id, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.WorkspacePath = path
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
