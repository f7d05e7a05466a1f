package registry

import (
	"sync"
	"time"

	"classcast/pkg/types"
)

// Registry is the in-memory table of all currently connected student
// sessions; the single source of truth for live state. Document mutation
// replaces the whole record (copy-on-write), so a *Session snapshot handed
// to a viewer is never mutated out from under it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session // connectionID -> Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*types.Session),
	}
}

// Put registers or replaces the session for a connection.
func (r *Registry) Put(session *types.Session) {
	if session == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ConnectionID] = session
}

// Get returns the session for a connection. Absent lookups return
// (nil, false), never a fault.
func (r *Registry) Get(connectionID string) (*types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[connectionID]
	return session, exists
}

// UpdateDocument replaces the session record with a copy carrying the new
// document and timestamp. Returns the new record, or (nil, false) if the
// connection is not registered.
func (r *Registry) UpdateDocument(connectionID string, doc types.Document, now time.Time) (*types.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.sessions[connectionID]
	if !exists {
		return nil, false
	}

	updated := *current
	updated.Document = doc
	updated.LastUpdate = now
	r.sessions[connectionID] = &updated

	return &updated, true
}

// Remove drops the session for a connection. Idempotent; removing an absent
// connection is a no-op. Returns the removed session when one existed.
func (r *Registry) Remove(connectionID string) (*types.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[connectionID]
	if !exists {
		return nil, false
	}

	delete(r.sessions, connectionID)
	return session, true
}

// ListByClass returns all live sessions sharing a class code. Scans the
// table; live sessions are bounded (60 per class), so this stays cheap.
func (r *Registry) ListByClass(classCode string) []*types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sessions []*types.Session
	for _, session := range r.sessions {
		if session.ClassCode == classCode {
			sessions = append(sessions, session)
		}
	}
	return sessions
}

// CountByClass counts live sessions in a class; the capacity check at join
// time runs against this.
func (r *Registry) CountByClass(classCode string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, session := range r.sessions {
		if session.ClassCode == classCode {
			count++
		}
	}
	return count
}

// FindByStudentID returns the live session for a student within a class.
// Used by the rejoin path to locate a stale entry left by a dead connection.
func (r *Registry) FindByStudentID(classCode, studentID string) (*types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, session := range r.sessions {
		if session.ClassCode == classCode && session.StudentID == studentID {
			return session, true
		}
	}
	return nil, false
}

// GetStats returns registry statistics for the health endpoint.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	classes := make(map[string]bool)
	for _, session := range r.sessions {
		classes[session.ClassCode] = true
	}

	return map[string]int{
		"live_sessions":  len(r.sessions),
		"active_classes": len(classes),
	}
}
