// Package session tracks the live sessions of the agent: interactive
// terminals and screen recordings. The Registry is the single source of
// truth for session handles and the only structure mutated by concurrent
// callers; each handle's underlying resources (pty, file sink) are
// exclusively owned by their session for its lifetime.
package session

import (
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Kind distinguishes the session types tracked by the registry.
type Kind string

const (
	KindTerminal  Kind = "terminal"
	KindRecording Kind = "recording"
)

// ErrNotFound is returned when a session id does not resolve to a live handle.
var ErrNotFound = errors.New("session not found")

// Handle is a live session owned by the registry. Close releases any OS
// resources held by the session and must be idempotent.
type Handle interface {
	SessionID() string
	SessionKind() Kind
	Close() error
}

// Registry is a concurrency-safe keyed table of live session handles.
// A registered id maps to exactly one live handle; ids are never reused.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Handle)}
}

// NewID mints a fresh non-colliding session identifier.
func (r *Registry) NewID() string {
	return uuid.New().String()
}

// Add registers a live handle under its session id.
func (r *Registry) Add(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[h.SessionID()] = h
}

// Get returns the handle for id, if registered.
func (r *Registry) Get(id string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[id]
	return h, ok
}

// Remove drops the session from the table and closes it, releasing any held
// OS resources before returning. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	h, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := h.Close(); err != nil {
		log.Printf("registry: close session %s: %v", id, err)
	}
}

// List returns all registered handles of the given kind. An empty kind
// matches every session.
func (r *Registry) List(kind Kind) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Handle
	for _, h := range r.sessions {
		if kind != "" && h.SessionKind() != kind {
			continue
		}
		result = append(result, h)
	}
	return result
}

// Count returns the total number of tracked sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
