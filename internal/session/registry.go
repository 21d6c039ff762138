// Package session keeps the set of sessions that may receive pipeline work.
package session

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika-relay/domain/repositories"
)

var _ repositories.SessionRegistry = (*Registry)(nil)

// Registry maps session identifiers to an active flag. A session that was
// never added, or has been removed, is inactive. Liveness is driven only by
// Add and Remove; nothing expires on its own.
type Registry struct {
	mu     sync.RWMutex
	active map[string]struct{}
	logger *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		active: make(map[string]struct{}),
		logger: logger,
	}
}

// Add marks a session active. Adding twice is a no-op.
func (r *Registry) Add(sessionID string) {
	r.mu.Lock()
	_, existed := r.active[sessionID]
	r.active[sessionID] = struct{}{}
	r.mu.Unlock()

	if !existed {
		r.logger.Debug("Session activated", zap.String("sessionID", sessionID))
	}
}

// Remove marks a session inactive. Removing an unknown session is a no-op.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	_, existed := r.active[sessionID]
	delete(r.active, sessionID)
	r.mu.Unlock()

	if existed {
		r.logger.Debug("Session deactivated", zap.String("sessionID", sessionID))
	}
}

// IsActive reports whether the session is currently active
func (r *Registry) IsActive(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[sessionID]
	return ok
}

// ListActive returns the active session identifiers in sorted order
func (r *Registry) ListActive() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
