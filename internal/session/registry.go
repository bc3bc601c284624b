package session

import (
	"context"
	"sort"
	"sync"

	"github.com/capitalize-ai/ordering-assistant/pkg/metrics"
)

// Factory builds a new session for a customer.
type Factory func(ctx context.Context, customerID string) (*Session, error)

// Registry maps customer identifiers to live sessions. Its lock guards the
// map only; session state is guarded by the LockManager.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the customer's session, building one with factory if
// none exists. Callers hold the customer's lock, so factory runs at most
// once per customer at a time and outside the registry lock.
func (r *Registry) GetOrCreate(ctx context.Context, customerID string, factory Factory) (*Session, bool, error) {
	if s, ok := r.Get(customerID); ok {
		return s, false, nil
	}

	s, err := factory(ctx, customerID)
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[customerID]; ok {
		return existing, false, nil
	}
	r.sessions[customerID] = s
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	return s, true, nil
}

// Get returns the customer's session.
func (r *Registry) Get(customerID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[customerID]
	return s, ok
}

// Remove drops the customer's session if it is still s. It reports whether
// a session was removed.
func (r *Registry) Remove(customerID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[customerID]
	if !ok || (s != nil && current != s) {
		return false
	}
	delete(r.sessions, customerID)
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	return true
}

// Keys returns a sorted snapshot of customer identifiers.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
