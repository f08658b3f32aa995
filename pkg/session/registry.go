package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/backoffice/pkg/observability"
)

// Factory builds the per-session value for a gateway session id
type Factory[T any] func(sessionID string) T

// Registry maps gateway session ids to per-session values, usually a
// Manager plus whatever the gateway keeps alongside it. Sessions idle for
// longer than the TTL, or pushed out by newer ones, are dropped; their
// persisted tokens let a later request for the same id restore them.
type Registry[T any] struct {
	mu       sync.Mutex
	sessions *lru.LRU[string, T]
	factory  Factory[T]
	ttl      time.Duration
	metrics  *observability.Metrics
}

// NewRegistry creates a registry holding at most size sessions
func NewRegistry[T any](size int, idleTTL time.Duration, factory Factory[T], metrics *observability.Metrics) *Registry[T] {
	if size < 1 {
		size = 1
	}
	r := &Registry[T]{factory: factory, ttl: idleTTL, metrics: metrics}
	r.sessions = lru.NewLRU[string, T](size, func(string, T) {
		if r.metrics != nil {
			r.metrics.ActiveSessions.Dec()
		}
	}, idleTTL)
	return r
}

// Get returns the value for id and refreshes its idle timer
func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.sessions.Get(id)
	if ok {
		r.sessions.Add(id, v)
	}
	return v, ok
}

// GetOrCreate returns the value for id, creating one when id is unknown.
// An empty or malformed id gets a fresh random id. created reports whether
// the returned value is new.
func (r *Registry[T]) GetOrCreate(id string) (sessionID string, v T, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	if v, ok := r.sessions.Get(id); ok {
		r.sessions.Add(id, v)
		return id, v, false
	}

	v = r.factory(id)
	r.sessions.Add(id, v)
	if r.metrics != nil {
		r.metrics.ActiveSessions.Inc()
	}
	return id, v, true
}

// Remove drops the session
func (r *Registry[T]) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions.Remove(id)
}

// Len reports how many sessions are held
func (r *Registry[T]) Len() int {
	return r.sessions.Len()
}

// TTL is the idle timeout applied to sessions
func (r *Registry[T]) TTL() time.Duration {
	return r.ttl
}
