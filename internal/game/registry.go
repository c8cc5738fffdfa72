package game

import "sync"

// Registry maps participant identities to their live connection and back.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]string // identity -> connID
	owners map[string]string // connID -> identity
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]string), owners: make(map[string]string)}
}

// Bind points identity at connID, dropping whatever either side was bound to
// before.
func (r *Registry) Bind(identity, connID string) {
	if identity == "" || connID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.conns[identity]; ok {
		delete(r.owners, old)
	}
	if other, ok := r.owners[connID]; ok {
		delete(r.conns, other)
	}
	r.conns[identity] = connID
	r.owners[connID] = identity
}

// Unbind forgets connID and returns the identity that owned it. A connection
// that was superseded by a later Bind owns nothing.
func (r *Registry) Unbind(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.owners[connID]
	if !ok {
		return "", false
	}
	delete(r.owners, connID)
	delete(r.conns, identity)
	return identity, true
}

func (r *Registry) Conn(identity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[identity]
	return c, ok
}

func (r *Registry) Identity(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.owners[connID]
	return id, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
