package relay

import (
	"sort"
	"sync"
)

// Registry tracks which identities currently hold an open relay connection.
// It is built by the caller and injected into the Hub, so tests can observe
// presence without standing up a server. Each identity's entry is mutated only
// by that identity's own connection handler; the mutex covers concurrent
// handlers for different identities.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Client)}
}

// Register binds identity to c and returns the connection it replaced, if any.
// An identity holds at most one connection; a second connection takes over.
func (r *Registry) Register(identity string, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[identity]
	r.conns[identity] = c
	return prev
}

// Deregister removes identity only if it is still bound to c. This keeps a
// slow disconnect of a replaced connection from knocking out its successor.
func (r *Registry) Deregister(identity string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[identity] != c {
		return false
	}
	delete(r.conns, identity)
	return true
}

func (r *Registry) IsReachable(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[identity]
	return ok
}

// List returns the current presence set, sorted for stable broadcasts.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) get(identity string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[identity]
	return c, ok
}

func (r *Registry) all() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}
