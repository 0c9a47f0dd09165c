package hub

import (
	"sort"
	"sync"

	"github.com/orchestra-mcp/chat/src/types"
)

// Registry maps user identities to their open connections. An entry
// exists only while it holds at least one connection. No method performs
// I/O while holding the lock.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*presenceEntry
	conns int
}

type presenceEntry struct {
	profile types.PublicProfile
	clients []*Client // in connection order
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]*presenceEntry)}
}

// Add registers a connection under its user. It reports true when this is
// the user's first open connection. Adding a handle twice is a no-op.
func (r *Registry) Add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.users[c.User.ID]
	if !ok {
		r.users[c.User.ID] = &presenceEntry{profile: c.User, clients: []*Client{c}}
		r.conns++
		return true
	}
	for _, existing := range entry.clients {
		if existing == c {
			return false
		}
	}
	entry.profile = c.User
	entry.clients = append(entry.clients, c)
	r.conns++
	return false
}

// Remove deregisters a connection. It reports true when that was the
// user's last open connection. Removing an unknown handle is a no-op.
func (r *Registry) Remove(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.users[c.User.ID]
	if !ok {
		return false
	}
	idx := -1
	for i, existing := range entry.clients {
		if existing == c {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	entry.clients = append(entry.clients[:idx], entry.clients[idx+1:]...)
	r.conns--
	if len(entry.clients) == 0 {
		delete(r.users, c.User.ID)
		return true
	}
	return false
}

// IsOnline reports whether the user has at least one open connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// OnlineUserIDs returns a sorted snapshot of online user identities.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Connections returns a point-in-time copy of a user's connections.
func (r *Registry) Connections(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.users[userID]
	if !ok {
		return nil
	}
	out := make([]*Client, len(entry.clients))
	copy(out, entry.clients)
	return out
}

// Profile returns the public profile of an online user.
func (r *Registry) Profile(userID string) (types.PublicProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.users[userID]
	if !ok {
		return types.PublicProfile{}, false
	}
	return entry.profile, true
}

// Stats returns connection and user counts.
func (r *Registry) Stats() types.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return types.Stats{Connections: r.conns, OnlineUsers: len(r.users)}
}

// Drain empties the registry and returns every handle it held.
func (r *Registry) Drain() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, r.conns)
	for _, entry := range r.users {
		out = append(out, entry.clients...)
	}
	r.users = make(map[string]*presenceEntry)
	r.conns = 0
	return out
}
