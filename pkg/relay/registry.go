package relay

import (
	"cmp"
	"net/netip"
	"slices"
	"sync"
	"time"
)

// ClientInfo describes a registered endpoint
type ClientInfo struct {
	Addr         string    `json:"addr"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

type clientEntry struct {
	registeredAt time.Time
	lastSeen     time.Time
}

// Registry is the set of endpoints that opted in to receive frames.
// Membership grows through registration datagrams; endpoints are only
// removed explicitly or by Prune.
type Registry struct {
	mu      sync.RWMutex
	clients map[netip.AddrPort]clientEntry
	now     func() time.Time
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithTimeSource sets the clock used to stamp registrations and to judge
// expiry
func WithTimeSource(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		clients: make(map[netip.AddrPort]clientEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// normalize strips IPv4-in-IPv6 mapping so one client maps to one key
func normalize(addr netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
}

// Register adds addr or refreshes its last-seen time.
// Returns true if the endpoint was not registered before.
func (r *Registry) Register(addr netip.AddrPort) bool {
	addr = normalize(addr)
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.clients[addr]
	if !exists {
		entry.registeredAt = now
	}
	entry.lastSeen = now
	r.clients[addr] = entry
	return !exists
}

// Remove deletes addr. Returns true if it was registered.
func (r *Registry) Remove(addr netip.AddrPort) bool {
	addr = normalize(addr)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[addr]; !ok {
		return false
	}
	delete(r.clients, addr)
	return true
}

// Prune removes endpoints not seen since cutoff and returns them
func (r *Registry) Prune(cutoff time.Time) []netip.AddrPort {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []netip.AddrPort
	for addr, entry := range r.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(r.clients, addr)
			removed = append(removed, addr)
		}
	}
	return removed
}

// Expire removes endpoints not seen within ttl of the registry's clock
func (r *Registry) Expire(ttl time.Duration) []netip.AddrPort {
	return r.Prune(r.now().Add(-ttl))
}

// Snapshot copies the membership so callers can do network I/O without
// holding the lock
func (r *Registry) Snapshot() []netip.AddrPort {
	r.mu.RLock()
	addrs := make([]netip.AddrPort, 0, len(r.clients))
	for addr := range r.clients {
		addrs = append(addrs, addr)
	}
	r.mu.RUnlock()

	slices.SortFunc(addrs, func(a, b netip.AddrPort) int {
		if c := a.Addr().Compare(b.Addr()); c != 0 {
			return c
		}
		return cmp.Compare(a.Port(), b.Port())
	})
	return addrs
}

// Clients returns info about all registered endpoints
func (r *Registry) Clients() []ClientInfo {
	r.mu.RLock()
	infos := make([]ClientInfo, 0, len(r.clients))
	for addr, entry := range r.clients {
		infos = append(infos, ClientInfo{
			Addr:         addr.String(),
			RegisteredAt: entry.registeredAt,
			LastSeen:     entry.lastSeen,
		})
	}
	r.mu.RUnlock()

	slices.SortFunc(infos, func(a, b ClientInfo) int {
		if a.Addr < b.Addr {
			return -1
		}
		if a.Addr > b.Addr {
			return 1
		}
		return 0
	})
	return infos
}

// Len returns the number of registered endpoints
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
