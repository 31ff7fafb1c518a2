// Package relay implements the server-side data plane of voxrelay: the
// broadcast registry of connected clients, the per-client bounded send
// queue, the mixer, and the connection lifecycle that ties them together.
package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Registry is the set of active Client Entries. Its lock protects
// membership only; iteration never blocks on network I/O because writes
// to a client happen through that client's own queue lock, acquired
// after the registry lock is released.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]*ClientEntry

	// protocolViolationLimiter throttles "protocol violation" warnings
	// server-wide (as opposed to ClientEntry.dropLimiter, which throttles
	// per-client backpressure warnings): a single noisy or malicious peer
	// sending malformed length prefixes in a tight loop must not be able
	// to flood the log on behalf of the whole server.
	protocolViolationLimiter *rate.Limiter
}

// NewRegistry creates an empty broadcast registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:                   logger.With("subsystem", "registry"),
		entries:                  make(map[uuid.UUID]*ClientEntry),
		protocolViolationLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// AllowProtocolViolationLog reports whether the caller may emit a
// "protocol violation" log line under the shared server-wide limiter.
// Ingress Readers call this before logging a wire.ErrProtocolViolation.
func (r *Registry) AllowProtocolViolationLog() bool {
	return r.protocolViolationLimiter.Allow()
}

// Insert adds a newly accepted client entry to the registry.
func (r *Registry) Insert(entry *ClientEntry) {
	r.mu.Lock()
	r.entries[entry.ID] = entry
	count := len(r.entries)
	r.mu.Unlock()

	r.logger.Debug("client entry inserted", "client_id", entry.ID, "active_clients", count)
}

// Remove unlinks entry from the registry. It is safe to call even if
// entry was never inserted or has already been removed.
func (r *Registry) Remove(entry *ClientEntry) {
	r.mu.Lock()
	_, existed := r.entries[entry.ID]
	delete(r.entries, entry.ID)
	count := len(r.entries)
	r.mu.Unlock()

	if existed {
		r.logger.Debug("client entry removed", "client_id", entry.ID, "active_clients", count)
	}
}

// Count returns the number of currently registered clients.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ForEachActive invokes fn for a stable snapshot of the currently
// registered entries, taken under the registry lock. fn is called
// outside the lock so it may safely perform per-entry queue operations
// or I/O without risking registry → entry lock inversion.
func (r *Registry) ForEachActive(fn func(*ClientEntry)) {
	r.mu.Lock()
	snapshot := make([]*ClientEntry, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, e)
	}
	r.mu.Unlock()

	for _, e := range snapshot {
		fn(e)
	}
}

// Snapshot returns a point-in-time copy of the registered entries, for
// callers (such as shutdown) that need to iterate after releasing any
// other lock of their own.
func (r *Registry) Snapshot() []*ClientEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ClientEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// ActiveClientCount satisfies adminhttp.ClientQueueDepths for the
// voxrelay_clients_active gauge.
func (r *Registry) ActiveClientCount() int {
	return r.Count()
}

// QueueDepths satisfies adminhttp.ClientQueueDepths for the
// voxrelay_queue_depth gauge, keyed by client id string.
func (r *Registry) QueueDepths() map[string]int {
	depths := make(map[string]int)
	for _, e := range r.Snapshot() {
		depths[e.ID.String()] = e.QueueDepth()
	}
	return depths
}
