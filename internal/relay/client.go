package relay

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ClientEntry holds one connection's socket, send queue, backpressure
// counter, liveness flag, and owned sender task, modeled on the
// teacher's media.Proxy-managed resources but scoped to a single TCP
// peer rather than an RTP port pair.
type ClientEntry struct {
	ID   uuid.UUID
	conn net.Conn

	queue *frameQueue

	// active is a one-way atomic gate: the first successful
	// compare-and-swap from true to false is the exclusive teardown
	// path for this entry. All other callers of deactivate observe a
	// no-op.
	active atomic.Bool

	// dropLimiter throttles "queue full, dropping oldest frames"
	// warnings to at most once per second per client so a single
	// misbehaving client cannot flood the log.
	dropLimiter *rate.Limiter

	// wg tracks the reader and sender goroutines so Stop can join them.
	wg sync.WaitGroup
}

// newClientEntry creates a Client Entry for an accepted connection.
// The entry starts active; capacity bounds its send queue.
func newClientEntry(conn net.Conn, capacity int) *ClientEntry {
	e := &ClientEntry{
		ID:          uuid.New(),
		conn:        conn,
		queue:       newFrameQueue(capacity),
		dropLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	e.active.Store(true)
	return e
}

// IsActive reports whether this entry has not yet begun teardown.
func (e *ClientEntry) IsActive() bool {
	return e.active.Load()
}

// QueueDepth returns the current number of frames buffered for this
// client, for metrics reporting.
func (e *ClientEntry) QueueDepth() int {
	return e.queue.len()
}

// deactivate atomically flips active from true to false. It returns
// true only for the single caller that performed the transition; that
// caller is responsible for calling teardown (socket close, queue drain,
// sender wake). Unlinking from the registry happens separately, once
// both the reader and sender goroutines have returned (see Server.admit).
func (e *ClientEntry) deactivate() bool {
	return e.active.CompareAndSwap(true, false)
}

// teardown is invoked exactly once, by whichever of {ingress reader,
// egress sender, lifecycle controller} first calls deactivate
// successfully. It closes the socket (unblocking a reader parked in
// read_frame) and drains/closes the queue (waking a sender parked on
// its condition variable). It must never block, since it may run on
// either the reader's or the sender's own goroutine.
func (e *ClientEntry) teardown() {
	e.conn.Close()
	e.queue.close()
}

// wait blocks until both the reader and sender goroutines owned by
// this entry have returned. Callers use this to know when it is safe
// to unlink the entry from the registry.
func (e *ClientEntry) wait() {
	e.wg.Wait()
}
