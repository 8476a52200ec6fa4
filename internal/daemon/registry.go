package daemon

import (
	"sync"
	"time"
)

// pendingRequest is the daemon-side record described in spec.md §3: every
// upstreamId in flight has exactly one pending entry. Reply delivery or
// timeout removes it.
type pendingRequest struct {
	upstreamID string
	originalID string
	conn       *clientConn
	tool       string
	deadline   time.Time
	timer      *time.Timer
	release    func() // releases the AI-site serialization slot, if any
}

// registry maps upstream-id to pendingRequest, guarded by a single mutex
// with hold times bounded to one map operation, per spec.md §5.
type registry struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
}

func newRegistry() *registry {
	return &registry{pending: make(map[string]*pendingRequest)}
}

func (r *registry) add(p *pendingRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[p.upstreamID] = p
}

// takeByUpstreamID removes and returns the pending entry for an upstream
// reply, or ok=false if no such entry exists (late/duplicate/unknown reply).
func (r *registry) takeByUpstreamID(upstreamID string) (*pendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[upstreamID]
	if ok {
		delete(r.pending, upstreamID)
	}
	return p, ok
}

// hasInFlight reports whether originalID is already pending for conn — used
// to detect in-flight id reuse, which spec.md §8 forbids (reuse is only
// permitted once the prior request has completed).
func (r *registry) hasInFlight(conn *clientConn, originalID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pending {
		if p.conn == conn && p.originalID == originalID {
			return true
		}
	}
	return false
}

// purgeConn removes every pending entry belonging to conn (client
// disconnect per spec.md §4.C's fault model) and returns them so callers can
// stop their timers and release site-queue slots.
func (r *registry) purgeConn(conn *clientConn) []*pendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged []*pendingRequest
	for id, p := range r.pending {
		if p.conn == conn {
			purged = append(purged, p)
			delete(r.pending, id)
		}
	}
	return purged
}

// count reports how many requests are currently pending, for admin status.
func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// drainAll removes every pending entry (upstream EOF per spec.md §4.C) and
// returns them so the caller can synthesize transport-error replies.
func (r *registry) drainAll() []*pendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*pendingRequest, 0, len(r.pending))
	for id, p := range r.pending {
		all = append(all, p)
		delete(r.pending, id)
	}
	return all
}
