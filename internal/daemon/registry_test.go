package daemon

import "testing"

func TestRegistryAddAndTake(t *testing.T) {
	r := newRegistry()
	p := &pendingRequest{upstreamID: "up-1", originalID: "a1"}
	r.add(p)

	got, ok := r.takeByUpstreamID("up-1")
	if !ok || got != p {
		t.Fatal("expected to find the registered pending request")
	}
	if _, ok := r.takeByUpstreamID("up-1"); ok {
		t.Fatal("expected a second take to find nothing, a reply is delivered at most once")
	}
}

func TestRegistryTakeUnknownID(t *testing.T) {
	r := newRegistry()
	if _, ok := r.takeByUpstreamID("missing"); ok {
		t.Fatal("expected no entry for an unregistered id")
	}
}

func TestRegistryPurgeConnOnlyRemovesThatConnsEntries(t *testing.T) {
	r := newRegistry()
	connA := &clientConn{id: "a"}
	connB := &clientConn{id: "b"}

	pa := &pendingRequest{upstreamID: "up-a", originalID: "1", conn: connA}
	pb := &pendingRequest{upstreamID: "up-b", originalID: "1", conn: connB}
	r.add(pa)
	r.add(pb)

	purged := r.purgeConn(connA)
	if len(purged) != 1 || purged[0] != pa {
		t.Fatalf("expected exactly connA's entry purged, got %+v", purged)
	}
	if _, ok := r.takeByUpstreamID("up-a"); ok {
		t.Fatal("expected connA's entry to be gone after purge")
	}
	if _, ok := r.takeByUpstreamID("up-b"); !ok {
		t.Fatal("expected connB's entry to survive connA's purge")
	}
}

func TestRegistryDrainAll(t *testing.T) {
	r := newRegistry()
	r.add(&pendingRequest{upstreamID: "up-1"})
	r.add(&pendingRequest{upstreamID: "up-2"})

	drained := r.drainAll()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained entries, got %d", len(drained))
	}
	if len(r.pending) != 0 {
		t.Fatal("expected registry to be empty after drainAll")
	}
}

func TestRegistryHasInFlight(t *testing.T) {
	r := newRegistry()
	conn := &clientConn{id: "a"}
	if r.hasInFlight(conn, "x") {
		t.Fatal("expected no in-flight entry before registration")
	}
	r.add(&pendingRequest{upstreamID: "up-1", originalID: "x", conn: conn})
	if !r.hasInFlight(conn, "x") {
		t.Fatal("expected in-flight entry after registration")
	}
}
