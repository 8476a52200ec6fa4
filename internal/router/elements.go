package router

import (
	"fmt"
	"sync"
)

// elementRegistry stamps accessibility-tree nodes with short stable labels
// (e1, e2, ...) for a single tab, per spec.md §4.D. References reset on
// every new accessibility-tree read; the router never interprets the label
// itself, only hands it back to the content script.
type elementRegistry struct {
	mu      sync.Mutex
	counter int
	refs    map[string]ElementRef
}

// ElementRef is whatever the content script needs to resolve a label back
// to a concrete node. The router treats it as opaque beyond storing it.
type ElementRef struct {
	Label     string
	NodeID    int
	BackendID int
}

func newElementRegistry() *elementRegistry {
	return &elementRegistry{refs: make(map[string]ElementRef)}
}

// reset clears all labels, called at the start of every accessibility-tree
// read.
func (r *elementRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter = 0
	r.refs = make(map[string]ElementRef)
}

// stamp assigns the next label to a node and records its ref.
func (r *elementRegistry) stamp(nodeID, backendID int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counter++
	label := fmt.Sprintf("e%d", r.counter)
	r.refs[label] = ElementRef{Label: label, NodeID: nodeID, BackendID: backendID}
	return label
}

// resolve looks up a previously stamped label.
func (r *elementRegistry) resolve(label string) (ElementRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.refs[label]
	return ref, ok
}
