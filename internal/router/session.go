package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/batalabs/surfbridge/internal/router/cdp"
)

// captureState is the per-tab network-capture state machine from spec.md
// §4.D: off -> starting -> on -> stopping -> off, with guards preventing
// parallel transitions.
type captureState int

const (
	captureOff captureState = iota
	captureStarting
	captureOn
	captureStopping
)

func (s captureState) String() string {
	switch s {
	case captureOff:
		return "off"
	case captureStarting:
		return "starting"
	case captureOn:
		return "on"
	case captureStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// attachFuture is the shared result of a single in-flight debugger attach,
// per spec.md §3's "at most one attach operation per tab is in flight;
// subsequent attempts await the same future."
type attachFuture struct {
	done   chan struct{}
	client *cdp.Client
	err    error
}

func (f *attachFuture) wait() (*cdp.Client, error) {
	<-f.done
	return f.client, f.err
}

// TabSession is the router's per-tab record (spec.md §3).
type TabSession struct {
	TabID int

	mu             sync.Mutex
	debugger       *cdp.Client
	attachInFlight *attachFuture
	lastUsed       time.Time
	capture        captureState

	elements *elementRegistry

	// inputMu serializes the tab's input tools (click, hover, type, key,
	// drag, scroll), per spec.md's requirement that mouse/keyboard events
	// against one tab never interleave. The reference implementation gets
	// this for free from the extension's own per-tab event queue; here the
	// router is the extension, so it owns the queue directly.
	inputMu sync.Mutex
}

// lockInput acquires the tab's input serialization gate and returns the
// release func; callers should defer the release immediately.
func (s *TabSession) lockInput() func() {
	s.inputMu.Lock()
	return s.inputMu.Unlock
}

func newTabSession(tabID int) *TabSession {
	return &TabSession{TabID: tabID, elements: newElementRegistry()}
}

func (s *TabSession) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// debuggerAttached reports whether the protocol is currently attached,
// without triggering an attach.
func (s *TabSession) debuggerAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debugger != nil
}

// ensureAttached lazily attaches the debugger, collapsing concurrent callers
// onto a single shared future (spec.md §4.D).
func (s *TabSession) ensureAttached(dial DialFunc, endpoint string) (*cdp.Client, error) {
	s.mu.Lock()
	if s.debugger != nil {
		client := s.debugger
		s.mu.Unlock()
		return client, nil
	}
	if s.attachInFlight != nil {
		f := s.attachInFlight
		s.mu.Unlock()
		return f.wait()
	}
	f := &attachFuture{done: make(chan struct{})}
	s.attachInFlight = f
	s.mu.Unlock()

	client, err := dial(endpoint)

	s.mu.Lock()
	if err == nil {
		s.debugger = client
	}
	s.attachInFlight = nil
	s.mu.Unlock()

	f.client, f.err = client, err
	close(f.done)
	return client, err
}

// detach tears down the debugger connection; it is called on tab close
// (tab.close and sessionPool.remove).
func (s *TabSession) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debugger != nil {
		_ = s.debugger.Close()
		s.debugger = nil
	}
}

func (s *TabSession) setCapture(state captureState) {
	s.mu.Lock()
	s.capture = state
	s.mu.Unlock()
}

func (s *TabSession) captureStatus() captureState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}

// DialFunc opens a CDP connection to a per-tab debugger endpoint; swappable
// in tests to avoid a real browser.
type DialFunc func(endpoint string) (*cdp.Client, error)

// sessionPool owns every TabSession, keyed by tab id.
type sessionPool struct {
	mu       sync.Mutex
	sessions map[int]*TabSession
}

func newSessionPool() *sessionPool {
	return &sessionPool{sessions: make(map[int]*TabSession)}
}

func (p *sessionPool) get(tabID int) *TabSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[tabID]
	if !ok {
		s = newTabSession(tabID)
		p.sessions[tabID] = s
	}
	return s
}

func (p *sessionPool) remove(tabID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[tabID]; ok {
		s.detach()
		delete(p.sessions, tabID)
	}
}

func debuggerEndpoint(tabID int) string {
	return fmt.Sprintf("ws://127.0.0.1:9222/devtools/page/%d", tabID)
}
