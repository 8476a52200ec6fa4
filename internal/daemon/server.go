// Package daemon implements the bridge daemon (spec.md §4.C): a local-socket
// acceptor that multiplexes concurrent tool requests from many clients onto
// a single full-duplex framed stdio pipe to the browser extension,
// correlating replies by a rewritten request id and serializing AI-site
// tool calls per site-key.
package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/batalabs/surfbridge/internal/codec"
	"github.com/batalabs/surfbridge/internal/config"
	"github.com/batalabs/surfbridge/internal/protocol"
)

// DefaultTimeout is the per-request deadline when no tool-specific override
// applies, per spec.md §3.
const DefaultTimeout = 30 * time.Second

// upstreamWriteQueueDepth approximates the "unbounded queue" spec.md §5
// describes for the upstream writer task; a large buffer makes enqueue
// non-blocking in practice without requiring real unbounded storage.
const upstreamWriteQueueDepth = 4096

// Server is the bridge daemon described in spec.md §4.C.
type Server struct {
	socketPath string
	socketMode os.FileMode
	logger     *config.Logger

	defaultTimeout time.Duration
	toolTimeouts   map[string]time.Duration

	ln net.Listener

	upstreamW *codec.Writer
	writeCh   chan []byte

	registry *registry
	queues   *siteQueues

	connsMu sync.Mutex
	conns   map[string]*clientConn

	counter uint64

	startedAt     time.Time
	upstreamAlive int32 // atomic bool: 1 once the upstream reader has started

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// Option configures a Server at construction.
type Option func(*Server)

// WithSocketMode sets the unix socket file permission bits.
func WithSocketMode(mode os.FileMode) Option { return func(s *Server) { s.socketMode = mode } }

// WithLogger attaches a logger for lifecycle and fault messages.
func WithLogger(l *config.Logger) Option { return func(s *Server) { s.logger = l } }

// WithDefaultTimeout overrides DefaultTimeout.
func WithDefaultTimeout(d time.Duration) Option { return func(s *Server) { s.defaultTimeout = d } }

// WithToolTimeout sets a per-tool override, taking precedence over the
// default timeout for that tool name.
func WithToolTimeout(tool string, d time.Duration) Option {
	return func(s *Server) { s.toolTimeouts[tool] = d }
}

// NewServer constructs a Server bound to socketPath (not yet listening).
func NewServer(socketPath string, opts ...Option) *Server {
	s := &Server{
		socketPath:     socketPath,
		socketMode:     0o600,
		defaultTimeout: DefaultTimeout,
		toolTimeouts:   map[string]time.Duration{},
		writeCh:        make(chan []byte, upstreamWriteQueueDepth),
		registry:       newRegistry(),
		queues:         newSiteQueues(),
		conns:          make(map[string]*clientConn),
		closed:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SocketPath returns the unix socket path this server binds to.
func (s *Server) SocketPath() string { return s.socketPath }

func (s *Server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func (s *Server) timeoutFor(tool string) time.Duration {
	if d, ok := s.toolTimeouts[tool]; ok {
		return d
	}
	return s.defaultTimeout
}

// bind unlinks a stale socket file (after confirming via self-ping that no
// live daemon answers it) and listens, per spec.md §4.C's fault model for
// "address already in use".
func (s *Server) bind() (net.Listener, error) {
	if _, err := os.Stat(s.socketPath); err == nil {
		if selfPing(s.socketPath) {
			return nil, protocol.NewError(protocol.ErrTransport, "another daemon instance is listening on "+s.socketPath)
		}
		if err := os.Remove(s.socketPath); err != nil {
			return nil, fmt.Errorf("daemon: remove stale socket: %w", err)
		}
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, s.socketMode); err != nil {
		ln.Close()
		return nil, fmt.Errorf("daemon: chmod socket: %w", err)
	}
	return ln, nil
}

// Start binds the local socket and runs the accept loop plus the upstream
// reader/writer tasks against stdin/stdout. It blocks until Shutdown is
// called or the listener fails.
func (s *Server) Start(stdin io.Reader, stdout io.Writer) error {
	ln, err := s.bind()
	if err != nil {
		return err
	}
	s.ln = ln
	s.upstreamW = codec.NewWriter(stdout)
	upstreamR := codec.NewReader(stdin)
	s.startedAt = time.Now()
	atomic.StoreInt32(&s.upstreamAlive, 1)

	s.logf("daemon listening on %s", s.socketPath)

	s.wg.Add(2)
	go s.runUpstreamWriter()
	go s.runUpstreamReader(upstreamR)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
				return fmt.Errorf("daemon: accept: %w", err)
			}
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// Shutdown closes the listener and every open client connection, stops the
// upstream tasks, and waits for them to exit.
func (s *Server) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.ln != nil {
			s.ln.Close()
		}
		s.connsMu.Lock()
		for _, cc := range s.conns {
			cc.close()
		}
		s.connsMu.Unlock()
	})
	s.wg.Wait()
}

func (s *Server) runUpstreamWriter() {
	defer s.wg.Done()
	for {
		select {
		case payload := <-s.writeCh:
			if err := s.upstreamW.WriteMessage(payload); err != nil {
				s.logf("daemon: upstream write failed: %v", err)
			}
		case <-s.closed:
			return
		}
	}
}

func (s *Server) runUpstreamReader(r *codec.Reader) {
	defer s.wg.Done()
	for {
		payload, err := r.ReadMessage()
		if err != nil {
			if err == io.EOF {
				s.logf("daemon: upstream EOF, draining in-flight requests")
			} else {
				s.logf("daemon: upstream read error: %v", err)
			}
			s.handleUpstreamDisconnect()
			return
		}
		var reply protocol.ToolReply
		if err := json.Unmarshal(payload, &reply); err != nil {
			s.logf("daemon: malformed upstream frame: %v", err)
			continue
		}
		s.handleUpstreamReply(reply)
	}
}

// handleUpstreamDisconnect implements the "upstream EOF" fault path: every
// in-flight request gets a transport error, and the local socket keeps
// accepting new client connections (a new daemon process will be launched
// the next time the browser needs the native-messaging host).
func (s *Server) handleUpstreamDisconnect() {
	atomic.StoreInt32(&s.upstreamAlive, 0)
	for _, p := range s.registry.drainAll() {
		s.finish(p)
		reply := protocol.NewErrorReply(p.originalID, protocol.ErrTransport, "native host disconnected")
		_ = p.conn.writeReply(reply)
	}
}

func (s *Server) handleUpstreamReply(reply protocol.ToolReply) {
	p, ok := s.registry.takeByUpstreamID(reply.ID)
	if !ok {
		s.logf("daemon: dropping reply for unknown or completed id %s", reply.ID)
		return
	}
	s.finish(p)
	reply.ID = p.originalID
	_ = p.conn.writeReply(reply)
}

func (s *Server) nextUpstreamID() string {
	n := atomic.AddUint64(&s.counter, 1)
	return fmt.Sprintf("up-%d", n)
}

// finish stops a pending request's timer and releases its AI-site
// serialization slot and in-flight id marker. It does not write a reply.
func (s *Server) finish(p *pendingRequest) {
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.release != nil {
		p.release()
	}
	p.conn.clearInFlight(p.originalID)
}

func (s *Server) expire(p *pendingRequest) {
	if _, ok := s.registry.takeByUpstreamID(p.upstreamID); !ok {
		return // reply already delivered or connection already purged
	}
	s.finish(p)
	reply := protocol.NewErrorReply(p.originalID, protocol.ErrTimeout, fmt.Sprintf("tool %q timed out", p.tool))
	_ = p.conn.writeReply(reply)
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	id := s.nextConnID()
	cc := newClientConn(id, conn)

	s.connsMu.Lock()
	s.conns[id] = cc
	s.connsMu.Unlock()

	defer func() {
		cc.close()
		s.connsMu.Lock()
		delete(s.conns, id)
		s.connsMu.Unlock()
		for _, p := range s.registry.purgeConn(cc) {
			if p.timer != nil {
				p.timer.Stop()
			}
			if p.release != nil {
				p.release()
			}
		}
	}()

	cc.readRequests(func(req protocol.ToolRequest) {
		s.handleClientRequest(cc, req)
	})
}

func (s *Server) nextConnID() string {
	n := atomic.AddUint64(&s.counter, 1)
	return fmt.Sprintf("conn-%d", n)
}

// adminReplyFor answers ping/status requests directly, without forwarding
// upstream, per spec.md §4.C's admin introspection addition. ok is false
// for any other method, leaving it to the normal tool-forwarding path.
func (s *Server) adminReplyFor(req protocol.ToolRequest) (protocol.ToolReply, bool) {
	switch req.Method {
	case "ping":
		return protocol.NewResultReply(req.ID, protocol.TextPart("pong")), true
	case "status":
		b, err := json.Marshal(s.status())
		if err != nil {
			return protocol.NewErrorReply(req.ID, protocol.ErrProtocol, "encode status: "+err.Error()), true
		}
		return protocol.NewResultReply(req.ID, protocol.TextPart(string(b))), true
	default:
		return protocol.ToolReply{}, false
	}
}

// statusInfo is the JSON shape of a "status" admin reply.
type statusInfo struct {
	SocketPath      string `json:"socketPath"`
	UptimeSeconds   int64  `json:"uptimeSeconds"`
	Connections     int    `json:"connections"`
	PendingRequests int    `json:"pendingRequests"`
	UpstreamAlive   bool   `json:"upstreamAlive"`
}

func (s *Server) status() statusInfo {
	s.connsMu.Lock()
	conns := len(s.conns)
	s.connsMu.Unlock()
	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}
	return statusInfo{
		SocketPath:      s.socketPath,
		UptimeSeconds:   uptime,
		Connections:     conns,
		PendingRequests: s.registry.count(),
		UpstreamAlive:   atomic.LoadInt32(&s.upstreamAlive) == 1,
	}
}

func (s *Server) handleClientRequest(cc *clientConn, req protocol.ToolRequest) {
	if req.Type != protocol.MessageToolRequest {
		_ = cc.writeReply(protocol.NewErrorReply(req.ID, protocol.ErrProtocol, "unsupported message type"))
		return
	}
	if reply, ok := s.adminReplyFor(req); ok {
		_ = cc.writeReply(reply)
		return
	}
	if req.Params.Tool == "" {
		_ = cc.writeReply(protocol.NewErrorReply(req.ID, protocol.ErrProtocol, "missing tool name"))
		return
	}
	if !cc.markInFlight(req.ID) {
		_ = cc.writeReply(protocol.NewErrorReply(req.ID, protocol.ErrProtocol, "duplicate request id already in flight"))
		return
	}
	go s.forward(cc, req)
}

// forward acquires the AI-site serialization slot (if the tool requires
// one), registers the pending request, rewrites its id, and enqueues the
// upstream write. It runs in its own goroutine because acquiring the
// site-queue slot may block for an arbitrary time.
func (s *Server) forward(cc *clientConn, req protocol.ToolRequest) {
	tool := req.Params.Tool
	var release func()
	if key, ok := siteKeyFor(tool, req.Params.TabID); ok {
		release = s.queues.acquire(key)
	}

	upstreamID := s.nextUpstreamID()
	timeout := s.timeoutFor(tool)

	p := &pendingRequest{
		upstreamID: upstreamID,
		originalID: req.ID,
		conn:       cc,
		tool:       tool,
		deadline:   time.Now().Add(timeout),
		release:    release,
	}
	p.timer = time.AfterFunc(timeout, func() { s.expire(p) })
	s.registry.add(p)

	upstreamReq := req
	upstreamReq.ID = upstreamID
	payload, err := json.Marshal(upstreamReq)
	if err != nil {
		if _, ok := s.registry.takeByUpstreamID(upstreamID); ok {
			s.finish(p)
		}
		_ = cc.writeReply(protocol.NewErrorReply(req.ID, protocol.ErrProtocol, "encode upstream request: "+err.Error()))
		return
	}

	select {
	case s.writeCh <- payload:
	case <-s.closed:
		if _, ok := s.registry.takeByUpstreamID(upstreamID); ok {
			s.finish(p)
		}
		_ = cc.writeReply(protocol.NewErrorReply(req.ID, protocol.ErrTransport, "daemon shutting down"))
	}
}
