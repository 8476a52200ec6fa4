package daemon

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"

	"github.com/batalabs/surfbridge/internal/protocol"
)

// clientConn is one accepted local-socket connection, full-duplex and
// capable of multiple requests in flight at once (spec.md §6). Writes are
// serialized; there is no read lock since exactly one goroutine reads a
// given connection.
type clientConn struct {
	id   string
	conn net.Conn

	writeMu sync.Mutex

	idMu     sync.Mutex
	inFlight map[string]bool
}

func newClientConn(id string, c net.Conn) *clientConn {
	return &clientConn{id: id, conn: c, inFlight: make(map[string]bool)}
}

// markInFlight records that originalID now has a pending upstream request
// on this connection. It returns false if originalID is already in flight,
// per spec.md §8's ban on in-flight id reuse (reuse is only permitted once
// the prior request with that id has completed).
func (c *clientConn) markInFlight(originalID string) bool {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	if c.inFlight[originalID] {
		return false
	}
	c.inFlight[originalID] = true
	return true
}

func (c *clientConn) clearInFlight(originalID string) {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	delete(c.inFlight, originalID)
}

// writeReply writes one JSON reply line, LF-terminated, per spec.md §6.
func (c *clientConn) writeReply(reply protocol.ToolReply) error {
	b, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(b)
	return err
}

// readRequests scans LF-terminated JSON lines from the connection and calls
// handle for each successfully parsed request. A malformed line produces a
// protocol-error reply and the connection continues (the bridge never
// crashes on one bad message, per spec.md §7). Returns when the connection
// closes.
func (c *clientConn) readRequests(handle func(protocol.ToolRequest)) {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req protocol.ToolRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = c.writeReply(protocol.NewErrorReply("", protocol.ErrProtocol, "malformed request: "+err.Error()))
			continue
		}
		handle(req)
	}
}

func (c *clientConn) close() error {
	return c.conn.Close()
}
