package workflow

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"sync"

	"github.com/batalabs/surfbridge/internal/protocol"
)

// SocketClient issues workflow tool requests against a running bridge
// daemon's local socket (spec.md §6), one line-JSON request/reply pair at
// a time. The workflow engine issues steps strictly sequentially, so a
// single synchronous round trip per step is sufficient — no id
// multiplexing is needed on this connection.
type SocketClient struct {
	conn    net.Conn
	scanner *bufio.Scanner
	mu      sync.Mutex
}

// DialSocket connects to a bridge daemon's local socket at path.
func DialSocket(path string) (*SocketClient, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, protocol.Wrap(protocol.ErrTransport, "dial bridge socket", err)
	}
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	return &SocketClient{conn: conn, scanner: sc}, nil
}

// Issue implements Issuer: it writes req as one JSON line and reads back
// the one reply line the daemon writes for it. Any transport or decode
// failure is folded into a reply carrying the appropriate error kind
// rather than a Go error, so SocketClient.Issue satisfies Issuer directly.
func (c *SocketClient) Issue(req protocol.ToolRequest) protocol.ToolReply {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := json.Marshal(req)
	if err != nil {
		return protocol.NewErrorReply(req.ID, protocol.ErrProtocol, "encode request: "+err.Error())
	}
	b = append(b, '\n')
	if _, err := c.conn.Write(b); err != nil {
		return protocol.NewErrorReply(req.ID, protocol.ErrTransport, "write request: "+err.Error())
	}

	if !c.scanner.Scan() {
		err := c.scanner.Err()
		if err == nil {
			err = io.EOF
		}
		return protocol.NewErrorReply(req.ID, protocol.ErrTransport, "read reply: "+err.Error())
	}

	var reply protocol.ToolReply
	if err := json.Unmarshal(c.scanner.Bytes(), &reply); err != nil {
		return protocol.NewErrorReply(req.ID, protocol.ErrProtocol, "decode reply: "+err.Error())
	}
	return reply
}

// Close closes the underlying connection.
func (c *SocketClient) Close() error {
	return c.conn.Close()
}
