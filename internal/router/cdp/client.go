// Package cdp is a minimal Chrome DevTools Protocol client over websocket:
// outbound calls carry a numeric id and correlate to their reply by that id;
// inbound messages without a matching id are unsolicited events dispatched
// to subscribers by method name.
package cdp

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Event is an unsolicited protocol notification, e.g. "Network.requestWillBeSent".
type Event struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params any             `json:"params,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("cdp: %d %s", e.Code, e.Message) }

// Client is a single websocket connection to a CDP debugger endpoint
// (one per attached tab).
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	nextID  uint64

	pendingMu sync.Mutex
	pending   map[uint64]chan response

	subsMu sync.Mutex
	subs   map[string][]chan Event

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens a websocket connection to the given CDP debugger URL
// (e.g. ws://127.0.0.1:9222/devtools/page/<id>).
func Dial(url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("cdp: dial %s: %w", url, err)
	}
	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan response),
		subs:    make(map[string][]chan Event),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg response
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.ID != 0 {
			c.deliver(msg)
			continue
		}
		if msg.Method != "" {
			c.dispatch(Event{Method: msg.Method, Params: msg.Params})
		}
	}
}

func (c *Client) deliver(msg response) {
	c.pendingMu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.pendingMu.Unlock()
	if ok {
		ch <- msg
	}
}

func (c *Client) dispatch(ev Event) {
	c.subsMu.Lock()
	chans := append([]chan Event(nil), c.subs[ev.Method]...)
	c.subsMu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a channel to receive events for the given CDP method
// name (e.g. "Network.responseReceived"). The channel is buffered by the
// caller; deliveries are dropped, never blocked, if the buffer is full.
func (c *Client) Subscribe(method string, ch chan Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subs[method] = append(c.subs[method], ch)
}

// Call issues a CDP command and blocks for its matching reply or ctx-less
// timeout. Returns the raw JSON result payload.
func (c *Client) Call(method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := atomic.AddUint64(&c.nextID, 1)
	ch := make(chan response, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	req := request{ID: id, Method: method, Params: params}
	b, err := json.Marshal(req)
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("cdp: encode %s: %w", method, err)
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, b)
	c.writeMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("cdp: write %s: %w", method, err)
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	case <-time.After(timeout):
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("cdp: %s timed out after %s", method, timeout)
	case <-c.closed:
		return nil, fmt.Errorf("cdp: connection closed while waiting for %s", method)
	}
}

// Close closes the underlying websocket connection. Safe to call more than
// once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
