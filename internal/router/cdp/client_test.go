package cdp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// fakeEndpoint runs a tiny CDP-shaped server: Target.foo echoes its params
// back as the result, and it fires one unsolicited "Page.loaded" event right
// after the connection opens.
func fakeEndpoint(t *testing.T) (url string, close func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"method":"Page.loaded","params":{}}`))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req request
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			reply := map[string]any{"id": req.ID, "result": req.Params}
			b, _ := json.Marshal(reply)
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}))
	url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return url, srv.Close
}

func TestClientCallRoundTrip(t *testing.T) {
	url, closeSrv := fakeEndpoint(t)
	defer closeSrv()

	c, err := Dial(url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	result, err := c.Call("Target.foo", map[string]any{"x": 1}, time.Second)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(result, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got["x"] != float64(1) {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestClientConcurrentCallsCorrelateIndependently(t *testing.T) {
	url, closeSrv := fakeEndpoint(t)
	defer closeSrv()

	c, err := Dial(url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	type out struct {
		n   int
		err error
	}
	results := make(chan out, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			raw, err := c.Call("Target.foo", map[string]any{"n": n}, time.Second)
			if err != nil {
				results <- out{err: err}
				return
			}
			var got map[string]any
			_ = json.Unmarshal(raw, &got)
			results <- out{n: int(got["n"].(float64))}
		}(i)
	}

	seen := make(map[int]bool)
	for i := 0; i < 10; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("call failed: %v", r.err)
		}
		seen[r.n] = true
	}
	if len(seen) != 10 {
		t.Fatalf("expected 10 distinct results, got %d", len(seen))
	}
}

func TestClientSubscribeReceivesEvent(t *testing.T) {
	url, closeSrv := fakeEndpoint(t)
	defer closeSrv()

	c, err := Dial(url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	ch := make(chan Event, 1)
	c.Subscribe("Page.loaded", ch)

	select {
	case ev := <-ch:
		if ev.Method != "Page.loaded" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Page.loaded event")
	}
}

func TestClientCallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// never reply
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	_, err = c.Call("Target.foo", nil, 20*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}
