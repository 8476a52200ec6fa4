package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/batalabs/surfbridge/internal/router/cdp"
	"github.com/gorilla/websocket"
)

// faultyWheelBrowser refuses every Input.dispatchMouseEvent call, as a
// debugger attach scoped out of trusted input dispatch would, but answers
// Runtime.evaluate normally so scroll's scripting fallback is the only
// path that can succeed.
func faultyWheelBrowser(t *testing.T) (endpoint string, closeFn func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				ID     uint64         `json:"id"`
				Method string         `json:"method"`
				Params map[string]any `json:"params"`
			}
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			var reply map[string]any
			if req.Method == "Input.dispatchMouseEvent" {
				reply = map[string]any{"id": req.ID, "error": map[string]any{"code": -32000, "message": "trusted input dispatch refused"}}
			} else {
				reply = map[string]any{"id": req.ID, "result": fakeResultFor(req.Method, req.Params)}
			}
			b, _ := json.Marshal(reply)
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}))
	endpoint = "ws" + strings.TrimPrefix(srv.URL, "http")
	return endpoint, srv.Close
}

func TestScrollFallsBackToScriptingWhenWheelDispatchFails(t *testing.T) {
	endpoint, closeSrv := faultyWheelBrowser(t)
	defer closeSrv()
	dial := func(_ string) (*cdp.Client, error) { return cdp.Dial(endpoint) }
	r := NewRouter(WithDialFunc(dial))
	r.RegisterGroup(inputTools())

	reply := r.Dispatch(tabReq("a1", "scroll", 1, map[string]any{"dx": 0, "dy": 100}))
	if reply.IsError() {
		t.Fatalf("expected the scripting fallback to succeed, got %+v", reply.Error)
	}
	if !strings.Contains(reply.Result.Content[0].Text, "scripting fallback") {
		t.Fatalf("expected result text to indicate the scripting fallback ran, got %+v", reply.Result)
	}
}

func TestScrollUsesPrimaryWheelPathWhenDebuggerSucceeds(t *testing.T) {
	endpoint, closeSrv := fakeBrowser(t, nil)
	defer closeSrv()
	dial := func(_ string) (*cdp.Client, error) { return cdp.Dial(endpoint) }
	r := NewRouter(WithDialFunc(dial))
	r.RegisterGroup(inputTools())

	reply := r.Dispatch(tabReq("a1", "scroll", 1, map[string]any{"dx": 0, "dy": 100}))
	if reply.IsError() {
		t.Fatalf("unexpected error: %+v", reply.Error)
	}
	if reply.Result.Content[0].Text != "scrolled" {
		t.Fatalf("expected the primary wheel-dispatch path to report plain success, got %+v", reply.Result)
	}
}
