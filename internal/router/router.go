// Package router implements the extension router from spec.md §4.D: a
// dispatch table of named tools, a lazily-attached per-tab debugger pool
// with a debugger/scripting fallback policy, accessibility element
// references, a bounded screenshot cache, and the network-capture wiring
// that feeds internal/capture.
//
// The reference implementation runs this logic inside a browser extension's
// background script. Here it is a Go component that drives the same Chrome
// DevTools Protocol surface directly over a websocket (internal/router/cdp),
// so the dispatch table, fallback policy, and state machines are exercised
// against a real wire protocol rather than an unimplemented interface.
package router

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/batalabs/surfbridge/internal/capture"
	"github.com/batalabs/surfbridge/internal/config"
	"github.com/batalabs/surfbridge/internal/protocol"
	"github.com/batalabs/surfbridge/internal/router/cdp"
)

// requestState is the per-tool-request state machine from spec.md §4.D.
type requestState int

const (
	stateReceived requestState = iota
	stateDispatched
	stateAwaitingBrowser
	stateReplying
	stateDone
)

// Router dispatches tool requests to handlers, owning the tab-session pool,
// screenshot cache, and capture wiring.
type Router struct {
	logger *config.Logger
	dial   DialFunc

	toolsMu sync.RWMutex
	tools   map[string]RouterTool

	sessions   *sessionPool
	screenshot *screenshotCache
	store      *capture.Store

	autoScreenshotEnabled bool
}

// Option configures a Router at construction.
type Option func(*Router)

// WithLogger attaches a logger for dispatch and fault events.
func WithLogger(l *config.Logger) Option { return func(r *Router) { r.logger = l } }

// WithDialFunc overrides the CDP dial function, for tests.
func WithDialFunc(d DialFunc) Option { return func(r *Router) { r.dial = d } }

// WithCaptureStore attaches the network-capture store that capture.start
// streams entries into.
func WithCaptureStore(store *capture.Store) Option { return func(r *Router) { r.store = store } }

// WithScreenshotCacheBytes overrides the screenshot cache's byte budget.
func WithScreenshotCacheBytes(n int64) Option {
	return func(r *Router) { r.screenshot = newScreenshotCache(n) }
}

// NewRouter constructs a Router with an empty dispatch table; call Register
// (or RegisterGroup) to populate it.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		tools:                 make(map[string]RouterTool),
		sessions:              newSessionPool(),
		screenshot:            newScreenshotCache(0),
		autoScreenshotEnabled: true,
		dial:                  cdp.Dial,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds one tool to the dispatch table.
func (r *Router) Register(t RouterTool) {
	r.toolsMu.Lock()
	defer r.toolsMu.Unlock()
	r.tools[t.Name] = t
}

// RegisterGroup adds every tool in a handler group, per the teacher's
// pattern of building a large vocabulary from small per-group slices.
func (r *Router) RegisterGroup(tools []RouterTool) {
	for _, t := range tools {
		r.Register(t)
	}
}

func (r *Router) lookup(name string) (RouterTool, bool) {
	r.toolsMu.RLock()
	defer r.toolsMu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Router) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}

// RequestContext is threaded through a handler invocation; it exposes the
// tab session, element registry, and the facilities (screenshot, capture)
// a handler may need without reaching back into Router internals it
// shouldn't mutate directly.
type RequestContext struct {
	router  *Router
	session *TabSession
	softFail bool
}

// Session returns the tab session backing this request.
func (rc *RequestContext) Session() *TabSession { return rc.session }

// Debugger lazily attaches and returns the tab's debugger client.
func (rc *RequestContext) Debugger() (*cdp.Client, error) {
	return rc.session.ensureAttached(rc.router.dial, debuggerEndpoint(rc.session.TabID))
}

// Elements returns the tab's accessibility element-reference registry.
func (rc *RequestContext) Elements() *elementRegistry { return rc.session.elements }

// CacheScreenshot stores image bytes and returns its cache entry.
func (rc *RequestContext) CacheScreenshot(data []byte, mimeType string) (*ScreenshotEntry, error) {
	return rc.router.screenshot.put(data, mimeType)
}

// Store returns the attached network-capture store, or nil if none.
func (rc *RequestContext) Store() *capture.Store { return rc.router.store }

// Dispatch executes req.Params.Tool against the dispatch table and returns
// a fully-formed reply (never an error return — a dispatch failure is
// itself encoded as an error reply, per spec.md §3's exactly-one-reply
// invariant).
func (r *Router) Dispatch(req protocol.ToolRequest) protocol.ToolReply {
	r.transition(req.ID, stateReceived)
	tool, ok := r.lookup(req.Params.Tool)
	if !ok {
		r.transition(req.ID, stateDone)
		return protocol.NewErrorReply(req.ID, protocol.ErrCapability, fmt.Sprintf("unknown tool %q", req.Params.Tool))
	}
	r.transition(req.ID, stateDispatched)

	tabID := 0
	if req.Params.TabID != nil {
		tabID = *req.Params.TabID
	}
	session := r.sessions.get(tabID)
	session.touch()

	softFail, _ := req.Params.Args["softFail"].(bool)
	rc := &RequestContext{router: r, session: session, softFail: softFail}

	r.transition(req.ID, stateAwaitingBrowser)
	result, err := r.invokeWithFallback(rc, tool, tabID, req.Params.Args)
	r.transition(req.ID, stateReplying)

	if err != nil {
		perr, _ := protocol.AsError(err)
		kind := protocol.ErrTarget
		if perr != nil {
			kind = perr.Kind
		}
		r.transition(req.ID, stateDone)
		if softFail {
			return protocol.NewResultReply(req.ID, protocol.TextPart("warning: "+err.Error()))
		}
		return protocol.NewErrorReply(req.ID, kind, err.Error())
	}

	parts := []protocol.ContentPart{}
	if result.Text != "" {
		parts = append(parts, protocol.TextPart(result.Text))
	}
	for _, img := range result.Images {
		parts = append(parts, protocol.ImagePart(img.Data, img.MimeType))
	}

	if tool.AutoScreenshot && r.autoScreenshotEnabled && !suppressAutoScreenshot(req.Params.Args) {
		if shot, serr := r.takeAutoScreenshot(rc); serr == nil {
			parts = append(parts, protocol.ImagePart(shot.Data, shot.MimeType))
		}
	}

	r.transition(req.ID, stateDone)
	return protocol.NewResultReply(req.ID, parts...)
}

// transition logs a per-tool-request state machine step (spec.md §4.D:
// received -> dispatched -> awaiting-browser -> replying -> done).
func (r *Router) transition(requestID string, s requestState) {
	r.logf("router: request %s -> %s", requestID, s)
}

func (s requestState) String() string {
	switch s {
	case stateReceived:
		return "received"
	case stateDispatched:
		return "dispatched"
	case stateAwaitingBrowser:
		return "awaiting-browser"
	case stateReplying:
		return "replying"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

func suppressAutoScreenshot(args map[string]any) bool {
	v, _ := args["noScreenshot"].(bool)
	return v
}

// invokeWithFallback runs the handler's primary (debugger) capability path
// and, on failure, retries via the tool's scripting path when the tool
// allows either capability (spec.md §4.D's Fallback policy). A CapEither
// tool with no ScriptingFallback registered has no real alternate
// implementation, so its primary-path failure is returned unchanged.
func (r *Router) invokeWithFallback(rc *RequestContext, tool RouterTool, tabID int, args map[string]any) (Result, error) {
	result, err := tool.Handler(rc, tabID, args)
	if err == nil {
		return result, nil
	}
	if tool.Capabilities != CapEither || tool.ScriptingFallback == nil {
		return Result{}, err
	}
	r.logf("router: %s primary path failed (%v), retrying via scripting fallback", tool.Name, err)
	result, ferr := tool.ScriptingFallback(rc, tabID, args)
	if ferr != nil {
		return Result{}, ferr
	}
	return result, nil
}

func (r *Router) takeAutoScreenshot(rc *RequestContext) (ResultImage, error) {
	client, err := rc.Debugger()
	if err != nil {
		return ResultImage{}, err
	}
	raw, err := client.Call("Page.captureScreenshot", map[string]any{"format": "png"}, 5*time.Second)
	if err != nil {
		return ResultImage{}, err
	}
	var shot struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &shot); err != nil {
		return ResultImage{}, err
	}
	entry, err := rc.CacheScreenshot([]byte(shot.Data), "image/png")
	if err != nil {
		return ResultImage{}, err
	}
	return ResultImage{Data: shot.Data, MimeType: "image/png", CacheID: entry.ID}, nil
}
