package router

// Capability names the browser surface a handler needs to execute.
type Capability string

const (
	CapDebugger  Capability = "debugger"
	CapScripting Capability = "scripting"
	CapEither    Capability = "either"
)

// Handler implements one tool. args is the request's tool-specific argument
// map; tabID identifies the target tab (a tool may be tab-less, e.g. a
// global bookmarks query). Returning a *protocol.Error lets the caller
// classify the failure for the fallback/softFail policy.
type Handler func(rc *RequestContext, tabID int, args map[string]any) (Result, error)

// RouterTool binds a name from the closed tool vocabulary to its capability
// requirement and implementation, mirroring the teacher's ToolDef{Spec,
// Execute} registration shape.
type RouterTool struct {
	Name         string
	Capabilities Capability
	Handler      Handler
	// ScriptingFallback is the scripting-capability retry for a CapEither
	// tool: invoked with the same args when Handler (the debugger-capability
	// path) fails. Nil means the tool has no real alternate implementation,
	// so a primary-path failure is returned as-is.
	ScriptingFallback Handler
	// AutoScreenshot marks tools whose successful reply should carry a
	// follow-up screenshot per the auto-screenshot policy, unless the
	// request suppresses it.
	AutoScreenshot bool
}

// Result is a handler's successful output, turned into reply content parts
// by the router.
type Result struct {
	Text   string
	Images []ResultImage
}

// ResultImage is inline or cache-referenced image content.
type ResultImage struct {
	Data     string // base64, empty when only CacheID is set
	MimeType string
	CacheID  string
}
