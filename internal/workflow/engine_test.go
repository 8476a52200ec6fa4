package workflow

import (
	"sync"
	"testing"

	"github.com/batalabs/surfbridge/internal/protocol"
)

// scriptedIssuer replays replies keyed by tool name, recording every
// request it sees in order, for asserting call sequences without a real
// daemon.
type scriptedIssuer struct {
	mu       sync.Mutex
	requests []protocol.ToolRequest
	byTool   map[string]func(protocol.ToolRequest) protocol.ToolReply
}

func newScriptedIssuer() *scriptedIssuer {
	return &scriptedIssuer{byTool: make(map[string]func(protocol.ToolRequest) protocol.ToolReply)}
}

func (s *scriptedIssuer) on(tool string, fn func(protocol.ToolRequest) protocol.ToolReply) {
	s.byTool[tool] = fn
}

func (s *scriptedIssuer) issue(req protocol.ToolRequest) protocol.ToolReply {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if fn, ok := s.byTool[req.Params.Tool]; ok {
		return fn(req)
	}
	return protocol.NewResultReply(req.ID, protocol.TextPart("ok"))
}

func (s *scriptedIssuer) toolCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.requests {
		out = append(out, r.Params.Tool)
	}
	return out
}

func textReply(id, text string) protocol.ToolReply {
	return protocol.NewResultReply(id, protocol.TextPart(text))
}

func TestRunLeafStepsInOrder(t *testing.T) {
	issuer := newScriptedIssuer()
	e := NewEngine(issuer.issue)

	steps := []Step{
		{Cmd: "page.url", As: "u"},
		{Cmd: "js.evaluate", Args: map[string]any{"expr": "1"}},
	}
	res, err := e.Run(steps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Vars["u"] != "ok" {
		t.Fatalf("expected captured var to be \"ok\", got %+v", res.Vars["u"])
	}
	calls := issuer.toolCalls()
	if len(calls) != 2 || calls[0] != "page.url" || calls[1] != "js.evaluate" {
		t.Fatalf("unexpected call order: %v", calls)
	}
}

func TestCaptureExtractsJSONFromSingleTextPart(t *testing.T) {
	issuer := newScriptedIssuer()
	issuer.on("list.urls", func(req protocol.ToolRequest) protocol.ToolReply {
		return textReply(req.ID, `["a","b","c"]`)
	})
	e := NewEngine(issuer.issue)

	res, err := e.Run([]Step{{Cmd: "list.urls", As: "urls"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arr, ok := res.Vars["urls"].([]any)
	if !ok || len(arr) != 3 {
		t.Fatalf("expected a 3-element array capture, got %+v", res.Vars["urls"])
	}
}

func TestCaptureFallsBackToRawText(t *testing.T) {
	issuer := newScriptedIssuer()
	issuer.on("page.title", func(req protocol.ToolRequest) protocol.ToolReply {
		return textReply(req.ID, "Example Domain")
	})
	e := NewEngine(issuer.issue)

	res, _ := e.Run([]Step{{Cmd: "page.title", As: "t"}})
	if res.Vars["t"] != "Example Domain" {
		t.Fatalf("expected raw text capture, got %+v", res.Vars["t"])
	}
}

func TestSubstitutionEncodesWithinURLTemplate(t *testing.T) {
	issuer := newScriptedIssuer()
	issuer.on("js.evaluate", func(req protocol.ToolRequest) protocol.ToolReply {
		return textReply(req.ID, `"hello world"`)
	})
	var navigatedURL string
	issuer.on("tab.create", func(req protocol.ToolRequest) protocol.ToolReply {
		navigatedURL, _ = req.Params.Args["url"].(string)
		return textReply(req.ID, "ok")
	})
	e := NewEngine(issuer.issue)

	steps := []Step{
		{Cmd: "js.evaluate", As: "t"},
		{Cmd: "tab.create", Args: map[string]any{"url": "https://example.com/search?q=%{t}"}},
	}
	if _, err := e.Run(steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://example.com/search?q=hello+world"
	if navigatedURL != want {
		t.Fatalf("url = %q, want %q", navigatedURL, want)
	}
}

func TestSubstitutionPreservesRawValueForBareVariable(t *testing.T) {
	issuer := newScriptedIssuer()
	issuer.on("list.urls", func(req protocol.ToolRequest) protocol.ToolReply {
		return textReply(req.ID, `["https://a/","https://b/"]`)
	})
	var seen []any
	issuer.on("navigate", func(req protocol.ToolRequest) protocol.ToolReply {
		seen = append(seen, req.Params.Args["url"])
		return textReply(req.ID, "ok")
	})
	e := NewEngine(issuer.issue)

	steps := []Step{
		{Cmd: "list.urls", As: "urls"},
		{Each: "%{urls}", As: "u", Steps: []Step{
			{Cmd: "navigate", Args: map[string]any{"url": "%{u}"}},
		}},
	}
	if _, err := e.Run(steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 2 || seen[0] != "https://a/" || seen[1] != "https://b/" {
		t.Fatalf("unexpected navigated urls: %+v", seen)
	}
}

// TestEachLoopOverCapturedArray is spec.md §8 scenario 5: a captured
// 3-element array drives exactly three navigations, in order.
func TestEachLoopOverCapturedArray(t *testing.T) {
	issuer := newScriptedIssuer()
	issuer.on("list.urls", func(req protocol.ToolRequest) protocol.ToolReply {
		return textReply(req.ID, `["a","b","c"]`)
	})
	var navigated []string
	issuer.on("navigate", func(req protocol.ToolRequest) protocol.ToolReply {
		u, _ := req.Params.Args["url"].(string)
		navigated = append(navigated, u)
		return textReply(req.ID, "ok")
	})
	e := NewEngine(issuer.issue)

	steps := []Step{
		{Cmd: "list.urls", As: "urls"},
		{Each: "%{urls}", As: "u", Steps: []Step{
			{Cmd: "navigate", Args: map[string]any{"url": "%{u}"}},
		}},
	}
	if _, err := e.Run(steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(navigated) != 3 || navigated[0] != "a" || navigated[1] != "b" || navigated[2] != "c" {
		t.Fatalf("expected navigations in order a,b,c, got %v", navigated)
	}
}

// TestRepeatLoopCapsAt100 is spec.md §8's boundary test: repeat 200 runs
// exactly 100 iterations.
func TestRepeatLoopCapsAt100(t *testing.T) {
	issuer := newScriptedIssuer()
	count := 0
	issuer.on("tick", func(req protocol.ToolRequest) protocol.ToolReply {
		count++
		return textReply(req.ID, "ok")
	})
	e := NewEngine(issuer.issue)

	n := 200
	steps := []Step{{Repeat: &n, Steps: []Step{{Cmd: "tick"}}}}
	if _, err := e.Run(steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 100 {
		t.Fatalf("expected exactly 100 iterations, got %d", count)
	}
}

func TestEachLoopCapsAt100(t *testing.T) {
	items := make([]any, 150)
	for i := range items {
		items[i] = i
	}
	issuer := newScriptedIssuer()
	issuer.on("seed", func(req protocol.ToolRequest) protocol.ToolReply {
		b := "["
		for i, v := range items {
			if i > 0 {
				b += ","
			}
			b += itoaTest(v.(int))
		}
		b += "]"
		return textReply(req.ID, b)
	})
	count := 0
	issuer.on("tick", func(req protocol.ToolRequest) protocol.ToolReply {
		count++
		return textReply(req.ID, "ok")
	})
	e := NewEngine(issuer.issue)

	steps := []Step{
		{Cmd: "seed", As: "items"},
		{Each: "%{items}", Steps: []Step{{Cmd: "tick"}}},
	}
	if _, err := e.Run(steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 100 {
		t.Fatalf("expected exactly 100 iterations, got %d", count)
	}
}

func itoaTest(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestUntilExitsLoopEarly(t *testing.T) {
	issuer := newScriptedIssuer()
	n := 0
	issuer.on("tick", func(req protocol.ToolRequest) protocol.ToolReply {
		n++
		return textReply(req.ID, "ok")
	})
	issuer.on("done.check", func(req protocol.ToolRequest) protocol.ToolReply {
		return textReply(req.ID, boolJSON(n >= 3))
	})
	e := NewEngine(issuer.issue)

	repeat := 100
	steps := []Step{{
		Repeat: &repeat,
		Steps:  []Step{{Cmd: "tick"}},
		Until:  &Step{Cmd: "done.check"},
	}}
	if _, err := e.Run(steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected the loop to stop after 3 iterations, got %d", n)
	}
}

func boolJSON(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestLeafErrorStopsRunByDefault(t *testing.T) {
	issuer := newScriptedIssuer()
	issuer.on("boom", func(req protocol.ToolRequest) protocol.ToolReply {
		return protocol.NewErrorReply(req.ID, protocol.ErrTarget, "element not found")
	})
	e := NewEngine(issuer.issue)

	_, err := e.Run([]Step{{Cmd: "boom"}, {Cmd: "never.runs"}})
	if err == nil {
		t.Fatal("expected the run to stop on the failing step")
	}
	calls := issuer.toolCalls()
	if len(calls) != 1 {
		t.Fatalf("expected execution to stop after the failing step, got calls %v", calls)
	}
}

func TestLeafErrorContinuesUnderContinuePolicy(t *testing.T) {
	issuer := newScriptedIssuer()
	issuer.on("boom", func(req protocol.ToolRequest) protocol.ToolReply {
		return protocol.NewErrorReply(req.ID, protocol.ErrTarget, "element not found")
	})
	e := NewEngine(issuer.issue, WithFailurePolicy(PolicyContinue))

	res, err := e.Run([]Step{{Cmd: "boom"}, {Cmd: "after"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected one collected error, got %d", len(res.Errors))
	}
	calls := issuer.toolCalls()
	if len(calls) != 2 {
		t.Fatalf("expected execution to continue to the next step, got calls %v", calls)
	}
}

func TestAutoWaitFollowsNavigate(t *testing.T) {
	issuer := newScriptedIssuer()
	e := NewEngine(issuer.issue)

	if _, err := e.Run([]Step{{Cmd: "navigate", Args: map[string]any{"url": "https://example.com"}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := issuer.toolCalls()
	if len(calls) != 2 || calls[0] != "navigate" || calls[1] != "wait.load" {
		t.Fatalf("expected navigate followed by an auto wait.load, got %v", calls)
	}
}

func TestAutoWaitFailureIsSwallowed(t *testing.T) {
	issuer := newScriptedIssuer()
	issuer.on("wait.load", func(req protocol.ToolRequest) protocol.ToolReply {
		return protocol.NewErrorReply(req.ID, protocol.ErrTimeout, "timed out")
	})
	e := NewEngine(issuer.issue)

	_, err := e.Run([]Step{{Cmd: "navigate", Args: map[string]any{"url": "https://example.com"}}})
	if err != nil {
		t.Fatalf("expected the auto-wait failure to be swallowed, got %v", err)
	}
}

func TestDryRunIssuesNoRequests(t *testing.T) {
	issuer := newScriptedIssuer()
	var printed []string
	e := NewEngine(issuer.issue, WithDryRun(true), WithPlanPrinter(func(format string, args ...any) {
		printed = append(printed, format)
	}))

	repeat := 3
	steps := []Step{
		{Cmd: "navigate", Args: map[string]any{"url": "https://example.com"}},
		{Repeat: &repeat, Steps: []Step{{Cmd: "js.evaluate"}}},
	}
	if _, err := e.Run(steps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issuer.requests) != 0 {
		t.Fatalf("expected dry-run to issue no requests, got %d", len(issuer.requests))
	}
	if len(printed) == 0 {
		t.Fatal("expected the plan to be printed")
	}
}
