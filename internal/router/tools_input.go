package router

import (
	"strconv"

	"github.com/batalabs/surfbridge/internal/protocol"
)

// inputTools dispatch trusted input events through the CDP Input domain.
// All of them except scroll fail hard rather than fall back to scripting:
// a synthetic DOM event from content-script JS is not a trusted input
// event. scroll registers a window.scrollBy fallback (see scrollTool).
//
// Each handler holds the tab's input lock (TabSession.lockInput) for its
// whole dispatch sequence, so two concurrent calls against the same tab
// can't interleave, e.g. one call's mouseReleased landing between another
// call's mousePressed and mouseReleased.
func inputTools() []RouterTool {
	return []RouterTool{
		clickTool(),
		hoverTool(),
		typeTool(),
		keyTool(),
		dragTool(),
		scrollTool(),
	}
}

func resolveElementPoint(rc *RequestContext, ref string) (x, y float64, err error) {
	if _, ok := rc.Elements().resolve(ref); !ok {
		return 0, 0, protocol.NewError(protocol.ErrTarget, "unknown element reference "+ref)
	}
	var point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	expr := "(() => { const el = window.__surf_refs && window.__surf_refs['" + ref + "']; " +
		"if (!el) return null; const r = el.getBoundingClientRect(); " +
		"return {x: r.x + r.width/2, y: r.y + r.height/2}; })()"
	if err := evaluate(rc, expr, &point); err != nil {
		return 0, 0, err
	}
	return point.X, point.Y, nil
}

func clickTool() RouterTool {
	return RouterTool{
		Name:           "click",
		Capabilities:   CapDebugger,
		AutoScreenshot: true,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			defer rc.Session().lockInput()()
			ref, err := requireString(args, "ref")
			if err != nil {
				return Result{}, err
			}
			x, y, err := resolveElementPoint(rc, ref)
			if err != nil {
				return Result{}, err
			}
			for _, typ := range []string{"mousePressed", "mouseReleased"} {
				if _, err := cdpCall(rc, "Input.dispatchMouseEvent", map[string]any{
					"type": typ, "x": x, "y": y, "button": "left", "clickCount": 1,
				}); err != nil {
					return Result{}, err
				}
			}
			return textResult("clicked " + ref)
		},
	}
}

func hoverTool() RouterTool {
	return RouterTool{
		Name:         "hover",
		Capabilities: CapDebugger,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			defer rc.Session().lockInput()()
			ref, err := requireString(args, "ref")
			if err != nil {
				return Result{}, err
			}
			x, y, err := resolveElementPoint(rc, ref)
			if err != nil {
				return Result{}, err
			}
			if _, err := cdpCall(rc, "Input.dispatchMouseEvent", map[string]any{
				"type": "mouseMoved", "x": x, "y": y,
			}); err != nil {
				return Result{}, err
			}
			return textResult("hovered " + ref)
		},
	}
}

func typeTool() RouterTool {
	return RouterTool{
		Name:           "type",
		Capabilities:   CapDebugger,
		AutoScreenshot: true,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			defer rc.Session().lockInput()()
			text, err := requireString(args, "text")
			if err != nil {
				return Result{}, err
			}
			if ref, ok := argString(args, "ref"); ok && ref != "" {
				if _, _, err := resolveElementPoint(rc, ref); err != nil {
					return Result{}, err
				}
			}
			if _, err := cdpCall(rc, "Input.insertText", map[string]any{"text": text}); err != nil {
				return Result{}, err
			}
			return textResult("typed " + text)
		},
	}
}

func keyTool() RouterTool {
	return RouterTool{
		Name:           "key",
		Capabilities:   CapDebugger,
		AutoScreenshot: true,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			defer rc.Session().lockInput()()
			key, err := requireString(args, "key")
			if err != nil {
				return Result{}, err
			}
			for _, typ := range []string{"keyDown", "keyUp"} {
				if _, err := cdpCall(rc, "Input.dispatchKeyEvent", map[string]any{"type": typ, "key": key}); err != nil {
					return Result{}, err
				}
			}
			return textResult("pressed " + key)
		},
	}
}

func dragTool() RouterTool {
	return RouterTool{
		Name:         "drag",
		Capabilities: CapDebugger,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			defer rc.Session().lockInput()()
			from, err := requireString(args, "from")
			if err != nil {
				return Result{}, err
			}
			to, err := requireString(args, "to")
			if err != nil {
				return Result{}, err
			}
			fx, fy, err := resolveElementPoint(rc, from)
			if err != nil {
				return Result{}, err
			}
			tx, ty, err := resolveElementPoint(rc, to)
			if err != nil {
				return Result{}, err
			}
			steps := []map[string]any{
				{"type": "mousePressed", "x": fx, "y": fy, "button": "left", "clickCount": 1},
				{"type": "mouseMoved", "x": tx, "y": ty, "button": "left"},
				{"type": "mouseReleased", "x": tx, "y": ty, "button": "left", "clickCount": 1},
			}
			for _, s := range steps {
				if _, err := cdpCall(rc, "Input.dispatchMouseEvent", s); err != nil {
					return Result{}, err
				}
			}
			return textResult("dragged " + from + " to " + to)
		},
	}
}

// scrollTool's primary path dispatches a trusted CDP wheel event, the same
// kind a real mouse would generate. When the debugger refuses the dispatch
// (e.g. the attach is scoped out of Input), ScriptingFallback retries the
// scroll through window.scrollBy, which needs no debugger capability.
func scrollTool() RouterTool {
	return RouterTool{
		Name:         "scroll",
		Capabilities: CapEither,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			defer rc.Session().lockInput()()
			dx := argInt(args, "dx", 0)
			dy := argInt(args, "dy", 0)
			if _, err := cdpCall(rc, "Input.dispatchMouseEvent", map[string]any{
				"type": "mouseWheel", "x": 0, "y": 0, "deltaX": dx, "deltaY": dy,
			}); err != nil {
				return Result{}, err
			}
			return textResult("scrolled")
		},
		ScriptingFallback: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			defer rc.Session().lockInput()()
			dx := argInt(args, "dx", 0)
			dy := argInt(args, "dy", 0)
			expr := "window.scrollBy(" + strconv.Itoa(dx) + "," + strconv.Itoa(dy) + ")"
			if err := evaluate(rc, expr, nil); err != nil {
				return Result{}, err
			}
			return textResult("scrolled (scripting fallback)")
		},
	}
}
