package router

import "github.com/batalabs/surfbridge/internal/protocol"

// captureTools start/stop network capture on a tab, enforcing the per-tab
// capture state machine's guard against parallel transitions (spec.md
// §4.D).
func captureTools() []RouterTool {
	return []RouterTool{captureStartTool(), captureStopTool(), captureStatusTool()}
}

func captureStartTool() RouterTool {
	return RouterTool{
		Name:         "capture.start",
		Capabilities: CapDebugger,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			session := rc.Session()
			session.mu.Lock()
			if session.capture != captureOff {
				state := session.capture
				session.mu.Unlock()
				return Result{}, newTargetError("capture already " + state.String())
			}
			session.capture = captureStarting
			session.mu.Unlock()

			store := rc.Store()
			if store == nil {
				session.setCapture(captureOff)
				return Result{}, newTargetError("no capture store configured")
			}
			client, err := rc.Debugger()
			if err != nil {
				session.setCapture(captureOff)
				return Result{}, protocol.Wrap(protocol.ErrCapability, "debugger attach failed", err)
			}
			sub := newCaptureSubscriber(store)
			if err := sub.attach(client); err != nil {
				session.setCapture(captureOff)
				return Result{}, err
			}
			session.setCapture(captureOn)
			return textResult("capture started")
		},
	}
}

func captureStopTool() RouterTool {
	return RouterTool{
		Name:         "capture.stop",
		Capabilities: CapDebugger,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			session := rc.Session()
			session.mu.Lock()
			if session.capture != captureOn {
				state := session.capture
				session.mu.Unlock()
				return Result{}, newTargetError("capture is not on (" + state.String() + ")")
			}
			session.capture = captureStopping
			session.mu.Unlock()

			if _, err := cdpCall(rc, "Network.disable", map[string]any{}); err != nil {
				session.setCapture(captureOn)
				return Result{}, err
			}
			session.setCapture(captureOff)
			return textResult("capture stopped")
		},
	}
}

func captureStatusTool() RouterTool {
	return RouterTool{
		Name:         "capture.status",
		Capabilities: CapEither,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			return textResult(rc.Session().captureStatus().String())
		},
	}
}
