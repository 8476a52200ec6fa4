package router

import (
	"time"

	"github.com/batalabs/surfbridge/internal/protocol"
	"github.com/batalabs/surfbridge/internal/router/cdp"
)

const (
	defaultWaitTimeout = 5 * time.Second
	pollInterval       = 100 * time.Millisecond
)

func waitTools() []RouterTool {
	return []RouterTool{
		waitElementTool(),
		waitURLTool(),
		waitLoadTool(),
		waitDOMStableTool(),
		waitNetworkIdleTool(),
	}
}

func pollUntil(timeout time.Duration, check func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := check()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return protocol.NewError(protocol.ErrTimeout, "wait condition not satisfied before timeout")
		}
		time.Sleep(pollInterval)
	}
}

func waitTimeoutFrom(args map[string]any) time.Duration {
	ms := argInt(args, "timeoutMs", int(defaultWaitTimeout/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

func waitElementTool() RouterTool {
	return RouterTool{
		Name:         "wait.element",
		Capabilities: CapEither,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			selector, err := requireString(args, "selector")
			if err != nil {
				return Result{}, err
			}
			timeout := waitTimeoutFrom(args)
			err = pollUntil(timeout, func() (bool, error) {
				var found bool
				expr := "document.querySelector(" + quoteJS(selector) + ") !== null"
				if err := evaluate(rc, expr, &found); err != nil {
					return false, err
				}
				return found, nil
			})
			if err != nil {
				return Result{}, err
			}
			return textResult("element present: " + selector)
		},
	}
}

func waitURLTool() RouterTool {
	return RouterTool{
		Name:         "wait.url",
		Capabilities: CapEither,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			pattern, err := requireString(args, "pattern")
			if err != nil {
				return Result{}, err
			}
			timeout := waitTimeoutFrom(args)
			err = pollUntil(timeout, func() (bool, error) {
				var matches bool
				expr := "location.href.includes(" + quoteJS(pattern) + ")"
				if err := evaluate(rc, expr, &matches); err != nil {
					return false, err
				}
				return matches, nil
			})
			if err != nil {
				return Result{}, err
			}
			return textResult("url matched: " + pattern)
		},
	}
}

func waitLoadTool() RouterTool {
	return RouterTool{
		Name:         "wait.load",
		Capabilities: CapEither,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			timeout := waitTimeoutFrom(args)
			err := pollUntil(timeout, func() (bool, error) {
				var state string
				if err := evaluate(rc, "document.readyState", &state); err != nil {
					return false, err
				}
				return state == "complete", nil
			})
			if err != nil {
				return Result{}, err
			}
			return textResult("load complete")
		},
	}
}

func waitDOMStableTool() RouterTool {
	return RouterTool{
		Name:         "wait.dom",
		Capabilities: CapEither,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			timeout := waitTimeoutFrom(args)
			var last int
			stableRounds := 0
			err := pollUntil(timeout, func() (bool, error) {
				var count int
				if err := evaluate(rc, "document.getElementsByTagName('*').length", &count); err != nil {
					return false, err
				}
				if count == last {
					stableRounds++
				} else {
					stableRounds = 0
					last = count
				}
				return stableRounds >= 2, nil
			})
			if err != nil {
				return Result{}, err
			}
			return textResult("dom stable")
		},
	}
}

func waitNetworkIdleTool() RouterTool {
	return RouterTool{
		Name:         "wait.networkIdle",
		Capabilities: CapDebugger,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			idleWindow := time.Duration(argInt(args, "idleMs", 500)) * time.Millisecond
			timeout := waitTimeoutFrom(args)

			client, err := rc.Debugger()
			if err != nil {
				return Result{}, protocol.Wrap(protocol.ErrCapability, "debugger attach failed", err)
			}

			started := make(chan cdp.Event, 256)
			finished := make(chan cdp.Event, 256)
			client.Subscribe("Network.requestWillBeSent", started)
			client.Subscribe("Network.loadingFinished", finished)

			deadline := time.NewTimer(timeout)
			defer deadline.Stop()
			idleTimer := time.NewTimer(idleWindow)
			defer idleTimer.Stop()

			for {
				select {
				case <-started:
					resetTimer(idleTimer, idleWindow)
				case <-finished:
					resetTimer(idleTimer, idleWindow)
				case <-idleTimer.C:
					return textResult("network idle")
				case <-deadline.C:
					return Result{}, protocol.NewError(protocol.ErrTimeout, "network did not go idle before timeout")
				}
			}
		},
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
