package router

import "fmt"

func navigationTools() []RouterTool {
	return []RouterTool{
		{
			Name:           "navigate",
			Capabilities:   CapDebugger,
			AutoScreenshot: true,
			Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
				url, err := requireString(args, "url")
				if err != nil {
					return Result{}, err
				}
				if _, err := cdpCall(rc, "Page.navigate", map[string]any{"url": url}); err != nil {
					return Result{}, err
				}
				return textResult("navigated to " + url)
			},
		},
		{
			Name:         "back",
			Capabilities: CapDebugger,
			Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
				if _, err := cdpCall(rc, "Page.getNavigationHistory", map[string]any{}); err != nil {
					return Result{}, err
				}
				if err := evaluate(rc, "history.back()", nil); err != nil {
					return Result{}, err
				}
				return textResult("navigated back")
			},
		},
		{
			Name:         "forward",
			Capabilities: CapDebugger,
			Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
				if err := evaluate(rc, "history.forward()", nil); err != nil {
					return Result{}, err
				}
				return textResult("navigated forward")
			},
		},
		{
			Name:         "reload",
			Capabilities: CapDebugger,
			Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
				hard := argBool(args, "hardReload", false)
				if _, err := cdpCall(rc, "Page.reload", map[string]any{"ignoreCache": hard}); err != nil {
					return Result{}, err
				}
				return textResult("reloaded")
			},
		},
		{
			Name:         "page.url",
			Capabilities: CapEither,
			Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
				var url string
				if err := evaluate(rc, "location.href", &url); err != nil {
					return Result{}, err
				}
				return textResult(url)
			},
		},
		{
			Name:         "page.title",
			Capabilities: CapEither,
			Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
				var title string
				if err := evaluate(rc, "document.title", &title); err != nil {
					return Result{}, err
				}
				return textResult(title)
			},
		},
		{
			Name:         "tab.switch",
			Capabilities: CapDebugger,
			Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
				if _, err := cdpCall(rc, "Target.activateTarget", map[string]any{"targetId": fmt.Sprintf("%d", tabID)}); err != nil {
					return Result{}, err
				}
				return textResult(fmt.Sprintf("switched to tab %d", tabID))
			},
		},
	}
}
