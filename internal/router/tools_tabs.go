package router

import "fmt"

// tabManagementTools covers creating, listing, and closing tabs (tab.switch
// is registered with the navigation tools). tab.list and tab.create send
// Target-domain commands over the request tab's debugger connection,
// attaching it on first use; tab.close only detaches and drops the session.
func tabManagementTools() []RouterTool {
	return []RouterTool{
		{
			Name:         "tab.list",
			Capabilities: CapDebugger,
			Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
				raw, err := cdpCall(rc, "Target.getTargets", map[string]any{})
				if err != nil {
					return Result{}, err
				}
				return Result{Text: string(raw)}, nil
			},
		},
		{
			Name:         "tab.create",
			Capabilities: CapDebugger,
			Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
				url, _ := argString(args, "url")
				if url == "" {
					url = "about:blank"
				}
				raw, err := cdpCall(rc, "Target.createTarget", map[string]any{"url": url})
				if err != nil {
					return Result{}, err
				}
				return Result{Text: string(raw)}, nil
			},
		},
		{
			Name:         "tab.close",
			Capabilities: CapDebugger,
			Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
				rc.Session().detach()
				rc.router.sessions.remove(tabID)
				return textResult(fmt.Sprintf("closed tab %d", tabID))
			},
		},
	}
}
