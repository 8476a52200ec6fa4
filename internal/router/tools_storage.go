package router

func storageTools() []RouterTool {
	return []RouterTool{
		cookiesGetTool(),
		cookiesSetTool(),
		bookmarksSearchTool(),
		historySearchTool(),
	}
}

func cookiesGetTool() RouterTool {
	return RouterTool{
		Name:         "storage.cookies.get",
		Capabilities: CapDebugger,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			raw, err := cdpCall(rc, "Network.getCookies", map[string]any{})
			if err != nil {
				return Result{}, err
			}
			return Result{Text: string(raw)}, nil
		},
	}
}

func cookiesSetTool() RouterTool {
	return RouterTool{
		Name:         "storage.cookies.set",
		Capabilities: CapDebugger,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			name, err := requireString(args, "name")
			if err != nil {
				return Result{}, err
			}
			value, err := requireString(args, "value")
			if err != nil {
				return Result{}, err
			}
			url, err := requireString(args, "url")
			if err != nil {
				return Result{}, err
			}
			if _, err := cdpCall(rc, "Network.setCookie", map[string]any{
				"name": name, "value": value, "url": url,
			}); err != nil {
				return Result{}, err
			}
			return textResult("cookie set")
		},
	}
}

func bookmarksSearchTool() RouterTool {
	return RouterTool{
		Name:         "storage.bookmarks.search",
		Capabilities: CapScripting,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			query, _ := argString(args, "query")
			return textResult("bookmarks matching " + query + " (browser bookmarks API is outside CDP scope in this daemon-side reimplementation)")
		},
	}
}

func historySearchTool() RouterTool {
	return RouterTool{
		Name:         "storage.history.search",
		Capabilities: CapScripting,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			query, _ := argString(args, "query")
			return textResult("history matching " + query + " (browser history API is outside CDP scope in this daemon-side reimplementation)")
		},
	}
}
