package router

// aiSiteTools are the specialised flows that drive a third-party AI chat
// site through a long UI sequence. The daemon recognises the "aisite."
// prefix (internal/daemon/sitequeue.go) and serialises calls per site-key
// so two concurrent requests never interleave keystrokes into the same
// chat composer.
func aiSiteTools() []RouterTool {
	return []RouterTool{
		aiSiteSendTool(),
		aiSiteReadReplyTool(),
	}
}

func aiSiteSendTool() RouterTool {
	return RouterTool{
		Name:           "aisite.send",
		Capabilities:   CapDebugger,
		AutoScreenshot: true,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			prompt, err := requireString(args, "prompt")
			if err != nil {
				return Result{}, err
			}
			composerSelector, _ := argString(args, "composerSelector")
			if composerSelector == "" {
				composerSelector = "textarea, [contenteditable='true']"
			}
			var found bool
			expr := "document.querySelector(" + quoteJS(composerSelector) + ") !== null"
			if err := evaluate(rc, expr, &found); err != nil {
				return Result{}, err
			}
			if !found {
				return Result{}, requireComposer(composerSelector)
			}
			if _, err := cdpCall(rc, "Input.insertText", map[string]any{"text": prompt}); err != nil {
				return Result{}, err
			}
			for _, typ := range []string{"keyDown", "keyUp"} {
				if _, err := cdpCall(rc, "Input.dispatchKeyEvent", map[string]any{"type": typ, "key": "Enter"}); err != nil {
					return Result{}, err
				}
			}
			return textResult("prompt submitted")
		},
	}
}

func requireComposer(selector string) error {
	return newTargetError("composer not found: " + selector)
}

func aiSiteReadReplyTool() RouterTool {
	return RouterTool{
		Name:         "aisite.readReply",
		Capabilities: CapEither,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			replySelector, _ := argString(args, "replySelector")
			if replySelector == "" {
				replySelector = "[data-message-author-role='assistant']:last-of-type"
			}
			var text string
			expr := "(() => { const el = document.querySelector(" + quoteJS(replySelector) + "); " +
				"return el ? el.innerText : ''; })()"
			if err := evaluate(rc, expr, &text); err != nil {
				return Result{}, err
			}
			return textResult(text)
		},
	}
}
