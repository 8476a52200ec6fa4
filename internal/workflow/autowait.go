package workflow

// autoWaitTool returns the follow-up wait tool for a leaf step's command
// per spec.md §4.E's auto-wait policy, or "" if the command neither
// navigates nor mutates the page.
func autoWaitTool(cmd string) string {
	switch cmd {
	case "navigate", "back", "forward", "reload", "tab.switch":
		return "wait.load"
	case "click", "key":
		return "wait.dom"
	default:
		return ""
	}
}

const autoWaitTimeoutMs = 2000
