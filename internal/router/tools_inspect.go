package router

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/batalabs/surfbridge/internal/protocol"
)

func inspectionTools() []RouterTool {
	return []RouterTool{
		accessibilityTreeTool(),
		pageTextTool(),
		pageStateTool(),
		searchTool(),
	}
}

type axNode struct {
	NodeID    int    `json:"nodeId"`
	BackendID int    `json:"backendDOMNodeId"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	Ignored   bool   `json:"ignored"`
}

func accessibilityTreeTool() RouterTool {
	return RouterTool{
		Name:         "accessibility.tree",
		Capabilities: CapDebugger,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			if _, err := cdpCall(rc, "Accessibility.enable", map[string]any{}); err != nil {
				return Result{}, err
			}
			raw, err := cdpCall(rc, "Accessibility.getFullAXTree", map[string]any{})
			if err != nil {
				return Result{}, err
			}
			var wrapper struct {
				Nodes []struct {
					NodeID    string `json:"nodeId"`
					BackendID int    `json:"backendDOMNodeId"`
					Ignored   bool   `json:"ignored"`
					Role      struct {
						Value string `json:"value"`
					} `json:"role"`
					Name struct {
						Value string `json:"value"`
					} `json:"name"`
				} `json:"nodes"`
			}
			if err := json.Unmarshal(raw, &wrapper); err != nil {
				return Result{}, protocol.Wrap(protocol.ErrTarget, "decode ax tree", err)
			}

			rc.Elements().reset()
			var b strings.Builder
			for _, n := range wrapper.Nodes {
				if n.Ignored || n.Role.Value == "" {
					continue
				}
				id, backend := 0, n.BackendID
				label := rc.Elements().stamp(id, backend)
				b.WriteString(label)
				b.WriteString(" ")
				b.WriteString(n.Role.Value)
				if n.Name.Value != "" {
					b.WriteString(" \"")
					b.WriteString(n.Name.Value)
					b.WriteString("\"")
				}
				b.WriteString("\n")
			}
			return textResult(b.String())
		},
	}
}

func pageTextTool() RouterTool {
	return RouterTool{
		Name:         "page.text",
		Capabilities: CapEither,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			var text string
			if err := evaluate(rc, "document.body ? document.body.innerText : ''", &text); err != nil {
				return Result{}, err
			}
			return textResult(text)
		},
	}
}

func pageStateTool() RouterTool {
	return RouterTool{
		Name:         "page.state",
		Capabilities: CapEither,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			var state struct {
				ReadyState string `json:"readyState"`
				URL        string `json:"url"`
				Title      string `json:"title"`
			}
			expr := "({readyState: document.readyState, url: location.href, title: document.title})"
			if err := evaluate(rc, expr, &state); err != nil {
				return Result{}, err
			}
			b, _ := json.Marshal(state)
			return textResult(string(b))
		},
	}
}

func searchTool() RouterTool {
	return RouterTool{
		Name:         "page.search",
		Capabilities: CapEither,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			query, err := requireString(args, "query")
			if err != nil {
				return Result{}, err
			}
			var count int
			expr := "(document.body ? document.body.innerText : '').split(" +
				"String.fromCharCode(10)).filter(l => l.includes(" + quoteJS(query) + ")).length"
			if err := evaluate(rc, expr, &count); err != nil {
				return Result{}, err
			}
			return textResult(strconv.Itoa(count) + " matching lines")
		},
	}
}

func quoteJS(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
