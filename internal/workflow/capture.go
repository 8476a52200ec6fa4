package workflow

import (
	"encoding/json"

	"github.com/batalabs/surfbridge/internal/protocol"
)

// extractCapture implements spec.md §4.E's reply-extraction rule: a single
// text content part whose body parses as JSON captures the parsed value;
// otherwise the raw text; otherwise the whole reply object.
func extractCapture(reply protocol.ToolReply) any {
	content := reply.Result
	var parts []protocol.ContentPart
	if content != nil {
		parts = content.Content
	} else if reply.Error != nil {
		parts = reply.Error.Content
	}

	if len(parts) == 1 && parts[0].Type == "text" {
		var parsed any
		if err := json.Unmarshal([]byte(parts[0].Text), &parsed); err == nil {
			return parsed
		}
		return parts[0].Text
	}

	var whole any
	b, err := json.Marshal(reply)
	if err != nil {
		return nil
	}
	_ = json.Unmarshal(b, &whole)
	return whole
}

// isTruthy gives an until-step's captured value Go-ish truthiness: false,
// zero, nil, and empty strings/slices/maps are falsy; everything else is
// truthy.
func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
