package router

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/batalabs/surfbridge/internal/protocol"
)

const callTimeout = 10 * time.Second

// cdpCall issues a CDP command against the request's tab debugger, wrapping
// connection failures as a capability error (per spec.md §4.D: attach
// refused or restricted origin should be retried via scripting when the
// tool allows it).
func cdpCall(rc *RequestContext, method string, params map[string]any) (json.RawMessage, error) {
	client, err := rc.Debugger()
	if err != nil {
		return nil, protocol.Wrap(protocol.ErrCapability, "debugger attach failed", err)
	}
	raw, err := client.Call(method, params, callTimeout)
	if err != nil {
		return nil, protocol.Wrap(protocol.ErrTarget, method+" failed", err)
	}
	return raw, nil
}

// evaluate runs a JavaScript expression via Runtime.evaluate, the one
// capability both "debugger" and "scripting" tools share in this
// implementation, and decodes the result value into v if non-nil.
func evaluate(rc *RequestContext, expr string, v any) error {
	raw, err := cdpCall(rc, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
	})
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	var wrapper struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return protocol.Wrap(protocol.ErrTarget, "decode evaluate result", err)
	}
	if len(wrapper.Result.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(wrapper.Result.Value, v); err != nil {
		return protocol.Wrap(protocol.ErrTarget, "decode evaluate value", err)
	}
	return nil
}

func argString(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok
}

func requireString(args map[string]any, key string) (string, error) {
	v, ok := argString(args, key)
	if !ok || v == "" {
		return "", protocol.NewError(protocol.ErrProtocol, fmt.Sprintf("missing required argument %q", key))
	}
	return v, nil
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func argBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func textResult(text string) (Result, error) { return Result{Text: text}, nil }

func newTargetError(message string) error {
	return protocol.NewError(protocol.ErrTarget, message)
}
