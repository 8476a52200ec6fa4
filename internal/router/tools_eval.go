package router

import "encoding/json"

func evalTools() []RouterTool {
	return []RouterTool{
		{
			Name:         "js.evaluate",
			Capabilities: CapEither,
			Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
				expr, err := requireString(args, "expression")
				if err != nil {
					return Result{}, err
				}
				var value json.RawMessage
				if err := evaluate(rc, expr, &value); err != nil {
					return Result{}, err
				}
				return textResult(string(value))
			},
		},
	}
}
