package workflow

import (
	"fmt"
	"net/url"
	"regexp"
)

var (
	varPattern      = regexp.MustCompile(`%\{([a-zA-Z0-9_.]+)\}`)
	exactVarPattern = regexp.MustCompile(`^%\{([a-zA-Z0-9_.]+)\}$`)
)

// substituteArgs resolves every %{name} reference in a leaf step's argument
// map against the rolling variable map, per spec.md §4.E.
func substituteArgs(args map[string]any, vars map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	out, _ := substituteValue(args, vars).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// substituteValue walks a value recursively, substituting %{name} in every
// string it finds. A string that is exactly one placeholder (e.g. "%{t}")
// resolves to the variable's raw value (so a captured array or object
// survives substitution instead of being stringified); a string containing
// a placeholder alongside other text is substituted textually.
func substituteValue(v any, vars map[string]any) any {
	switch t := v.(type) {
	case string:
		if m := exactVarPattern.FindStringSubmatch(t); m != nil {
			if raw, ok := vars[m[1]]; ok {
				return raw
			}
			return t
		}
		return substituteString(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = substituteValue(vv, vars)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = substituteValue(vv, vars)
		}
		return out
	default:
		return v
	}
}

// substituteString performs textual %{name} substitution within a string
// that is not itself a single bare placeholder. Per the documented policy
// (SPEC_FULL.md §4.E, resolving spec.md §9's open question), a substitution
// is URL-encoded when the surrounding template is itself a full URL string
// — detected by a url.Parse round trip, with placeholders blanked out
// first, that requires a non-empty scheme.
func substituteString(s string, vars map[string]any) string {
	encode := isURLTemplate(s)
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := varPattern.FindStringSubmatch(match)[1]
		raw, ok := vars[name]
		if !ok {
			return match
		}
		str := stringify(raw)
		if encode {
			return url.QueryEscape(str)
		}
		return str
	})
}

func isURLTemplate(s string) bool {
	probe := varPattern.ReplaceAllString(s, "x")
	u, err := url.Parse(probe)
	return err == nil && u.Scheme != ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// resolveEach evaluates a loop's "each" expression (typically "%{name}")
// against the variable map and coerces the result into a slice, the form
// spec.md §4.E requires for iteration.
func resolveEach(expr string, vars map[string]any) []any {
	resolved := substituteValue(expr, vars)
	switch t := resolved.(type) {
	case []any:
		return t
	case nil:
		return nil
	default:
		return []any{t}
	}
}
