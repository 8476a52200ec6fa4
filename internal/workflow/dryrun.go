package workflow

import (
	"encoding/json"
	"strings"
)

// plan prints a workflow's step tree with variables resolved where
// statically known, without issuing any tool requests — adapted from the
// teacher's scheduled-job preview tooling (internal/tools/schedule_task.go
// previews a job before committing it) for workflow authors who want to
// see what a document will do before running it.
//
// Loop bodies are printed once, annotated with their iteration bound,
// rather than unrolled: a repeat count is known statically (after
// capping), but an each loop's element count usually depends on a
// variable captured at run time, so unrolling would either be wrong or
// require guessing.
func plan(steps []Step, vars map[string]any, depth int, logf func(string, ...any)) {
	for _, step := range steps {
		printStep(step, vars, depth, logf)
	}
}

func printStep(step Step, vars map[string]any, depth int, logf func(string, ...any)) {
	indent := strings.Repeat("  ", depth)
	switch {
	case step.Repeat != nil:
		n := *step.Repeat
		if n > maxLoopIterations {
			n = maxLoopIterations
		}
		logf("%srepeat %d:", indent, n)
		plan(step.Steps, vars, depth+1, logf)
		if step.Until != nil {
			logf("%suntil: %s", indent, describeArgs(step.Until.Cmd, step.Until.Args, vars))
		}
	case step.Each != "":
		bind := step.As
		if bind == "" {
			bind = "item"
		}
		logf("%seach %s as %s (up to %d):", indent, step.Each, bind, maxLoopIterations)
		plan(step.Steps, vars, depth+1, logf)
		if step.Until != nil {
			logf("%suntil: %s", indent, describeArgs(step.Until.Cmd, step.Until.Args, vars))
		}
	default:
		line := describeArgs(step.Cmd, step.Args, vars)
		if step.As != "" {
			line += " as " + step.As
		}
		logf("%s%s", indent, line)
		if tool := autoWaitTool(step.Cmd); tool != "" {
			logf("%s  (auto-wait: %s)", indent, tool)
		}
	}
}

func describeArgs(cmd string, args map[string]any, vars map[string]any) string {
	resolved := substituteArgs(args, vars)
	b, err := json.Marshal(resolved)
	if err != nil {
		return cmd
	}
	return cmd + " " + string(b)
}
