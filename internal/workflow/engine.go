package workflow

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/batalabs/surfbridge/internal/config"
	"github.com/batalabs/surfbridge/internal/protocol"
)

// printFunc receives one formatted line of dry-run plan output.
type printFunc func(format string, args ...any)

// Issuer sends one tool request and returns its reply. protocol.ToolReply
// always carries exactly one of Result/Error, so Issuer never needs a
// separate error return — a Router's Dispatch and a bridge-socket client
// both satisfy this signature directly.
type Issuer func(protocol.ToolRequest) protocol.ToolReply

// FailurePolicy controls what a leaf step's error does to the surrounding
// run, per spec.md §4.E.
type FailurePolicy int

const (
	// PolicyStop aborts the run at the first failing leaf step.
	PolicyStop FailurePolicy = iota
	// PolicyContinue records the error and moves to the next step.
	PolicyContinue
)

// EventKind classifies an Engine event, mirroring the teacher's agent
// event-callback pattern (internal/agent.EventKind) for a much smaller
// event set.
type EventKind int

const (
	EventStepStart EventKind = iota
	EventStepDone
	EventLoopIteration
	EventAutoWait
	EventDroppedIterations
)

// Event is delivered synchronously to an optional observer as the run
// progresses.
type Event struct {
	Kind      EventKind
	StepID    string
	Cmd       string
	Iteration int
	Err       error
}

// EventFunc observes Engine progress. Called synchronously from Run's
// goroutine.
type EventFunc func(Event)

// Engine runs a workflow document against a single Issuer.
type Engine struct {
	issue   Issuer
	logger  *config.Logger
	onEvent EventFunc
	policy  FailurePolicy
	dryRun  bool
	print   printFunc
}

// Option configures an Engine at construction.
type Option func(*Engine)

func WithLogger(l *config.Logger) Option { return func(e *Engine) { e.logger = l } }
func WithEventFunc(f EventFunc) Option   { return func(e *Engine) { e.onEvent = f } }
func WithFailurePolicy(p FailurePolicy) Option {
	return func(e *Engine) { e.policy = p }
}
func WithDryRun(dry bool) Option { return func(e *Engine) { e.dryRun = dry } }

// WithPlanPrinter overrides where --dry-run plan lines go (default:
// fmt.Println to stdout).
func WithPlanPrinter(p printFunc) Option { return func(e *Engine) { e.print = p } }

// NewEngine constructs an Engine that issues tool requests via issue.
func NewEngine(issue Issuer, opts ...Option) *Engine {
	e := &Engine{issue: issue, policy: PolicyStop, print: defaultPrint}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func defaultPrint(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

// Result is what Run returns: the final rolling variable map, plus the
// errors of failing top-level leaf steps collected under PolicyContinue.
// Errors of leaf steps inside a loop body are not collected.
type Result struct {
	Vars   map[string]any
	Errors []error
}

func (e *Engine) emit(ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// Run executes a workflow document's top-level steps in order against a
// fresh, empty variable map (spec.md §4.E).
func (e *Engine) Run(steps []Step) (Result, error) {
	if e.dryRun {
		plan(steps, map[string]any{}, 0, e.print)
		return Result{Vars: map[string]any{}}, nil
	}
	vars := make(map[string]any)
	errs, err := e.runSteps(steps, vars)
	return Result{Vars: vars, Errors: errs}, err
}

// runSteps runs a slice of steps against the shared, mutated vars map.
// Under PolicyStop the first leaf error aborts and is returned; under
// PolicyContinue the errors of this slice's leaf steps are collected and
// execution proceeds, while the loop runners drop the errors returned for
// their bodies.
func (e *Engine) runSteps(steps []Step, vars map[string]any) ([]error, error) {
	var errs []error
	for _, step := range steps {
		var err error
		if step.IsLoop() {
			err = e.runLoop(step, vars)
		} else {
			err = e.runLeaf(step, vars)
		}
		if err != nil {
			errs = append(errs, err)
			if e.policy == PolicyStop {
				return errs, err
			}
		}
	}
	return errs, nil
}

func (e *Engine) runLeaf(step Step, vars map[string]any) error {
	stepID := uuid.NewString()
	args := substituteArgs(step.Args, vars)

	e.emit(Event{Kind: EventStepStart, StepID: stepID, Cmd: step.Cmd})
	req := protocol.ToolRequest{
		Type:   protocol.MessageToolRequest,
		Method: "execute_tool",
		ID:     uuid.NewString(),
		Params: protocol.ToolParams{Tool: step.Cmd, Args: args},
	}
	reply := e.issue(req)
	e.emit(Event{Kind: EventStepDone, StepID: stepID, Cmd: step.Cmd})

	if step.As != "" {
		vars[step.As] = extractCapture(reply)
	}

	if reply.IsError() {
		kind := protocol.ErrTarget
		msg := step.Cmd + " failed"
		if reply.Error != nil {
			kind = reply.Error.Kind
			if len(reply.Error.Content) > 0 {
				msg = reply.Error.Content[0].Text
			}
		}
		err := protocol.NewError(kind, msg)
		e.logf("workflow: step %s (%s) failed: %v", stepID, step.Cmd, err)
		return err
	}

	e.autoWait(step.Cmd, vars)
	return nil
}

// autoWait issues the implicit follow-up wait per spec.md §4.E. Its
// failure is swallowed; only the leaf step's own failure matters.
func (e *Engine) autoWait(cmd string, vars map[string]any) {
	tool := autoWaitTool(cmd)
	if tool == "" {
		return
	}
	e.emit(Event{Kind: EventAutoWait, Cmd: tool})
	req := protocol.ToolRequest{
		Type:   protocol.MessageToolRequest,
		Method: "execute_tool",
		ID:     uuid.NewString(),
		Params: protocol.ToolParams{Tool: tool, Args: map[string]any{"timeoutMs": autoWaitTimeoutMs}},
	}
	if reply := e.issue(req); reply.IsError() {
		e.logf("workflow: auto-wait %s swallowed an error: %v", tool, reply.Error)
	}
}

func (e *Engine) runLoop(step Step, vars map[string]any) error {
	switch {
	case step.Repeat != nil:
		return e.runRepeatLoop(step, vars)
	case step.Each != "":
		return e.runEachLoop(step, vars)
	default:
		return fmt.Errorf("workflow: loop step has neither repeat nor each")
	}
}

func (e *Engine) runRepeatLoop(step Step, vars map[string]any) error {
	n := *step.Repeat
	if n > maxLoopIterations {
		e.emit(Event{Kind: EventDroppedIterations, Iteration: n - maxLoopIterations})
		e.logf("workflow: repeat %d capped at %d iterations", n, maxLoopIterations)
		n = maxLoopIterations
	}
	for i := 0; i < n; i++ {
		e.emit(Event{Kind: EventLoopIteration, Iteration: i})
		if _, err := e.runSteps(step.Steps, vars); err != nil && e.policy == PolicyStop {
			return err
		}
		if e.untilSatisfied(step.Until, vars) {
			break
		}
	}
	return nil
}

func (e *Engine) runEachLoop(step Step, vars map[string]any) error {
	items := resolveEach(step.Each, vars)
	if len(items) > maxLoopIterations {
		e.emit(Event{Kind: EventDroppedIterations, Iteration: len(items) - maxLoopIterations})
		e.logf("workflow: each loop over %d items capped at %d iterations", len(items), maxLoopIterations)
		items = items[:maxLoopIterations]
	}
	bind := step.As
	if bind == "" {
		bind = "item"
	}
	for i, item := range items {
		vars[bind] = item
		e.emit(Event{Kind: EventLoopIteration, Iteration: i})
		if _, err := e.runSteps(step.Steps, vars); err != nil && e.policy == PolicyStop {
			return err
		}
		if e.untilSatisfied(step.Until, vars) {
			break
		}
	}
	return nil
}

// untilSatisfied runs a loop's until leaf step (if any) and reports
// whether its captured result is truthy, exiting the loop early.
func (e *Engine) untilSatisfied(until *Step, vars map[string]any) bool {
	if until == nil {
		return false
	}
	args := substituteArgs(until.Args, vars)
	req := protocol.ToolRequest{
		Type:   protocol.MessageToolRequest,
		Method: "execute_tool",
		ID:     uuid.NewString(),
		Params: protocol.ToolParams{Tool: until.Cmd, Args: args},
	}
	reply := e.issue(req)
	result := extractCapture(reply)
	if until.As != "" {
		vars[until.As] = result
	}
	return isTruthy(result)
}
