package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRecordNotFound is returned when a tracking store holds no record for the requested key.
var ErrRecordNotFound = errors.New("record not found")

// ErrUnknownAction is returned when an action name is not part of the graph.
var ErrUnknownAction = errors.New("unknown action")

// ErrTerminal is returned by Step when the application has no next action.
var ErrTerminal = errors.New("application reached a terminal action")

// GraphProblem is a single inconsistency found while validating a graph.
type GraphProblem struct {
	Action     string // Offending action (source for transition problems)
	Transition string // "from -> to [condition]" when the problem is an edge
	Reason     string
}

func (p GraphProblem) String() string {
	switch {
	case p.Transition != "":
		return fmt.Sprintf("transition %s: %s", p.Transition, p.Reason)
	case p.Action != "":
		return fmt.Sprintf("action %q: %s", p.Action, p.Reason)
	default:
		return p.Reason
	}
}

// GraphValidationError aggregates every problem found while building a graph.
type GraphValidationError struct {
	Problems []GraphProblem
}

func (e *GraphValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid graph: " + e.Problems[0].String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "invalid graph: %d problems:\n", len(e.Problems))
	for i, p := range e.Problems {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, p.String())
	}
	return b.String()
}

// MissingInputError reports required inputs that were not supplied.
type MissingInputError struct {
	Action  string
	Missing []string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("action %q requires inputs that are missing: %v", e.Action, e.Missing)
}

// ContractViolationError reports reads or writes outside the declared contract.
type ContractViolationError struct {
	Action string
	Reads  []string // fields read but not declared in Reads
	Writes []string // fields written but not declared in Writes
}

func (e *ContractViolationError) Error() string {
	var parts []string
	if len(e.Reads) > 0 {
		parts = append(parts, fmt.Sprintf("undeclared reads %v", e.Reads))
	}
	if len(e.Writes) > 0 {
		parts = append(parts, fmt.Sprintf("undeclared writes %v", e.Writes))
	}
	return fmt.Sprintf("action %q violated its contract: %s", e.Action, strings.Join(parts, ", "))
}

// ActionExecutionError wraps a failure raised by an action's own logic.
type ActionExecutionError struct {
	Action   string
	Sequence int // sequence number the step would have committed
	Err      error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %q failed at sequence %d: %v", e.Action, e.Sequence, e.Err)
}

func (e *ActionExecutionError) Unwrap() error { return e.Err }

// TransitionError reports that no next action could be chosen after a step.
type TransitionError struct {
	From      string
	Condition string // condition that failed to evaluate, empty if none matched
	Err       error
}

func (e *TransitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transition from %q: condition %q: %v", e.From, e.Condition, e.Err)
	}
	return fmt.Sprintf("transition from %q: no condition matched", e.From)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// HookError reports a failing lifecycle hook.
type HookError struct {
	Hook   string
	Phase  string // "pre_step" or "post_step"
	Action string
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %q failed in %s of %q: %v", e.Hook, e.Phase, e.Action, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// PersistenceError wraps a tracking store failure.
type PersistenceError struct {
	Op       string // "save" or "load"
	AppID    string
	Sequence int
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s@%d: %v", e.Op, e.AppID, e.Sequence, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
