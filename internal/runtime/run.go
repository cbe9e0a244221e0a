package runtime

import (
	"context"
	"iter"

	"github.com/aretw0/arbor/pkg/domain"
)

// HaltReason tells why a run stopped.
type HaltReason int

const (
	// HaltNone means the run has not stopped on a halt condition (it failed or
	// the caller stopped iterating).
	HaltNone HaltReason = iota
	// HaltedBefore stopped before an action listed in HaltBefore.
	HaltedBefore
	// HaltedAfter stopped after an action listed in HaltAfter.
	HaltedAfter
	// HaltedTerminal reached an action without outgoing transitions.
	HaltedTerminal
	// HaltedMaxSteps executed RunOptions.MaxSteps steps.
	HaltedMaxSteps
)

func (h HaltReason) String() string {
	switch h {
	case HaltedBefore:
		return "halt_before"
	case HaltedAfter:
		return "halt_after"
	case HaltedTerminal:
		return "terminal"
	case HaltedMaxSteps:
		return "max_steps"
	}
	return "none"
}

// RunOptions bounds a run.
type RunOptions struct {
	HaltBefore []string
	HaltAfter  []string
	// Inputs are offered to every step; each action only sees what it declares.
	Inputs domain.Inputs
	// MaxSteps stops the run after that many steps when positive.
	MaxSteps int
}

// RunResult is the outcome of a run.
type RunResult struct {
	// Action is the last executed action, which may predate this run when no
	// step was executed.
	Action   string
	Sequence int
	// Result is the result of the last step executed by this run.
	Result   any
	State    domain.State
	Next     string
	Steps    int
	Reason   HaltReason
	Warnings []error
}

// Run steps until a halt condition is met. A run positioned at an action in
// HaltBefore executes nothing. On error the application stays at the last
// committed step and the partial result is returned alongside the error.
func (r *Runtime) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	return r.loop(ctx, opts, nil, nil)
}

// Iterate yields every committed step of a run. A failing step yields a nil
// result with its error and ends the sequence.
func (r *Runtime) Iterate(ctx context.Context, opts RunOptions) iter.Seq2[*StepResult, error] {
	return func(yield func(*StepResult, error) bool) {
		_, err := r.loop(ctx, opts, nil, func(res *StepResult) bool {
			return yield(res, nil)
		})
		if err != nil {
			yield(nil, err)
		}
	}
}

// Stream runs like Run and delivers the chunks of streaming actions listed in
// HaltAfter to onChunk. Chunks of every other action are discarded.
func (r *Runtime) Stream(ctx context.Context, opts RunOptions, onChunk domain.Emitter) (*RunResult, error) {
	return r.loop(ctx, opts, onChunk, nil)
}

func (r *Runtime) loop(ctx context.Context, opts RunOptions, onChunk domain.Emitter, visit func(*StepResult) bool) (*RunResult, error) {
	haltBefore := toSet(opts.HaltBefore)
	haltAfter := toSet(opts.HaltAfter)
	out := &RunResult{}

	for {
		next := r.Snapshot().Next
		if next == "" {
			out.Reason = HaltedTerminal
			break
		}
		if haltBefore[next] {
			out.Reason = HaltedBefore
			break
		}
		if opts.MaxSteps > 0 && out.Steps >= opts.MaxSteps {
			out.Reason = HaltedMaxSteps
			break
		}
		if err := ctx.Err(); err != nil {
			r.fill(out)
			return out, err
		}

		var emit domain.Emitter
		if onChunk != nil && haltAfter[next] {
			emit = onChunk
		}
		res, err := r.step(ctx, opts.Inputs, emit)
		if err != nil {
			r.fill(out)
			return out, err
		}
		out.Steps++
		out.Result = res.Result
		out.Warnings = append(out.Warnings, res.Warnings...)

		if visit != nil && !visit(res) {
			break
		}
		if haltAfter[res.Action] {
			out.Reason = HaltedAfter
			break
		}
	}

	r.fill(out)
	return out, nil
}

func (r *Runtime) fill(out *RunResult) {
	snap := r.Snapshot()
	out.Action = snap.Position.Action
	out.Sequence = snap.Position.Sequence
	out.State = snap.State
	out.Next = snap.Next
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
