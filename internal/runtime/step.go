package runtime

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

// StepResult describes one committed step.
type StepResult struct {
	Action   string
	Sequence int
	Result   any
	State    domain.State
	Diff     domain.StateDiff
	// Next is the action the following step runs, empty when terminal.
	Next     string
	Duration time.Duration
	// Warnings holds failures that did not abort the step: optional hooks,
	// contract violations in warn mode and persistence errors.
	Warnings []error
}

// Step executes the current action exactly once and advances the position.
//
// Every failure before the commit (missing inputs, hook, action, contract or
// transition errors) leaves state and position untouched. Hooks and actions
// may call Snapshot while a step runs; a SetState or Reset made meanwhile is
// replaced by the step's commit. A failed save is
// reported in Warnings and never rolls the step back.
func (r *Runtime) Step(ctx context.Context, inputs domain.Inputs) (*StepResult, error) {
	return r.step(ctx, inputs, nil)
}

func (r *Runtime) step(ctx context.Context, inputs domain.Inputs, emit domain.Emitter) (*StepResult, error) {
	r.stepMu.Lock()
	defer r.stepMu.Unlock()

	var res *StepResult
	err := r.withLease(ctx, func(ctx context.Context) error {
		var err error
		res, err = r.stepLocked(ctx, inputs, emit)
		return err
	})
	return res, err
}

func (r *Runtime) stepLocked(ctx context.Context, inputs domain.Inputs, emit domain.Emitter) (*StepResult, error) {
	cur := r.Snapshot()
	name := cur.Next
	if name == "" {
		return nil, domain.ErrTerminal
	}
	action, ok := r.graph.Action(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAction, name)
	}

	contract := action.Contract()
	if missing := contract.MissingInputs(inputs); len(missing) > 0 {
		return nil, &domain.MissingInputError{Action: name, Missing: missing}
	}
	in := contract.Filter(inputs)
	seq := cur.Position.Sequence + 1
	res := &StepResult{Action: name, Sequence: seq}

	pre := &domain.PreStepEvent{EventBase: r.event(seq), Action: name, State: cur.State, Inputs: in}
	warnings, err := r.runHooks(ctx, domain.PhasePreStep, name, func(h domain.LifecycleHooks) error {
		if h.OnPreStep == nil {
			return nil
		}
		return h.OnPreStep(ctx, pre)
	})
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, produced, reads, err := r.execute(ctx, cur.State, action, in, emit)
	res.Duration = time.Since(started)
	if err != nil {
		err = &domain.ActionExecutionError{Action: name, Sequence: seq, Err: err}
		r.failed(ctx, cur.State, seq, name, res.Duration, err)
		return nil, err
	}

	next, violation := r.enforce(cur.State, name, contract, produced, reads)
	if violation != nil {
		if r.mode == ContractStrict {
			r.failed(ctx, cur.State, seq, name, res.Duration, violation)
			return nil, violation
		}
		r.logger.WarnContext(ctx, "contract violation",
			"action", name,
			"reads", violation.Reads,
			"writes", violation.Writes,
		)
		res.Warnings = append(res.Warnings, violation)
	}

	following, err := r.graph.Next(name, next, inputs)
	if err != nil {
		r.failed(ctx, cur.State, seq, name, res.Duration, err)
		return nil, err
	}

	res.Result = result
	res.State = next
	res.Diff = domain.Diff(cur.State, next)
	res.Next = following

	post := &domain.PostStepEvent{
		EventBase: r.event(seq),
		Action:    name,
		Result:    result,
		State:     next,
		Diff:      res.Diff,
		Next:      following,
		Duration:  res.Duration,
	}
	warnings, err = r.runHooks(ctx, domain.PhasePostStep, name, func(h domain.LifecycleHooks) error {
		if h.OnPostStep == nil {
			return nil
		}
		return h.OnPostStep(ctx, post)
	})
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		r.failed(ctx, cur.State, seq, name, res.Duration, err)
		return nil, err
	}

	committed := Snapshot{State: next, Position: domain.Position{Action: name, Sequence: seq}, Next: following}
	r.mu.Lock()
	r.state, r.position, r.next = committed.State, committed.Position, committed.Next
	r.mu.Unlock()

	r.logger.DebugContext(ctx, "step committed",
		"action", name,
		"sequence", seq,
		"next", following,
		"changed", res.Diff.Fields(),
	)

	if err := r.persist(ctx, committed); err != nil {
		res.Warnings = append(res.Warnings, err)
	}
	return res, nil
}

// execute runs the action against a read-guarded view of the state.
// Panics are converted into errors.
func (r *Runtime) execute(ctx context.Context, state domain.State, action domain.Action, in domain.Inputs, emit domain.Emitter) (result any, next domain.State, reads []string, err error) {
	view, violations := domain.GuardReads(state, action.Contract().Reads, r.mode == ContractStrict)
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	if s, ok := action.(domain.StreamingAction); ok && emit != nil {
		result, next, err = s.Stream(ctx, view, in, emit)
	} else {
		result, next, err = action.Run(ctx, view, in)
	}
	return result, next, violations(), err
}

// enforce merges the declared writes of produced onto base and
// reports anything outside the contract. In strict mode fields the action
// could not see are not counted as deleted.
func (r *Runtime) enforce(base domain.State, name string, contract domain.Contract, produced domain.State, reads []string) (domain.State, *domain.ContractViolationError) {
	diff := domain.Diff(base, produced)
	if r.mode == ContractStrict {
		diff.Deleted = slices.DeleteFunc(diff.Deleted, func(f string) bool {
			return !contract.CanRead(f) && !contract.CanWrite(f)
		})
	}

	var writes []string
	for _, f := range diff.Fields() {
		if !contract.CanWrite(f) {
			writes = append(writes, f)
		}
	}

	next := diff.Apply(base, contract.CanWrite)
	if len(writes) == 0 && len(reads) == 0 {
		return next, nil
	}
	return next, &domain.ContractViolationError{Action: name, Reads: reads, Writes: writes}
}

// failed notifies post-step hooks of an aborted step. Their errors are only logged.
func (r *Runtime) failed(ctx context.Context, state domain.State, seq int, name string, d time.Duration, cause error) {
	post := &domain.PostStepEvent{
		EventBase: r.event(seq),
		Action:    name,
		State:     state,
		Duration:  d,
		Err:       cause,
	}
	_, _ = r.runHooks(ctx, domain.PhasePostStep, name, func(h domain.LifecycleHooks) error {
		if h.OnPostStep == nil {
			return nil
		}
		return h.OnPostStep(ctx, post)
	})
	r.logger.WarnContext(ctx, "step failed", "action", name, "sequence", seq, "err", cause)
}

// persist saves a committed snapshot. Failures are logged and returned as
// *domain.PersistenceError.
func (r *Runtime) persist(ctx context.Context, snap Snapshot) error {
	if r.tracker == nil {
		return nil
	}
	record := domain.Record{
		AppID:        r.appID,
		PartitionKey: r.partitionKey,
		Position:     snap.Position,
		Next:         snap.Next,
		State:        snap.State,
		Parent:       r.parent,
		CreatedAt:    r.now().UTC(),
	}
	if err := r.tracker.Save(ctx, record); err != nil {
		perr := &domain.PersistenceError{Op: "save", AppID: r.appID, Sequence: snap.Position.Sequence, Err: err}
		r.logger.WarnContext(ctx, "failed to persist step", "sequence", snap.Position.Sequence, "err", err)
		return perr
	}
	return nil
}

func (r *Runtime) event(seq int) domain.EventBase {
	return domain.EventBase{Timestamp: r.now(), AppID: r.appID, Sequence: seq}
}
