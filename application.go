package arbor

import (
	"context"
	"fmt"
	"iter"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/lineage"
)

// Application is a graph bound to its current state and position.
// Steps are executed one at a time; an Application is safe for concurrent use
// but never runs two steps at once. Accessors such as State and Sequence may be
// called from hooks and actions and report the last committed step.
type Application struct {
	rt     *runtime.Runtime
	leases *lineage.Manager
}

// ID returns the application id used for persistence.
func (a *Application) ID() string { return a.rt.ID() }

// PartitionKey returns the partition key written to records.
func (a *Application) PartitionKey() string { return a.rt.PartitionKey() }

// Graph returns the validated graph.
func (a *Application) Graph() *graph.Graph { return a.rt.Graph() }

// Parent returns the record this application was forked from, nil otherwise.
func (a *Application) Parent() *domain.Lineage { return a.rt.Parent() }

// State returns the current state.
func (a *Application) State() domain.State { return a.rt.Snapshot().State }

// Position returns the last executed action and the sequence it committed.
func (a *Application) Position() domain.Position { return a.rt.Snapshot().Position }

// Sequence returns the number of committed steps.
func (a *Application) Sequence() int { return a.rt.Snapshot().Position.Sequence }

// NextAction returns the action the next step runs, empty when terminal.
func (a *Application) NextAction() string { return a.rt.Snapshot().Next }

// HasNext reports whether another step can run.
func (a *Application) HasNext() bool { return a.NextAction() != "" }

// Step runs the next action once.
func (a *Application) Step(ctx context.Context, inputs domain.Inputs) (*StepResult, error) {
	return a.rt.Step(ctx, inputs)
}

// Run steps until a halt condition is met: an action in HaltBefore is next,
// an action in HaltAfter just ran, a terminal action ran, or MaxSteps steps
// were executed.
func (a *Application) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	return a.rt.Run(ctx, opts)
}

// Iterate yields every step of a run as it commits.
func (a *Application) Iterate(ctx context.Context, opts RunOptions) iter.Seq2[*StepResult, error] {
	return a.rt.Iterate(ctx, opts)
}

// StreamResult runs like Run and hands the intermediate chunks of the
// streaming action that ends the run (one listed in HaltAfter) to onChunk.
func (a *Application) StreamResult(ctx context.Context, opts RunOptions, onChunk domain.Emitter) (*RunResult, error) {
	return a.rt.Stream(ctx, opts, onChunk)
}

// UpdateState replaces the current state between steps, e.g. to inject
// human edits. It is recorded with the next committed step.
func (a *Application) UpdateState(state domain.State) {
	a.rt.SetState(state)
}

// ResetToEntrypoint makes the next step run the entrypoint again. State and
// sequence numbering are kept.
func (a *Application) ResetToEntrypoint() {
	a.rt.Reset()
}

// History returns the recorded steps of this application. The tracker must
// support listing.
func (a *Application) History(ctx context.Context) ([]domain.Record, error) {
	if a.leases == nil || a.leases.Store() == nil {
		return nil, fmt.Errorf("history of %s: %w", a.ID(), lineage.ErrUnsupported)
	}
	return a.leases.History(ctx, a.ID())
}
