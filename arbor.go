package arbor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/dsl"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/lineage"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/google/uuid"
)

// ContractMode selects how read/write contract violations are handled.
type ContractMode = runtime.ContractMode

const (
	ContractStrict = runtime.ContractStrict
	ContractWarn   = runtime.ContractWarn
)

type (
	RunOptions = runtime.RunOptions
	RunResult  = runtime.RunResult
	StepResult = runtime.StepResult
	HaltReason = runtime.HaltReason
)

const (
	HaltNone       = runtime.HaltNone
	HaltedBefore   = runtime.HaltedBefore
	HaltedAfter    = runtime.HaltedAfter
	HaltedTerminal = runtime.HaltedTerminal
	HaltedMaxSteps = runtime.HaltedMaxSteps
)

type loadRequest struct {
	appID    string
	sequence int
	fork     bool
}

// Builder accumulates everything an Application needs. Methods return the
// builder for chaining; problems are reported by Build.
type Builder struct {
	actions       []domain.Action
	transitions   []domain.Transition
	graphOpts     []graph.Option
	graph         *graph.Graph
	entrypoint    string
	initialFields []string

	state    domain.State
	hasState bool
	load     *loadRequest

	appID        string
	partitionKey string

	hooks   []domain.LifecycleHooks
	tracker ports.TrackingStore
	locker  ports.DistributedLocker
	logger  *slog.Logger
	mode    ContractMode

	errs []error
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithActions adds actions to the graph.
func (b *Builder) WithActions(actions ...domain.Action) *Builder {
	b.actions = append(b.actions, actions...)
	return b
}

// WithTransitions adds transitions. Transitions of one source keep their
// declaration order.
func (b *Builder) WithTransitions(transitions ...domain.Transition) *Builder {
	b.transitions = append(b.transitions, transitions...)
	return b
}

// WithFlow adds the transitions declared with the dsl package.
func (b *Builder) WithFlow(flow *dsl.Builder) *Builder {
	if err := flow.Err(); err != nil {
		b.errs = append(b.errs, err)
	}
	b.transitions = append(b.transitions, flow.Transitions()...)
	b.graphOpts = append(b.graphOpts, flow.Options()...)
	return b
}

// WithGraph uses a graph that was already validated. It cannot be combined
// with WithActions, WithTransitions or WithFlow.
func (b *Builder) WithGraph(g *graph.Graph) *Builder {
	b.graph = g
	return b
}

// WithEntrypoint sets the action a fresh application starts at.
func (b *Builder) WithEntrypoint(name string) *Builder {
	b.entrypoint = name
	return b
}

// WithInitialFields declares fields present before the first step, for the
// read/write aliasing check.
func (b *Builder) WithInitialFields(fields ...string) *Builder {
	b.initialFields = append(b.initialFields, fields...)
	return b
}

// WithState sets the initial state. A successful load takes precedence.
func (b *Builder) WithState(state domain.State) *Builder {
	b.state = state
	b.hasState = true
	return b
}

// WithLoad resumes the application recorded under appID at sequence
// (domain.LatestSequence for the newest record).
func (b *Builder) WithLoad(appID string, sequence int) *Builder {
	b.load = &loadRequest{appID: appID, sequence: sequence}
	return b
}

// ForkFrom seeds a new lineage from the record of appID at sequence. The new
// application id comes from WithIdentifiers, or is generated.
func (b *Builder) ForkFrom(appID string, sequence int) *Builder {
	b.load = &loadRequest{appID: appID, sequence: sequence, fork: true}
	return b
}

// WithIdentifiers sets the application id and partition key.
func (b *Builder) WithIdentifiers(appID, partitionKey string) *Builder {
	b.appID = appID
	b.partitionKey = partitionKey
	return b
}

// WithHooks registers lifecycle hooks. Required hooks run first.
func (b *Builder) WithHooks(hooks ...domain.LifecycleHooks) *Builder {
	b.hooks = append(b.hooks, hooks...)
	return b
}

// WithTracker sets the tracking store used to load and record steps.
func (b *Builder) WithTracker(store ports.TrackingStore) *Builder {
	b.tracker = store
	return b
}

// WithLocker serializes steps of one application across processes.
func (b *Builder) WithLocker(locker ports.DistributedLocker) *Builder {
	b.locker = locker
	return b
}

// WithLogger sets a custom structured logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithContractEnforcement sets the contract mode (default ContractStrict).
func (b *Builder) WithContractEnforcement(mode ContractMode) *Builder {
	b.mode = mode
	return b
}

// Build validates the graph, resolves the starting position and returns the
// Application. Graph problems are returned as *domain.GraphValidationError.
func (b *Builder) Build(ctx context.Context) (*Application, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	if b.load != nil && b.tracker == nil {
		return nil, errors.New("failed to build application: loading requires a tracker")
	}

	logger := b.logger
	if logger == nil {
		logger = logging.NewNop()
	}

	var leases *lineage.Manager
	if b.tracker != nil || b.locker != nil {
		opts := []lineage.Option{lineage.WithLogger(logger)}
		if b.locker != nil {
			opts = append(opts, lineage.WithLocker(b.locker))
		}
		leases = lineage.NewManager(b.tracker, opts...)
	}

	var record *domain.Record
	if b.load != nil {
		rec, err := leases.Load(ctx, b.load.appID, b.load.sequence)
		if err != nil {
			perr := &domain.PersistenceError{Op: "load", AppID: b.load.appID, Sequence: b.load.sequence, Err: err}
			if !errors.Is(err, domain.ErrRecordNotFound) {
				return nil, fmt.Errorf("failed to build application: %w", perr)
			}
			if err := b.ensureFreshLineage(ctx, leases); err != nil {
				return nil, fmt.Errorf("failed to build application: %w", err)
			}
			logger.WarnContext(ctx, "failed to load application, starting from the initial state", "err", perr)
		} else {
			record = rec
			if b.hasState {
				logger.WarnContext(ctx, "initial state ignored in favour of the loaded record",
					"app_id", rec.AppID,
					"sequence", rec.Position.Sequence,
				)
			}
		}
	}

	state := b.state
	if record != nil {
		state = record.State
	}

	g, err := b.buildGraph(state)
	if err != nil {
		return nil, err
	}

	appID, partitionKey, parent := b.identity(record)
	snap := runtime.Snapshot{State: state, Next: g.Entrypoint()}
	if record != nil {
		snap.Position = record.Position
		snap.Next = record.Next
		if snap.Next != "" {
			if _, ok := g.Action(snap.Next); !ok {
				return nil, fmt.Errorf("failed to resume %s@%d: %w: %q",
					record.AppID, record.Position.Sequence, domain.ErrUnknownAction, snap.Next)
			}
		}
	}

	opts := []runtime.Option{
		runtime.WithHooks(b.hooks...),
		runtime.WithContractMode(b.mode),
		runtime.WithLogger(logger),
		runtime.WithPartitionKey(partitionKey),
		runtime.WithParent(parent),
	}
	if b.tracker != nil {
		opts = append(opts, runtime.WithTracker(b.tracker))
	}
	if leases != nil {
		opts = append(opts, runtime.WithLeases(leases))
	}

	return &Application{
		rt:     runtime.New(g, appID, snap, opts...),
		leases: leases,
	}, nil
}

func (b *Builder) buildGraph(state domain.State) (*graph.Graph, error) {
	if b.graph != nil {
		if len(b.actions) > 0 || len(b.transitions) > 0 {
			return nil, errors.New("failed to build application: WithGraph cannot be combined with actions or transitions")
		}
		return b.graph, nil
	}

	opts := append([]graph.Option{}, b.graphOpts...)
	if b.mode == ContractStrict {
		fields := append(append([]string{}, b.initialFields...), state.Keys()...)
		opts = append(opts, graph.WithContractCheck(true), graph.WithInitialFields(fields...))
	}
	return graph.New(b.entrypoint, b.actions, b.transitions, opts...)
}

// ensureFreshLineage refuses to restart an application whose requested
// sequence is missing while other records of it exist.
func (b *Builder) ensureFreshLineage(ctx context.Context, leases *lineage.Manager) error {
	if b.load.fork || b.load.sequence == domain.LatestSequence {
		return nil
	}
	_, err := leases.Load(ctx, b.load.appID, domain.LatestSequence)
	switch {
	case err == nil:
		return fmt.Errorf("%s has no record at sequence %d but already has history",
			b.load.appID, b.load.sequence)
	case errors.Is(err, domain.ErrRecordNotFound):
		return nil
	default:
		return &domain.PersistenceError{Op: "load", AppID: b.load.appID, Sequence: domain.LatestSequence, Err: err}
	}
}

// identity resolves the application id, partition key and fork parent.
func (b *Builder) identity(record *domain.Record) (string, string, *domain.Lineage) {
	appID := b.appID
	partitionKey := b.partitionKey

	if record == nil {
		if appID == "" && b.load != nil && !b.load.fork {
			appID = b.load.appID
		}
		if appID == "" {
			appID = uuid.NewString()
		}
		return appID, partitionKey, nil
	}

	if partitionKey == "" {
		partitionKey = record.PartitionKey
	}
	if !b.load.fork && (appID == "" || appID == record.AppID) {
		return record.AppID, partitionKey, record.Parent
	}
	if appID == "" {
		appID = uuid.NewString()
	}
	return appID, partitionKey, &domain.Lineage{AppID: record.AppID, Sequence: record.Position.Sequence}
}
