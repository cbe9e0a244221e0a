package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/lineage"
	"github.com/aretw0/arbor/pkg/ports"
)

// ContractMode selects how read/write contract violations are handled.
type ContractMode int

const (
	// ContractStrict fails the step. Undeclared fields are hidden from the action.
	ContractStrict ContractMode = iota
	// ContractWarn logs the violation and drops undeclared writes.
	ContractWarn
)

func (m ContractMode) String() string {
	if m == ContractWarn {
		return "warn"
	}
	return "strict"
}

// Snapshot is the resumable position of an application.
type Snapshot struct {
	State    domain.State
	Position domain.Position
	// Next is the action the following step runs, empty when terminal.
	Next string
}

// Runtime drives one application through its graph.
// Calls are serialized; one step completes before the next one starts.
type Runtime struct {
	graph        *graph.Graph
	appID        string
	partitionKey string
	parent       *domain.Lineage

	hooks   []domain.LifecycleHooks
	tracker ports.TrackingStore
	leases  *lineage.Manager
	mode    ContractMode
	logger  *slog.Logger
	now     func() time.Time

	// stepMu serializes steps; mu guards the snapshot fields below.
	stepMu   sync.Mutex
	mu       sync.Mutex
	state    domain.State
	position domain.Position
	next     string
}

// Option configures the Runtime.
type Option func(*Runtime)

// WithHooks appends lifecycle hooks. Required hooks run before optional ones.
func WithHooks(hooks ...domain.LifecycleHooks) Option {
	return func(r *Runtime) {
		r.hooks = append(r.hooks, hooks...)
	}
}

// WithTracker persists a record after every committed step.
func WithTracker(store ports.TrackingStore) Option {
	return func(r *Runtime) {
		r.tracker = store
	}
}

// WithLeases runs every step under the application's lease.
func WithLeases(m *lineage.Manager) Option {
	return func(r *Runtime) {
		r.leases = m
	}
}

// WithContractMode sets contract enforcement (default ContractStrict).
func WithContractMode(mode ContractMode) Option {
	return func(r *Runtime) {
		r.mode = mode
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithPartitionKey tags persisted records.
func WithPartitionKey(key string) Option {
	return func(r *Runtime) {
		r.partitionKey = key
	}
}

// WithParent records the lineage the application was forked from.
func WithParent(parent *domain.Lineage) Option {
	return func(r *Runtime) {
		r.parent = parent
	}
}

// WithClock overrides the time source used for events and records.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) {
		r.now = now
	}
}

// New creates a runtime positioned at snap.
func New(g *graph.Graph, appID string, snap Snapshot, opts ...Option) *Runtime {
	r := &Runtime{
		graph:    g,
		appID:    appID,
		state:    domain.Unguard(snap.State),
		position: snap.Position,
		next:     snap.Next,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("app_id", appID)
	return r
}

// Graph returns the graph being executed.
func (r *Runtime) Graph() *graph.Graph { return r.graph }

// ID returns the application id.
func (r *Runtime) ID() string { return r.appID }

// PartitionKey returns the partition key written to records.
func (r *Runtime) PartitionKey() string { return r.partitionKey }

// Parent returns the fork origin, nil for a root lineage.
func (r *Runtime) Parent() *domain.Lineage { return r.parent }

// Snapshot returns the current state and position.
func (r *Runtime) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{State: r.state, Position: r.position, Next: r.next}
}

// SetState replaces the current state without running an action.
// The change is not persisted until the next step commits.
func (r *Runtime) SetState(s domain.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = domain.Unguard(s)
}

// Reset points the runtime back at the entrypoint. State and sequence are kept.
func (r *Runtime) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = r.graph.Entrypoint()
}

// withLease runs fn under the application lease when one is configured.
func (r *Runtime) withLease(ctx context.Context, fn func(context.Context) error) error {
	if r.leases == nil {
		return fn(ctx)
	}
	return r.leases.WithLock(ctx, r.appID, fn)
}
