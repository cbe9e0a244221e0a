package domain

import (
	"context"
	"slices"
)

// Inputs carries per-invocation values that are not part of State,
// e.g. a user query or a bound database handle.
type Inputs map[string]any

// Get returns the named input.
func (in Inputs) Get(name string) (any, bool) {
	v, ok := in[name]
	return v, ok
}

// InputAs returns the named input converted to T.
func InputAs[T any](in Inputs, name string) (T, bool) {
	var zero T
	v, ok := in[name]
	if !ok {
		return zero, false
	}
	if t, ok := v.(T); ok {
		return t, true
	}
	var out T
	if err := decodeValue(v, &out); err != nil {
		return zero, false
	}
	return out, true
}

// Contract declares which state fields an action may read and write and
// which external inputs it needs.
type Contract struct {
	Reads          []string `json:"reads,omitempty"`
	Writes         []string `json:"writes,omitempty"`
	Inputs         []string `json:"inputs,omitempty"`
	OptionalInputs []string `json:"optional_inputs,omitempty"`
}

// CanRead reports whether field is declared in Reads.
func (c Contract) CanRead(field string) bool {
	return slices.Contains(c.Reads, field)
}

// CanWrite reports whether field is declared in Writes.
func (c Contract) CanWrite(field string) bool {
	return slices.Contains(c.Writes, field)
}

// Accepts reports whether name is a required or optional input.
func (c Contract) Accepts(name string) bool {
	return slices.Contains(c.Inputs, name) || slices.Contains(c.OptionalInputs, name)
}

// MissingInputs returns the required inputs absent from in.
func (c Contract) MissingInputs(in Inputs) []string {
	var missing []string
	for _, name := range c.Inputs {
		if _, ok := in[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Filter keeps only the inputs the contract declares.
func (c Contract) Filter(in Inputs) Inputs {
	out := make(Inputs, len(c.Inputs)+len(c.OptionalInputs))
	for k, v := range in {
		if c.Accepts(k) {
			out[k] = v
		}
	}
	return out
}

// Action is a named unit of work over State.
//
// Run receives the current state and the inputs the action declared; it
// returns an auxiliary result for the caller and the next state. The next
// state must only differ from the given one in the fields listed in Writes.
type Action interface {
	Name() string
	Contract() Contract
	Run(ctx context.Context, state State, inputs Inputs) (any, State, error)
}

// Emitter receives intermediate chunks produced by a streaming action.
type Emitter func(chunk any) error

// StreamingAction is an Action that can deliver intermediate results while it runs.
type StreamingAction interface {
	Action
	Stream(ctx context.Context, state State, inputs Inputs, emit Emitter) (any, State, error)
}

// RunFunc is the body of a plain action.
type RunFunc func(ctx context.Context, state State, inputs Inputs) (any, State, error)

// StreamFunc is the body of a streaming action.
type StreamFunc func(ctx context.Context, state State, inputs Inputs, emit Emitter) (any, State, error)

// ActionOption configures the contract of an action.
type ActionOption func(*Contract)

// Reads declares the state fields an action may read.
func Reads(fields ...string) ActionOption {
	return func(c *Contract) {
		c.Reads = append(c.Reads, fields...)
	}
}

// Writes declares the state fields an action may write.
func Writes(fields ...string) ActionOption {
	return func(c *Contract) {
		c.Writes = append(c.Writes, fields...)
	}
}

// RequireInputs declares inputs that must be supplied on every invocation.
func RequireInputs(names ...string) ActionOption {
	return func(c *Contract) {
		c.Inputs = append(c.Inputs, names...)
	}
}

// OptionalInputs declares inputs the action uses when present.
func OptionalInputs(names ...string) ActionOption {
	return func(c *Contract) {
		c.OptionalInputs = append(c.OptionalInputs, names...)
	}
}

func buildContract(opts []ActionOption) Contract {
	var c Contract
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// FuncAction is a plain action backed by a function.
type FuncAction struct {
	name     string
	contract Contract
	fn       RunFunc
}

// NewAction creates a plain action.
func NewAction(name string, fn RunFunc, opts ...ActionOption) *FuncAction {
	return &FuncAction{name: name, contract: buildContract(opts), fn: fn}
}

func (a *FuncAction) Name() string       { return a.name }
func (a *FuncAction) Contract() Contract { return a.contract }

func (a *FuncAction) Run(ctx context.Context, state State, inputs Inputs) (any, State, error) {
	return a.fn(ctx, state, inputs)
}

// StreamAction is a streaming action backed by a function.
// When run without a consumer its chunks are discarded.
type StreamAction struct {
	name     string
	contract Contract
	fn       StreamFunc
}

// NewStreamingAction creates a streaming action.
func NewStreamingAction(name string, fn StreamFunc, opts ...ActionOption) *StreamAction {
	return &StreamAction{name: name, contract: buildContract(opts), fn: fn}
}

func (a *StreamAction) Name() string       { return a.name }
func (a *StreamAction) Contract() Contract { return a.contract }

func (a *StreamAction) Run(ctx context.Context, state State, inputs Inputs) (any, State, error) {
	return a.fn(ctx, state, inputs, discard)
}

func (a *StreamAction) Stream(ctx context.Context, state State, inputs Inputs, emit Emitter) (any, State, error) {
	if emit == nil {
		emit = discard
	}
	return a.fn(ctx, state, inputs, emit)
}

func discard(any) error { return nil }

// Noop returns an action that does nothing. It is typically used as a
// terminal action.
func Noop(name string) *FuncAction {
	return NewAction(name, func(_ context.Context, s State, _ Inputs) (any, State, error) {
		return nil, s, nil
	})
}

// Result returns an action that reports the named fields as its result
// without writing anything.
func Result(name string, fields ...string) *FuncAction {
	return NewAction(name, func(_ context.Context, s State, _ Inputs) (any, State, error) {
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, ok := s.Get(f); ok {
				out[f] = v
			}
		}
		return out, s, nil
	}, Reads(fields...))
}

// Bind returns an action with fixed dependency values. Bound names are
// removed from the declared inputs and always win over caller inputs.
// Reads and writes are unchanged.
func Bind(action Action, deps map[string]any) Action {
	bound := make(Inputs, len(deps))
	for k, v := range deps {
		bound[k] = v
	}

	contract := action.Contract()
	contract.Inputs = without(contract.Inputs, bound)
	contract.OptionalInputs = without(contract.OptionalInputs, bound)

	base := boundAction{inner: action, deps: bound, contract: contract}
	if s, ok := action.(StreamingAction); ok {
		return &boundStreamingAction{boundAction: base, stream: s}
	}
	return &base
}

type boundAction struct {
	inner    Action
	deps     Inputs
	contract Contract
}

func (b *boundAction) Name() string       { return b.inner.Name() }
func (b *boundAction) Contract() Contract { return b.contract }

// Unwrap returns the action that was bound.
func (b *boundAction) Unwrap() Action { return b.inner }

func (b *boundAction) Run(ctx context.Context, state State, inputs Inputs) (any, State, error) {
	return b.inner.Run(ctx, state, b.merge(inputs))
}

func (b *boundAction) merge(inputs Inputs) Inputs {
	merged := make(Inputs, len(inputs)+len(b.deps))
	for k, v := range inputs {
		merged[k] = v
	}
	for k, v := range b.deps {
		merged[k] = v
	}
	return merged
}

type boundStreamingAction struct {
	boundAction
	stream StreamingAction
}

func (b *boundStreamingAction) Stream(ctx context.Context, state State, inputs Inputs, emit Emitter) (any, State, error) {
	return b.stream.Stream(ctx, state, b.merge(inputs), emit)
}

func without(names []string, drop Inputs) []string {
	var out []string
	for _, n := range names {
		if _, ok := drop[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}
