// Package graph holds the validated, immutable transition graph of an application.
package graph

import (
	"fmt"
	"slices"

	"github.com/aretw0/arbor/pkg/domain"
)

// Option configures graph validation.
type Option func(*options)

type options struct {
	exhaustive    map[string]bool
	contracts     bool
	initialFields []string
}

// Exhaustive marks sources whose explicit conditions are known to cover every
// state, so they do not need a default edge.
func Exhaustive(sources ...string) Option {
	return func(o *options) {
		for _, s := range sources {
			o.exhaustive[s] = true
		}
	}
}

// WithContractCheck enables the read/write aliasing check: every field an
// action reads must be written by some action or be declared as initial.
func WithContractCheck(enabled bool) Option {
	return func(o *options) {
		o.contracts = enabled
	}
}

// WithInitialFields declares fields that are present before the first step.
func WithInitialFields(fields ...string) Option {
	return func(o *options) {
		o.initialFields = append(o.initialFields, fields...)
	}
}

// Graph is a validated set of actions and ordered transitions.
// It holds no per-execution state and is safe for concurrent use.
type Graph struct {
	entrypoint  string
	order       []string
	actions     map[string]domain.Action
	transitions map[string][]domain.Transition
	exhaustive  map[string]bool
}

// New validates the actions and transitions and freezes them into a Graph.
// Every problem found is reported in a single *domain.GraphValidationError.
func New(entrypoint string, actions []domain.Action, transitions []domain.Transition, opts ...Option) (*Graph, error) {
	o := &options{exhaustive: make(map[string]bool)}
	for _, opt := range opts {
		opt(o)
	}

	g := &Graph{
		entrypoint:  entrypoint,
		actions:     make(map[string]domain.Action, len(actions)),
		transitions: make(map[string][]domain.Transition),
		exhaustive:  o.exhaustive,
	}
	var problems []domain.GraphProblem

	for _, a := range actions {
		if a == nil {
			problems = append(problems, domain.GraphProblem{Reason: "nil action"})
			continue
		}
		name := a.Name()
		if name == "" {
			problems = append(problems, domain.GraphProblem{Reason: "action with empty name"})
			continue
		}
		if _, dup := g.actions[name]; dup {
			problems = append(problems, domain.GraphProblem{Action: name, Reason: "declared more than once"})
			continue
		}
		g.actions[name] = a
		g.order = append(g.order, name)
	}

	switch {
	case entrypoint == "":
		problems = append(problems, domain.GraphProblem{Reason: "no entrypoint"})
	case g.actions[entrypoint] == nil:
		problems = append(problems, domain.GraphProblem{Action: entrypoint, Reason: "entrypoint is not a declared action"})
	}

	for _, t := range transitions {
		ok := true
		if g.actions[t.From] == nil {
			problems = append(problems, domain.GraphProblem{Transition: t.String(), Reason: fmt.Sprintf("unknown source %q", t.From)})
			ok = false
		}
		if g.actions[t.To] == nil {
			problems = append(problems, domain.GraphProblem{Transition: t.String(), Reason: fmt.Sprintf("unknown target %q", t.To)})
			ok = false
		}
		if ok {
			g.transitions[t.From] = append(g.transitions[t.From], t)
		}
	}

	for source := range o.exhaustive {
		if g.actions[source] == nil {
			problems = append(problems, domain.GraphProblem{Action: source, Reason: "marked exhaustive but not declared"})
		}
	}

	for _, name := range g.order {
		problems = append(problems, g.checkConditions(name)...)
	}
	if len(problems) == 0 {
		problems = append(problems, g.checkReachable()...)
	}
	if o.contracts {
		problems = append(problems, g.checkContracts(o.initialFields)...)
	}

	if len(problems) > 0 {
		return nil, &domain.GraphValidationError{Problems: problems}
	}
	return g, nil
}

func (g *Graph) checkConditions(source string) []domain.GraphProblem {
	edges := g.transitions[source]
	if len(edges) == 0 {
		return nil
	}
	var problems []domain.GraphProblem
	hasDefault := false
	for i, t := range edges {
		if !t.Condition.IsDefault() {
			continue
		}
		hasDefault = true
		if i != len(edges)-1 {
			problems = append(problems, domain.GraphProblem{
				Transition: t.String(),
				Reason:     fmt.Sprintf("default condition shadows %d later transition(s)", len(edges)-1-i),
			})
		}
	}
	if !hasDefault && !g.exhaustive[source] {
		problems = append(problems, domain.GraphProblem{
			Action: source,
			Reason: "no default transition and conditions are not marked exhaustive",
		})
	}
	return problems
}

func (g *Graph) checkReachable() []domain.GraphProblem {
	seen := map[string]bool{g.entrypoint: true}
	queue := []string{g.entrypoint}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, t := range g.transitions[current] {
			if !seen[t.To] {
				seen[t.To] = true
				queue = append(queue, t.To)
			}
		}
	}
	var problems []domain.GraphProblem
	for _, name := range g.order {
		if !seen[name] {
			problems = append(problems, domain.GraphProblem{Action: name, Reason: "unreachable from entrypoint " + g.entrypoint})
		}
	}
	return problems
}

func (g *Graph) checkContracts(initial []string) []domain.GraphProblem {
	produced := make(map[string]bool, len(initial))
	for _, f := range initial {
		produced[f] = true
	}
	for _, name := range g.order {
		for _, f := range g.actions[name].Contract().Writes {
			produced[f] = true
		}
	}

	var problems []domain.GraphProblem
	for _, name := range g.order {
		var orphans []string
		for _, f := range g.actions[name].Contract().Reads {
			if !produced[f] {
				orphans = append(orphans, f)
			}
		}
		if len(orphans) > 0 {
			problems = append(problems, domain.GraphProblem{
				Action: name,
				Reason: fmt.Sprintf("reads %v which no action writes and which are not initial fields", orphans),
			})
		}
	}
	return problems
}

// Entrypoint returns the action a fresh application starts at.
func (g *Graph) Entrypoint() string { return g.entrypoint }

// Action returns the named action.
func (g *Graph) Action(name string) (domain.Action, bool) {
	a, ok := g.actions[name]
	return a, ok
}

// Actions returns the actions in declaration order.
func (g *Graph) Actions() []domain.Action {
	out := make([]domain.Action, len(g.order))
	for i, name := range g.order {
		out[i] = g.actions[name]
	}
	return out
}

// Transitions returns the outgoing transitions of from, in evaluation order.
func (g *Graph) Transitions(from string) []domain.Transition {
	return slices.Clone(g.transitions[from])
}

// AllTransitions returns every transition grouped by source in declaration order.
func (g *Graph) AllTransitions() []domain.Transition {
	var out []domain.Transition
	for _, name := range g.order {
		out = append(out, g.transitions[name]...)
	}
	return out
}

// IsTerminal reports whether name has no outgoing transitions.
func (g *Graph) IsTerminal(name string) bool {
	return len(g.transitions[name]) == 0
}

// IsExhaustive reports whether source was marked exhaustive.
func (g *Graph) IsExhaustive(source string) bool {
	return g.exhaustive[source]
}

// Next picks the action that follows from. Conditions are evaluated in
// declaration order, each at most once, and the first true one wins.
// Terminal actions yield "". When nothing matches, a *domain.TransitionError
// is returned.
func (g *Graph) Next(from string, state domain.State, inputs domain.Inputs) (string, error) {
	if _, ok := g.actions[from]; !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownAction, from)
	}
	edges := g.transitions[from]
	if len(edges) == 0 {
		return "", nil
	}
	for _, t := range edges {
		ok, err := t.Condition.Evaluate(state, inputs)
		if err != nil {
			return "", &domain.TransitionError{From: from, Condition: t.Condition.String(), Err: err}
		}
		if ok {
			return t.To, nil
		}
	}
	return "", &domain.TransitionError{From: from}
}
