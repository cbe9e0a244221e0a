package config

import (
	"errors"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/dsl"
)

// GraphConfig declares a graph over registered actions.
//
//	graph:
//	  entrypoint: count
//	  actions: [count, done]
//	  transitions:
//	    - {from: count, to: done, when: "counter >= 3"}
//	    - {from: count, to: count}
//	  initial_state:
//	    counter: 0
type GraphConfig struct {
	Entrypoint   string             `yaml:"entrypoint"`
	Actions      []string           `yaml:"actions"`
	Transitions  []TransitionConfig `yaml:"transitions"`
	Exhaustive   []string           `yaml:"exhaustive"`
	InitialState map[string]any     `yaml:"initial_state"`
}

// TransitionConfig is one edge. An empty When is the default edge.
type TransitionConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	When string `yaml:"when"`
}

// IsZero reports whether no graph was configured.
func (g GraphConfig) IsZero() bool {
	return g.Entrypoint == "" && len(g.Actions) == 0 && len(g.Transitions) == 0
}

// Validate checks the declaration shape. Graph semantics are checked when
// the graph is built.
func (g GraphConfig) Validate() error {
	if g.IsZero() {
		return nil
	}
	var errs []error
	if g.Entrypoint == "" {
		errs = append(errs, errors.New("graph.entrypoint is required"))
	}
	for i, t := range g.Transitions {
		if t.From == "" || t.To == "" {
			errs = append(errs, fmt.Errorf("graph.transitions[%d]: from and to are required", i))
		}
	}
	return errors.Join(errs...)
}

// Flow compiles the transitions, keeping their declaration order.
func (g GraphConfig) Flow() *dsl.Builder {
	flow := dsl.New()
	for _, t := range g.Transitions {
		if t.When == "" {
			flow.From(t.From).Go(t.To)
			continue
		}
		flow.From(t.From).If(t.When, t.To)
	}
	for _, source := range g.Exhaustive {
		flow.From(source).Exhaustive()
	}
	return flow
}

// State returns the declared initial state.
func (g GraphConfig) State() domain.State {
	return domain.NewState(g.InitialState)
}
