package graph_test

import (
	"errors"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actions(names ...string) []domain.Action {
	out := make([]domain.Action, len(names))
	for i, n := range names {
		out[i] = domain.Noop(n)
	}
	return out
}

func problemsOf(t *testing.T, err error) []domain.GraphProblem {
	t.Helper()
	var gve *domain.GraphValidationError
	require.ErrorAs(t, err, &gve)
	return gve.Problems
}

func TestNew_Valid(t *testing.T) {
	g, err := graph.New("a", actions("a", "b", "c"), []domain.Transition{
		domain.Edge("a", "b", domain.When("go", true)),
		domain.Edge("a", "c", domain.Default),
		domain.Edge("b", "c", domain.Default),
	})
	require.NoError(t, err)

	assert.Equal(t, "a", g.Entrypoint())
	assert.Len(t, g.Actions(), 3)
	assert.Equal(t, "b", g.Actions()[1].Name())
	assert.Len(t, g.Transitions("a"), 2)
	assert.True(t, g.IsTerminal("c"))
	assert.False(t, g.IsTerminal("a"))
	assert.Len(t, g.AllTransitions(), 3)

	_, ok := g.Action("missing")
	assert.False(t, ok)
}

func TestNew_Problems(t *testing.T) {
	tests := []struct {
		name        string
		entrypoint  string
		actions     []domain.Action
		transitions []domain.Transition
		opts        []graph.Option
		wantReasons []string
	}{
		{
			name:        "missing entrypoint",
			actions:     actions("a"),
			wantReasons: []string{"no entrypoint"},
		},
		{
			name:        "unknown entrypoint",
			entrypoint:  "zzz",
			actions:     actions("a"),
			wantReasons: []string{"entrypoint is not a declared action"},
		},
		{
			name:        "duplicate action",
			entrypoint:  "a",
			actions:     actions("a", "a"),
			wantReasons: []string{"declared more than once"},
		},
		{
			name:       "unknown target and source",
			entrypoint: "a",
			actions:    actions("a"),
			transitions: []domain.Transition{
				domain.Edge("a", "ghost", domain.Default),
				domain.Edge("phantom", "a", domain.Default),
			},
			wantReasons: []string{`unknown target "ghost"`, `unknown source "phantom"`},
		},
		{
			name:       "unsatisfiable conditions",
			entrypoint: "a",
			actions:    actions("a", "b"),
			transitions: []domain.Transition{
				domain.Edge("a", "b", domain.When("x", 1)),
			},
			wantReasons: []string{"no default transition and conditions are not marked exhaustive"},
		},
		{
			name:       "shadowing default",
			entrypoint: "a",
			actions:    actions("a", "b", "c"),
			transitions: []domain.Transition{
				domain.Edge("a", "b", domain.Default),
				domain.Edge("a", "c", domain.When("x", 1)),
			},
			wantReasons: []string{"default condition shadows 1 later transition(s)"},
		},
		{
			name:        "unreachable action",
			entrypoint:  "a",
			actions:     actions("a", "island"),
			wantReasons: []string{"unreachable from entrypoint a"},
		},
		{
			name:       "read never written",
			entrypoint: "a",
			actions: []domain.Action{
				domain.Result("a", "ghost"),
			},
			opts:        []graph.Option{graph.WithContractCheck(true)},
			wantReasons: []string{"reads [ghost] which no action writes and which are not initial fields"},
		},
		{
			name:        "exhaustive marker on unknown action",
			entrypoint:  "a",
			actions:     actions("a"),
			opts:        []graph.Option{graph.Exhaustive("nope")},
			wantReasons: []string{"marked exhaustive but not declared"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := graph.New(tt.entrypoint, tt.actions, tt.transitions, tt.opts...)
			problems := problemsOf(t, err)

			var reasons []string
			for _, p := range problems {
				reasons = append(reasons, p.Reason)
			}
			assert.ElementsMatch(t, tt.wantReasons, reasons)
		})
	}
}

func TestNew_AggregatesProblems(t *testing.T) {
	_, err := graph.New("", actions("a", "a"), []domain.Transition{
		domain.Edge("a", "ghost", domain.Default),
	})
	problems := problemsOf(t, err)
	assert.Len(t, problems, 3)
	assert.Contains(t, err.Error(), "3 problems")
}

func TestNew_ContractsWithInitialFields(t *testing.T) {
	acts := []domain.Action{
		domain.NewAction("a", nil, domain.Reads("seed"), domain.Writes("x")),
		domain.NewAction("b", nil, domain.Reads("x")),
	}
	edges := []domain.Transition{domain.Edge("a", "b", domain.Default)}

	_, err := graph.New("a", acts, edges, graph.WithContractCheck(true))
	require.Error(t, err)

	_, err = graph.New("a", acts, edges, graph.WithContractCheck(true), graph.WithInitialFields("seed"))
	assert.NoError(t, err)

	_, err = graph.New("a", acts, edges)
	assert.NoError(t, err, "check is off by default")
}

func TestNext(t *testing.T) {
	g, err := graph.New("a", actions("a", "b", "c", "d"), []domain.Transition{
		domain.Edge("a", "b", domain.When("route", "b")),
		domain.Edge("a", "c", domain.When("route", "c")),
		domain.Edge("a", "d", domain.Default),
		domain.Edge("b", "d", domain.When("never", true)),
		domain.Edge("c", "d", domain.Func("boom", nil, func(domain.State, domain.Inputs) (bool, error) {
			return false, errors.New("boom")
		})),
	}, graph.Exhaustive("b", "c"))
	require.NoError(t, err)

	next, err := g.Next("a", domain.NewState(map[string]any{"route": "c"}), nil)
	require.NoError(t, err)
	assert.Equal(t, "c", next)

	next, err = g.Next("a", domain.State{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "d", next)

	next, err = g.Next("d", domain.State{}, nil)
	require.NoError(t, err)
	assert.Empty(t, next, "terminal")

	_, err = g.Next("b", domain.State{}, nil)
	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "b", te.From)
	assert.Empty(t, te.Condition)

	_, err = g.Next("c", domain.State{}, nil)
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "boom", te.Condition)

	_, err = g.Next("zzz", domain.State{}, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownAction)
}

func TestNext_EvaluatesEachConditionOnce(t *testing.T) {
	calls := map[string]int{}
	counting := func(name string, result bool) domain.Condition {
		return domain.Func(name, nil, func(domain.State, domain.Inputs) (bool, error) {
			calls[name]++
			return result, nil
		})
	}
	g, err := graph.New("a", actions("a", "b", "c", "d"), []domain.Transition{
		domain.Edge("a", "b", counting("first", false)),
		domain.Edge("a", "c", counting("second", true)),
		domain.Edge("a", "d", counting("third", true)),
	}, graph.Exhaustive("a"))
	require.NoError(t, err)

	next, err := g.Next("a", domain.State{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "c", next)
	assert.Equal(t, map[string]int{"first": 1, "second": 1}, calls)
}
