package cli

import (
	"context"

	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
)

// DemoRegistry holds the actions available to configured graphs.
func DemoRegistry() *registry.Registry {
	count := domain.NewAction("count", func(_ context.Context, s domain.State, in domain.Inputs) (any, domain.State, error) {
		step := 1
		if v, ok := domain.InputAs[int](in, "step"); ok {
			step = v
		}
		next := s.Increment("counter", int64(step))
		return next.Map()["counter"], next, nil
	}, domain.Reads("counter"), domain.Writes("counter"), domain.OptionalInputs("step"))

	remember := domain.NewAction("remember", func(_ context.Context, s domain.State, in domain.Inputs) (any, domain.State, error) {
		note, _ := domain.InputAs[string](in, "note")
		return note, s.Append("notes", note), nil
	}, domain.Reads("notes"), domain.Writes("notes"), domain.RequireInputs("note"))

	return registry.NewRegistry(count, remember, domain.Result("done", "counter"))
}

// DemoGraph counts to five, then stops.
func DemoGraph() config.GraphConfig {
	return config.GraphConfig{
		Entrypoint: "count",
		Actions:    []string{"count", "done"},
		Transitions: []config.TransitionConfig{
			{From: "count", To: "done", When: "counter >= 5"},
			{From: "count", To: "count"},
		},
	}
}
