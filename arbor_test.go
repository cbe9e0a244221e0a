package arbor_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/dsl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterAction() domain.Action {
	return domain.NewAction("count", func(_ context.Context, s domain.State, _ domain.Inputs) (any, domain.State, error) {
		next := s.Increment("counter", 1)
		return next.Map()["counter"], next, nil
	}, domain.Reads("counter"), domain.Writes("counter"))
}

func counterBuilder(store *memory.Store) *arbor.Builder {
	flow := dsl.New()
	flow.From("count").If("counter >= 3", "done").Go("count")

	b := arbor.NewBuilder().
		WithActions(counterAction(), domain.Result("done", "counter")).
		WithFlow(flow).
		WithEntrypoint("count")
	if store != nil {
		b = b.WithTracker(store)
	}
	return b
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestBuilder_ScenarioHaltAfterAndBefore(t *testing.T) {
	build := func() *arbor.Application {
		app, err := arbor.NewBuilder().
			WithActions(
				domain.NewAction("A", func(_ context.Context, s domain.State, _ domain.Inputs) (any, domain.State, error) {
					return "a", s.Set("x", "from A"), nil
				}, domain.Writes("x")),
				domain.NewAction("B", func(_ context.Context, s domain.State, _ domain.Inputs) (any, domain.State, error) {
					x, _ := domain.Get[string](s, "x")
					return "b", s.Set("y", x+" via B"), nil
				}, domain.Reads("x"), domain.Writes("y")),
			).
			WithTransitions(domain.Edge("A", "B", domain.Default)).
			WithEntrypoint("A").
			Build(context.Background())
		require.NoError(t, err)
		return app
	}

	t.Run("Halt After B", func(t *testing.T) {
		out, err := build().Run(context.Background(), arbor.RunOptions{HaltAfter: []string{"B"}})
		require.NoError(t, err)
		assert.Equal(t, "B", out.Action)
		assert.Equal(t, "b", out.Result)
		assert.Equal(t, map[string]any{"x": "from A", "y": "from A via B"}, out.State.Map())
	})

	t.Run("Halt Before B", func(t *testing.T) {
		app := build()
		out, err := app.Run(context.Background(), arbor.RunOptions{HaltBefore: []string{"B"}})
		require.NoError(t, err)
		assert.Equal(t, "A", out.Action)
		assert.Equal(t, map[string]any{"x": "from A"}, out.State.Map())
		assert.Equal(t, "B", app.NextAction())
		assert.True(t, app.HasNext())
	})
}

func TestBuilder_ValidationErrors(t *testing.T) {
	_, err := arbor.NewBuilder().
		WithActions(domain.Noop("A")).
		WithTransitions(domain.Edge("A", "ghost", domain.Default)).
		WithEntrypoint("A").
		Build(context.Background())

	var gerr *domain.GraphValidationError
	require.ErrorAs(t, err, &gerr)
	assert.ErrorContains(t, err, "ghost")

	t.Run("Invalid Expression", func(t *testing.T) {
		flow := dsl.New()
		flow.From("A").If("x >", "A")
		_, err := arbor.NewBuilder().WithActions(domain.Noop("A")).WithFlow(flow).WithEntrypoint("A").Build(context.Background())
		assert.ErrorContains(t, err, "invalid condition")
	})

	t.Run("Load Without Tracker", func(t *testing.T) {
		_, err := counterBuilder(nil).WithLoad("app", domain.LatestSequence).Build(context.Background())
		assert.ErrorContains(t, err, "requires a tracker")
	})
}

func TestBuilder_ContractCheck(t *testing.T) {
	reader := domain.NewAction("read", func(_ context.Context, s domain.State, _ domain.Inputs) (any, domain.State, error) {
		return nil, s, nil
	}, domain.Reads("seed"))

	_, err := arbor.NewBuilder().WithActions(reader).WithEntrypoint("read").Build(context.Background())
	var gerr *domain.GraphValidationError
	require.ErrorAs(t, err, &gerr)
	assert.ErrorContains(t, err, "seed")

	_, err = arbor.NewBuilder().WithActions(reader).WithEntrypoint("read").
		WithState(domain.NewState(map[string]any{"seed": 1})).
		Build(context.Background())
	assert.NoError(t, err)

	_, err = arbor.NewBuilder().WithActions(reader).WithEntrypoint("read").
		WithInitialFields("seed").
		Build(context.Background())
	assert.NoError(t, err)

	_, err = arbor.NewBuilder().WithActions(reader).WithEntrypoint("read").
		WithContractEnforcement(arbor.ContractWarn).
		Build(context.Background())
	assert.NoError(t, err)
}

func TestApplication_ResumeFromTracker(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	app, err := counterBuilder(store).WithIdentifiers("counter-1", "tenant").Build(ctx)
	require.NoError(t, err)
	_, err = app.Run(ctx, arbor.RunOptions{MaxSteps: 2})
	require.NoError(t, err)

	var logs bytes.Buffer
	resumed, err := counterBuilder(store).
		WithLoad("counter-1", domain.LatestSequence).
		WithState(domain.NewState(map[string]any{"counter": 100})).
		WithLogger(bufferLogger(&logs)).
		Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, "counter-1", resumed.ID())
	assert.Equal(t, "tenant", resumed.PartitionKey())
	assert.Equal(t, 2, resumed.Sequence())
	assert.Equal(t, "count", resumed.NextAction())
	assert.Equal(t, int64(2), resumed.State().Map()["counter"])
	assert.Nil(t, resumed.Parent())
	assert.Contains(t, logs.String(), "initial state ignored")

	out, err := resumed.Run(ctx, arbor.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "done", out.Action)
	assert.Equal(t, map[string]any{"counter": int64(3)}, out.Result)

	history, err := resumed.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "done", history[3].Position.Action)
}

func TestApplication_LoadFailureFallsBackToState(t *testing.T) {
	var logs bytes.Buffer
	app, err := counterBuilder(memory.NewStore()).
		WithLoad("missing", domain.LatestSequence).
		WithState(domain.NewState(map[string]any{"counter": 1})).
		WithLogger(bufferLogger(&logs)).
		Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "missing", app.ID())
	assert.Equal(t, 0, app.Sequence())
	assert.Equal(t, "count", app.NextAction())
	assert.Equal(t, 1, app.State().Map()["counter"])
	assert.Contains(t, logs.String(), "failed to load application")
	assert.Contains(t, logs.String(), "record not found")
}

type flakyStore struct {
	*memory.Store
	failLoad bool
}

func (s *flakyStore) Load(ctx context.Context, appID string, sequence int) (*domain.Record, error) {
	if s.failLoad {
		return nil, errors.New("connection reset")
	}
	return s.Store.Load(ctx, appID, sequence)
}

func TestApplication_LoadErrorKeepsHistory(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.NewStore()}

	original, err := counterBuilder(nil).WithTracker(store).WithIdentifiers("orig", "").Build(ctx)
	require.NoError(t, err)
	_, err = original.Run(ctx, arbor.RunOptions{})
	require.NoError(t, err)
	before, err := store.Load(ctx, "orig", 1)
	require.NoError(t, err)

	store.failLoad = true
	_, err = counterBuilder(nil).WithTracker(store).
		WithLoad("orig", domain.LatestSequence).
		WithState(domain.NewState(map[string]any{"counter": 100})).
		Build(ctx)
	require.Error(t, err)
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "load", perr.Op)
	assert.Contains(t, err.Error(), "connection reset")

	store.failLoad = false
	after, err := store.Load(ctx, "orig", 1)
	require.NoError(t, err)
	assert.True(t, before.State.Equal(after.State), "orig@1 changed: %s", after.State)
}

func TestApplication_MissingSequenceOfExistingLineage(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	original, err := counterBuilder(store).WithIdentifiers("orig", "").Build(ctx)
	require.NoError(t, err)
	_, err = original.Run(ctx, arbor.RunOptions{})
	require.NoError(t, err)

	_, err = counterBuilder(store).WithLoad("orig", 9).Build(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has history")

	sequences, err := store.ListSequences(ctx, "orig")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, sequences)
}

func TestApplication_HooksReadAccessors(t *testing.T) {
	var app *arbor.Application
	var seen []int
	app, err := counterBuilder(nil).WithHooks(domain.LifecycleHooks{
		Name: "reader",
		OnPostStep: func(context.Context, *domain.PostStepEvent) error {
			seen = append(seen, app.Sequence())
			return nil
		},
	}).Build(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := app.Step(context.Background(), nil)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("step blocked on a hook calling Sequence")
	}
	assert.Equal(t, []int{0}, seen)
	assert.Equal(t, 1, app.Sequence())
}

func TestApplication_Fork(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	original, err := counterBuilder(store).WithIdentifiers("origin", "").Build(ctx)
	require.NoError(t, err)
	_, err = original.Run(ctx, arbor.RunOptions{})
	require.NoError(t, err)

	fork, err := counterBuilder(store).ForkFrom("origin", 1).WithIdentifiers("branch", "").Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, "branch", fork.ID())
	assert.Equal(t, &domain.Lineage{AppID: "origin", Sequence: 1}, fork.Parent())
	assert.Equal(t, 1, fork.Sequence())

	fork.UpdateState(fork.State().Set("counter", int64(10)))
	out, err := fork.Run(ctx, arbor.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"counter": int64(11)}, out.Result)

	branch, err := store.ListSequences(ctx, "branch")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, branch)

	origin, err := original.History(ctx)
	require.NoError(t, err)
	require.Len(t, origin, 4)
	assert.Equal(t, int64(3), origin[3].State.Map()["counter"])

	t.Run("Generated Id", func(t *testing.T) {
		anon, err := counterBuilder(store).ForkFrom("origin", domain.LatestSequence).Build(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, "origin", anon.ID())
		assert.NotEmpty(t, anon.ID())
		assert.False(t, anon.HasNext())
	})
}

func TestApplication_ResetToEntrypoint(t *testing.T) {
	app, err := counterBuilder(nil).Build(context.Background())
	require.NoError(t, err)

	_, err = app.Run(context.Background(), arbor.RunOptions{})
	require.NoError(t, err)
	assert.False(t, app.HasNext())

	app.ResetToEntrypoint()
	app.UpdateState(domain.State{})
	out, err := app.Run(context.Background(), arbor.RunOptions{HaltAfter: []string{"count"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Result)
	assert.Equal(t, 5, out.Sequence)
}

func TestApplication_BoundDependencies(t *testing.T) {
	type greeter struct{ prefix string }
	greet := domain.NewAction("greet", func(_ context.Context, s domain.State, in domain.Inputs) (any, domain.State, error) {
		g, _ := domain.InputAs[*greeter](in, "greeter")
		name, _ := domain.InputAs[string](in, "name")
		return nil, s.Set("greeting", g.prefix+name), nil
	}, domain.RequireInputs("greeter", "name"), domain.Writes("greeting"))

	app, err := arbor.NewBuilder().
		WithActions(domain.Bind(greet, map[string]any{"greeter": &greeter{prefix: "hello "}})).
		WithEntrypoint("greet").
		Build(context.Background())
	require.NoError(t, err)

	res, err := app.Step(context.Background(), domain.Inputs{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "hello ada", res.State.Map()["greeting"])
}
