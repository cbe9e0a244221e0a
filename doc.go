/*
Package arbor is a deterministic, resumable engine for graphs of stateful actions.

An application is a graph of named actions. Each action declares the state
fields it reads and writes, runs against an immutable State and returns a
result plus the next State. After every step the outgoing transitions of the
executed action are evaluated in declaration order and the first matching
condition selects the next action.

Every committed step can be recorded in a tracking store, so an application
can be resumed from any (application id, sequence) pair, or forked into a new
lineage from that point.

# Usage

	counter := domain.NewAction("count", func(_ context.Context, s domain.State, _ domain.Inputs) (any, domain.State, error) {
		next := s.Increment("counter", 1)
		return next.Map()["counter"], next, nil
	}, domain.Reads("counter"), domain.Writes("counter"))

	flow := dsl.New()
	flow.From("count").If("counter >= 3", "done").Go("count")

	app, err := arbor.NewBuilder().
		WithActions(counter, domain.Result("done", "counter")).
		WithFlow(flow).
		WithEntrypoint("count").
		WithTracker(memory.NewStore()).
		Build(ctx)
	if err != nil {
		log.Fatal(err)
	}

	out, err := app.Run(ctx, arbor.RunOptions{HaltAfter: []string{"done"}})

# Contracts

With ContractStrict (the default) an action only sees the fields it
declares in Reads, and a step that writes outside Writes fails with a
*domain.ContractViolationError. ContractWarn logs the violation and drops the
undeclared writes instead.
*/
package arbor
