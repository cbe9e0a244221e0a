/*
Package dsl provides a fluent builder for declaring the transitions of an arbor graph.

It allows developers to write the edges of each action in evaluation order, mixing typed
conditions and HCL expressions, instead of assembling []domain.Transition by hand.

Example usage:

	b := dsl.New()

	b.From("classify").
		If(`kind == "question"`, "answer").
		When(domain.Exists("error"), "recover").
		Go("fallback")

	b.From("answer").Go("classify")

	g, err := b.Graph("classify", actions)
	// ... pass g to arbor.New().WithGraph(g)
*/
package dsl
