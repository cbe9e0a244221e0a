package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

// Builder manages the graph construction.
type Builder struct {
	sources    map[string]*SourceBuilder
	order      []string
	exhaustive []string
	errs       []error
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		sources: make(map[string]*SourceBuilder),
	}
}

// From returns the builder for the outgoing edges of an action.
// If the source already exists, it returns the existing builder.
func (b *Builder) From(source string) *SourceBuilder {
	if sb, ok := b.sources[source]; ok {
		return sb
	}
	sb := &SourceBuilder{source: source, builder: b}
	b.sources[source] = sb
	b.order = append(b.order, source)
	return sb
}

// Transitions returns every declared transition, grouped by source in the
// order sources were first mentioned.
func (b *Builder) Transitions() []domain.Transition {
	var out []domain.Transition
	for _, name := range b.order {
		out = append(out, b.sources[name].edges...)
	}
	return out
}

// Options returns the graph options implied by the declarations.
func (b *Builder) Options() []graph.Option {
	if len(b.exhaustive) == 0 {
		return nil
	}
	return []graph.Option{graph.Exhaustive(b.exhaustive...)}
}

// Err returns the accumulated declaration errors, such as invalid expressions.
func (b *Builder) Err() error {
	return errors.Join(b.errs...)
}

// Graph compiles the declarations into a validated graph.
func (b *Builder) Graph(entrypoint string, actions []domain.Action, opts ...graph.Option) (*graph.Graph, error) {
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	return graph.New(entrypoint, actions, b.Transitions(), append(b.Options(), opts...)...)
}

// SourceBuilder declares the ordered outgoing edges of one action.
type SourceBuilder struct {
	source  string
	builder *Builder
	edges   []domain.Transition
}

// When adds an edge taken when cond holds.
func (sb *SourceBuilder) When(cond domain.Condition, target string) *SourceBuilder {
	sb.edges = append(sb.edges, domain.Edge(sb.source, target, cond))
	return sb
}

// If adds an edge guarded by an expression condition.
func (sb *SourceBuilder) If(expression, target string) *SourceBuilder {
	cond, err := domain.Expr(expression)
	if err != nil {
		sb.builder.errs = append(sb.builder.errs, fmt.Errorf("%s -> %s: %w", sb.source, target, err))
		return sb
	}
	return sb.When(cond, target)
}

// Go adds the default edge. It should be the last edge of the source.
func (sb *SourceBuilder) Go(target string) *SourceBuilder {
	return sb.When(domain.Default, target)
}

// Exhaustive marks the explicit conditions of this source as covering every state.
func (sb *SourceBuilder) Exhaustive() *SourceBuilder {
	sb.builder.exhaustive = append(sb.builder.exhaustive, sb.source)
	return sb
}

// From is a shortcut back to the parent builder.
func (sb *SourceBuilder) From(source string) *SourceBuilder {
	return sb.builder.From(source)
}
