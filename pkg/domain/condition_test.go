package domain_test

import (
	"errors"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditions(t *testing.T) {
	s := domain.NewState(map[string]any{"status": "ok", "count": int64(3)})
	boom := errors.New("boom")
	failing := domain.Func("failing", nil, func(domain.State, domain.Inputs) (bool, error) { return false, boom })

	tests := []struct {
		name    string
		cond    domain.Condition
		want    bool
		wantErr error
	}{
		{name: "default", cond: domain.Default, want: true},
		{name: "zero value", cond: domain.Condition{}, want: true},
		{name: "when match", cond: domain.When("status", "ok"), want: true},
		{name: "when numeric width", cond: domain.When("count", 3), want: true},
		{name: "when mismatch", cond: domain.When("status", "bad"), want: false},
		{name: "when absent", cond: domain.When("missing", nil), want: false},
		{name: "exists", cond: domain.Exists("status", "count"), want: true},
		{name: "exists partial", cond: domain.Exists("status", "missing"), want: false},
		{name: "not", cond: domain.Not(domain.When("status", "ok")), want: false},
		{name: "and", cond: domain.And(domain.Exists("count"), domain.When("status", "ok")), want: true},
		{name: "and short circuits", cond: domain.And(domain.When("status", "bad"), failing), want: false},
		{name: "or short circuits", cond: domain.Or(domain.When("status", "ok"), failing), want: true},
		{name: "or propagates error", cond: domain.Or(domain.When("status", "bad"), failing), wantErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Evaluate(s, nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCondition_NamesAndKeys(t *testing.T) {
	c := domain.And(domain.When("a", 1), domain.Exists("b"))
	assert.Equal(t, "and(a=1, exists(b))", c.String())
	assert.Equal(t, []string{"a", "b"}, c.Keys)
	assert.False(t, c.IsDefault())
	assert.True(t, domain.Default.IsDefault())
	assert.Equal(t, "default", domain.Condition{}.String())
}

func TestExpr(t *testing.T) {
	s := domain.NewState(map[string]any{
		"count":  int64(4),
		"name":   "Ada",
		"tags":   []any{"x", "y"},
		"nested": map[string]any{"ok": true},
	})

	tests := []struct {
		expr    string
		inputs  domain.Inputs
		want    bool
		wantErr bool
	}{
		{expr: `count >= 3`, want: true},
		{expr: `count > 10`, want: false},
		{expr: `lower(name) == "ada"`, want: true},
		{expr: `length(tags) == 2 && contains(tags, "y")`, want: true},
		{expr: `nested.ok`, want: true},
		{expr: `missing == null`, want: true},
		{expr: `missing`, want: false},
		{expr: `inputs.approved && count == 4`, inputs: domain.Inputs{"approved": true}, want: true},
		{expr: `name`, wantErr: true},
		{expr: `count + 1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			cond, err := domain.Expr(tt.expr)
			require.NoError(t, err)

			got, err := cond.Evaluate(s, tt.inputs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpr_KeysAndSyntax(t *testing.T) {
	cond, err := domain.Expr(`b > 1 && a == "x" && inputs.flag`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, cond.Keys)

	_, err = domain.Expr(`count >=`)
	assert.Error(t, err)
	assert.Panics(t, func() { domain.MustExpr(`(`) })
}

func TestExpr_OnlyReferencedInputsAreConverted(t *testing.T) {
	inputs := domain.Inputs{"ok": true, "db": make(chan int)}

	got, err := domain.MustExpr("inputs.ok").Evaluate(domain.State{}, inputs)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = domain.MustExpr("inputs.absent == null").Evaluate(domain.State{}, inputs)
	require.NoError(t, err)
	assert.True(t, got)

	// Whole-map use still needs every input to be convertible.
	_, err = domain.MustExpr("length(inputs) == 2").Evaluate(domain.State{}, inputs)
	assert.Error(t, err)
}

func TestFunc_RejectsNilPredicate(t *testing.T) {
	assert.Panics(t, func() { domain.Func("nothing", nil, nil) })
}
