package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Predicate decides whether a transition is taken.
type Predicate func(state State, inputs Inputs) (bool, error)

// Condition is a named predicate guarding a transition.
// The zero value is the default condition: always true.
type Condition struct {
	// Name identifies the condition in logs, errors and persisted graphs.
	Name string
	// Keys lists the state fields the predicate reads.
	Keys []string

	predicate Predicate
}

// Default is the always-true fallback condition.
var Default = Condition{Name: "default"}

// IsDefault reports whether the condition is the unconditional fallback.
func (c Condition) IsDefault() bool {
	return c.predicate == nil
}

// String returns the condition name.
func (c Condition) String() string {
	if c.Name == "" && c.IsDefault() {
		return "default"
	}
	return c.Name
}

// Evaluate runs the predicate.
func (c Condition) Evaluate(state State, inputs Inputs) (bool, error) {
	if c.predicate == nil {
		return true, nil
	}
	return c.predicate(state, inputs)
}

// MarshalJSON encodes the condition by name.
func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// Func creates a condition from an arbitrary predicate. It panics when fn is
// nil; use Default for an unconditional edge.
func Func(name string, keys []string, fn Predicate) Condition {
	if fn == nil {
		panic(fmt.Sprintf("condition %q: nil predicate", name))
	}
	return Condition{Name: name, Keys: keys, predicate: fn}
}

// When is true if field is present and equal to value.
func When(field string, value any) Condition {
	return Condition{
		Name: fmt.Sprintf("%s=%v", field, value),
		Keys: []string{field},
		predicate: func(s State, _ Inputs) (bool, error) {
			v, ok := s.Get(field)
			if !ok {
				return false, nil
			}
			return valuesEqual(v, value), nil
		},
	}
}

// Exists is true if every given field is present.
func Exists(fields ...string) Condition {
	return Condition{
		Name: "exists(" + strings.Join(fields, ",") + ")",
		Keys: fields,
		predicate: func(s State, _ Inputs) (bool, error) {
			for _, f := range fields {
				if !s.Has(f) {
					return false, nil
				}
			}
			return true, nil
		},
	}
}

// And is true if all conditions are true. Evaluation stops at the first false.
func And(conds ...Condition) Condition {
	return combine("and", conds, func(results func(i int) (bool, error)) (bool, error) {
		for i := range conds {
			ok, err := results(i)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// Or is true if any condition is true. Evaluation stops at the first true.
func Or(conds ...Condition) Condition {
	return combine("or", conds, func(results func(i int) (bool, error)) (bool, error) {
		for i := range conds {
			ok, err := results(i)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	})
}

// Not negates a condition.
func Not(c Condition) Condition {
	return Condition{
		Name: "!" + c.String(),
		Keys: c.Keys,
		predicate: func(s State, in Inputs) (bool, error) {
			ok, err := c.Evaluate(s, in)
			return !ok, err
		},
	}
}

func combine(op string, conds []Condition, fold func(func(int) (bool, error)) (bool, error)) Condition {
	names := make([]string, len(conds))
	var keys []string
	for i, c := range conds {
		names[i] = c.String()
		keys = append(keys, c.Keys...)
	}
	return Condition{
		Name: op + "(" + strings.Join(names, ", ") + ")",
		Keys: keys,
		predicate: func(s State, in Inputs) (bool, error) {
			return fold(func(i int) (bool, error) { return conds[i].Evaluate(s, in) })
		},
	}
}
