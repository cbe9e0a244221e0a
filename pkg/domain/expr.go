package domain

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// InputsVariable is the root name under which expressions see invocation inputs.
const InputsVariable = "inputs"

var exprFunctions = map[string]function.Function{
	"length":   stdlib.LengthFunc,
	"strlen":   stdlib.StrlenFunc,
	"contains": stdlib.ContainsFunc,
	"lower":    stdlib.LowerFunc,
	"upper":    stdlib.UpperFunc,
	"max":      stdlib.MaxFunc,
	"min":      stdlib.MinFunc,
	"coalesce": stdlib.CoalesceFunc,
}

// Expr compiles an HCL expression into a condition. State fields are exposed
// as top-level variables and inputs under "inputs"; absent fields and inputs
// are null, e.g. `count >= 3 && inputs.approved`.
// The expression must evaluate to a bool.
func Expr(expression string) (Condition, error) {
	parsed, diags := hclsyntax.ParseExpression([]byte(expression), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return Condition{}, fmt.Errorf("invalid condition %q: %s", expression, diags.Error())
	}

	roots := make(map[string]struct{})
	var inputNames []string
	// allInputs is set when the expression uses inputs as a whole value,
	// e.g. length(inputs) or inputs["name"].
	allInputs := false
	for _, traversal := range parsed.Variables() {
		roots[traversal.RootName()] = struct{}{}
		if traversal.RootName() != InputsVariable {
			continue
		}
		if len(traversal) > 1 {
			if attr, ok := traversal[1].(hcl.TraverseAttr); ok {
				inputNames = append(inputNames, attr.Name)
				continue
			}
		}
		allInputs = true
	}
	var keys []string
	for name := range roots {
		if name != InputsVariable {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	_, usesInputs := roots[InputsVariable]

	return Condition{
		Name: expression,
		Keys: keys,
		predicate: func(s State, in Inputs) (bool, error) {
			vars := make(map[string]cty.Value, len(keys)+1)
			for _, k := range keys {
				v, ok := s.Get(k)
				if !ok {
					vars[k] = cty.NullVal(cty.DynamicPseudoType)
					continue
				}
				cv, err := toCty(v)
				if err != nil {
					return false, fmt.Errorf("field %s: %w", k, err)
				}
				vars[k] = cv
			}
			if usesInputs {
				// Only referenced inputs are converted; missing ones read as null.
				m := make(map[string]any, len(inputNames))
				if allInputs {
					for k, v := range in {
						m[k] = v
					}
				}
				for _, name := range inputNames {
					m[name] = in[name]
				}
				cv, err := toCty(m)
				if err != nil {
					return false, fmt.Errorf("inputs: %w", err)
				}
				vars[InputsVariable] = cv
			}

			val, diags := parsed.Value(&hcl.EvalContext{Variables: vars, Functions: exprFunctions})
			if diags.HasErrors() {
				return false, fmt.Errorf("condition %q: %s", expression, diags.Error())
			}
			if val.IsNull() {
				return false, nil
			}
			b, err := convert.Convert(val, cty.Bool)
			if err != nil {
				return false, fmt.Errorf("condition %q must be bool, got %s", expression, val.Type().FriendlyName())
			}
			return b.True(), nil
		},
	}, nil
}

// MustExpr is Expr that panics on a syntax error. Intended for graph
// definitions in code.
func MustExpr(expression string) Condition {
	c, err := Expr(expression)
	if err != nil {
		panic(err)
	}
	return c
}

// toCty converts a state value into the cty value model. Anything that is not
// a scalar, []any or map[string]any goes through the canonical encoding first.
func toCty(v any) (cty.Value, error) {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case bool:
		return cty.BoolVal(val), nil
	case string:
		return cty.StringVal(val), nil
	case float64:
		return cty.NumberFloatVal(val), nil
	case float32:
		return cty.NumberFloatVal(float64(val)), nil
	case uint64:
		return cty.NumberUIntVal(val), nil
	case []any:
		if len(val) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(val))
		for i, e := range val {
			ce, err := toCty(e)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = ce
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(val) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(val))
		for k, e := range val {
			ce, err := toCty(e)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = ce
		}
		return cty.ObjectVal(attrs), nil
	}
	if n, ok := asInt64(v); ok {
		return cty.NumberIntVal(n), nil
	}

	raw, err := CanonicalJSON(v)
	if err != nil {
		return cty.NilVal, err
	}
	generic, err := decodeCanonical(raw)
	if err != nil {
		return cty.NilVal, err
	}
	return toCty(generic)
}
