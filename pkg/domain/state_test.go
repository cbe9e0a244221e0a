package domain_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_WritesDoNotMutate(t *testing.T) {
	base := domain.NewState(map[string]any{"count": 1, "tags": []any{"a"}})

	tests := []struct {
		name  string
		apply func(domain.State) domain.State
		check func(t *testing.T, next domain.State)
	}{
		{
			name:  "set",
			apply: func(s domain.State) domain.State { return s.Set("count", 2) },
			check: func(t *testing.T, next domain.State) {
				assert.Equal(t, 2, domain.GetOr(next, "count", 0))
			},
		},
		{
			name:  "update",
			apply: func(s domain.State) domain.State { return s.Update(map[string]any{"count": 5, "name": "x"}) },
			check: func(t *testing.T, next domain.State) {
				assert.Equal(t, []string{"count", "name", "tags"}, next.Keys())
			},
		},
		{
			name:  "append",
			apply: func(s domain.State) domain.State { return s.Append("tags", "b", "c") },
			check: func(t *testing.T, next domain.State) {
				v, _ := next.Get("tags")
				assert.Equal(t, []any{"a", "b", "c"}, v)
			},
		},
		{
			name:  "increment",
			apply: func(s domain.State) domain.State { return s.Increment("count", 10) },
			check: func(t *testing.T, next domain.State) {
				v, _ := next.Get("count")
				assert.Equal(t, int64(11), v)
			},
		},
		{
			name:  "delete",
			apply: func(s domain.State) domain.State { return s.Delete("count", "unknown") },
			check: func(t *testing.T, next domain.State) {
				assert.False(t, next.Has("count"))
				assert.Equal(t, 1, next.Len())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := tt.apply(base)
			tt.check(t, next)

			// The original is untouched
			v, _ := base.Get("count")
			assert.Equal(t, 1, v)
			tags, _ := base.Get("tags")
			assert.Equal(t, []any{"a"}, tags)
		})
	}
}

func TestState_AppendStartsSequence(t *testing.T) {
	s := domain.State{}.Append("log", "first")
	v, ok := s.Get("log")
	require.True(t, ok)
	assert.Equal(t, []any{"first"}, v)

	s = domain.NewState(map[string]any{"log": "scalar"}).Append("log", "second")
	v, _ = s.Get("log")
	assert.Equal(t, []any{"scalar", "second"}, v)

	s = domain.NewState(map[string]any{"log": []string{"x"}}).Append("log", "y")
	v, _ = s.Get("log")
	assert.Equal(t, []any{"x", "y"}, v)
}

func TestState_IncrementFloatAndGarbage(t *testing.T) {
	s := domain.NewState(map[string]any{"f": 1.5, "s": "nope"})
	s = s.Increment("f", 1).Increment("s", 3).Increment("new", 2)

	f, _ := s.Get("f")
	assert.Equal(t, 2.5, f)
	str, _ := s.Get("s")
	assert.Equal(t, int64(3), str)
	n, _ := s.Get("new")
	assert.Equal(t, int64(2), n)
}

func TestState_SubsetAndMerge(t *testing.T) {
	s := domain.NewState(map[string]any{"a": 1, "b": 2, "c": 3})

	sub := s.Subset("a", "c", "missing")
	assert.Equal(t, []string{"a", "c"}, sub.Keys())

	merged := sub.Merge(domain.NewState(map[string]any{"a": 10, "d": 4}))
	assert.Equal(t, map[string]any{"a": 10, "c": 3, "d": 4}, merged.Map())
}

func TestState_EqualIgnoresNumericWidth(t *testing.T) {
	a := domain.NewState(map[string]any{"n": 3, "list": []string{"x"}})
	b := domain.NewState(map[string]any{"n": int64(3), "list": []any{"x"}})
	assert.True(t, a.Equal(b))

	c := b.Set("n", 3.0)
	assert.False(t, a.Equal(c), "integers and floats are distinct values")
}

func TestState_JSONRoundTrip(t *testing.T) {
	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	s := domain.NewState(map[string]any{
		"z":      "last",
		"a":      1,
		"ratio":  2.0,
		"nested": map[string]any{"b": true, "a": nil},
		"point":  point{X: 1, Y: 2},
		"html":   "<b>",
	})

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"a":1,"html":"<b>","nested":{"a":null,"b":true},"point":{"x":1,"y":2},"ratio":2.0,"z":"last"}`,
		string(data))

	var restored domain.State
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.True(t, s.Equal(restored))

	n, _ := restored.Get("a")
	assert.Equal(t, int64(1), n)
	r, _ := restored.Get("ratio")
	assert.Equal(t, 2.0, r)

	again, err := restored.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestState_UnmarshalRejectsNonObject(t *testing.T) {
	var s domain.State
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &s))
}

func TestState_MarshalRejectsUnsupported(t *testing.T) {
	_, err := json.Marshal(domain.NewState(map[string]any{"fn": func() {}}))
	assert.Error(t, err)
}

func TestState_CodecIsLossless(t *testing.T) {
	s := domain.NewState(map[string]any{"u": uint64(math.MaxUint64), "small": uint64(7)})

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"small":7,"u":18446744073709551615}`, string(data))

	var restored domain.State
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.True(t, s.Equal(restored))
	assert.Equal(t, uint64(math.MaxUint64), restored.Map()["u"])
	assert.Equal(t, int64(7), restored.Map()["small"])

	_, err = json.Marshal(domain.NewState(map[string]any{"bad": "\xffa"}))
	assert.ErrorContains(t, err, "UTF-8")
}

func TestState_GuardedDerivedWrites(t *testing.T) {
	s := domain.NewState(map[string]any{"n": 41, "log": []any{"secret"}, "k": "v"})
	guarded, violations := domain.GuardReads(s, nil, true)

	next := guarded.Increment("n", 1).Append("log", "x").Merge(guarded)
	assert.Equal(t, 0, guarded.Subset("k").Len())
	assert.Equal(t, []string{"k", "log", "n"}, violations())

	plain := domain.Unguard(next)
	assert.Equal(t, int64(1), plain.Map()["n"])
	assert.Equal(t, []any{"x"}, plain.Map()["log"])

	data, err := json.Marshal(guarded)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestState_TypedAccess(t *testing.T) {
	type profile struct {
		Name string `mapstructure:"name"`
		Age  int    `mapstructure:"age"`
	}
	s := domain.NewState(map[string]any{
		"count":   int64(7),
		"profile": map[string]any{"name": "ada", "age": int64(36)},
	})

	n, ok := domain.Get[int](s, "count")
	require.True(t, ok)
	assert.Equal(t, 7, n)

	p, ok := domain.Get[profile](s, "profile")
	require.True(t, ok)
	assert.Equal(t, profile{Name: "ada", Age: 36}, p)

	_, ok = domain.Get[string](s, "missing")
	assert.False(t, ok)
	assert.Equal(t, "fallback", domain.GetOr(s, "count", "fallback"))

	var whole struct {
		Count int64 `mapstructure:"count"`
	}
	require.NoError(t, s.Decode(&whole))
	assert.Equal(t, int64(7), whole.Count)
}

func TestGuardReads(t *testing.T) {
	s := domain.NewState(map[string]any{"allowed": 1, "secret": 2})

	t.Run("strict hides undeclared fields", func(t *testing.T) {
		guarded, violations := domain.GuardReads(s, []string{"allowed"}, true)

		_, ok := guarded.Get("secret")
		assert.False(t, ok)
		assert.Equal(t, []string{"allowed"}, guarded.Keys())
		assert.Equal(t, []string{"secret"}, violations())

		// Writes on the guarded view keep every stored field
		next := domain.Unguard(guarded.Set("allowed", 3))
		assert.Equal(t, map[string]any{"allowed": 3, "secret": 2}, next.Map())
	})

	t.Run("lenient records but returns values", func(t *testing.T) {
		guarded, violations := domain.GuardReads(s, nil, false)

		v, ok := guarded.Get("secret")
		assert.True(t, ok)
		assert.Equal(t, 2, v)
		assert.Equal(t, []string{"secret"}, violations())
	})
}
