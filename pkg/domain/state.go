package domain

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// State is an immutable snapshot of application fields.
//
// Every write returns a new State. Only the top-level field table is copied on
// write; values that were not touched are shared with the predecessor, so
// callers must treat values read from a State as read-only.
//
// The zero value is an empty State ready to use.
type State struct {
	fields map[string]any
	guard  *readGuard
}

// NewState creates a State holding a copy of the given fields.
func NewState(fields map[string]any) State {
	s := State{fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		s.fields[k] = v
	}
	return s
}

// Get returns the value stored under field. Every method that reads a value
// goes through Get so guarded views record the access.
func (s State) Get(field string) (any, bool) {
	if !s.guard.allow(field) {
		return nil, false
	}
	v, ok := s.fields[field]
	return v, ok
}

// Has reports whether field is present.
func (s State) Has(field string) bool {
	_, ok := s.Get(field)
	return ok
}

// Len returns the number of visible fields.
func (s State) Len() int {
	return len(s.Keys())
}

// Keys returns the visible field names in sorted order.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s.fields))
	for k := range s.fields {
		if s.guard.visible(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Map returns a shallow copy of the visible fields.
func (s State) Map() map[string]any {
	out := make(map[string]any, len(s.fields))
	for k, v := range s.fields {
		if s.guard.visible(k) {
			out[k] = v
		}
	}
	return out
}

// Set returns a new State with field set to value.
func (s State) Set(field string, value any) State {
	next := s.clone(1)
	next.fields[field] = value
	return next
}

// Update returns a new State with every entry of fields written.
func (s State) Update(fields map[string]any) State {
	next := s.clone(len(fields))
	for k, v := range fields {
		next.fields[k] = v
	}
	return next
}

// Append returns a new State where values are appended to the sequence stored
// under field. An absent field starts an empty sequence; a non-sequence value
// becomes the first element of the new sequence.
func (s State) Append(field string, values ...any) State {
	current, ok := s.Get(field)
	var seq []any
	if ok && current != nil {
		seq = toSequence(current)
	}
	grown := make([]any, 0, len(seq)+len(values))
	grown = append(grown, seq...)
	grown = append(grown, values...)
	return s.Set(field, grown)
}

// Increment returns a new State with delta added to the numeric field.
// Absent or non-numeric values are replaced by delta.
func (s State) Increment(field string, delta int64) State {
	current, _ := s.Get(field)
	switch v := current.(type) {
	case float64:
		return s.Set(field, v+float64(delta))
	case float32:
		return s.Set(field, float64(v)+float64(delta))
	}
	if n, ok := asInt64(current); ok {
		return s.Set(field, n+delta)
	}
	return s.Set(field, delta)
}

// Delete returns a new State without the given fields. Unknown fields are ignored.
func (s State) Delete(fields ...string) State {
	next := s.clone(0)
	for _, f := range fields {
		delete(next.fields, f)
	}
	return next
}

// Merge returns a new State with the visible fields of other written over s.
func (s State) Merge(other State) State {
	return s.Update(other.Map())
}

// Subset returns a new State holding only the named fields.
func (s State) Subset(fields ...string) State {
	next := State{fields: make(map[string]any, len(fields)), guard: s.guard}
	for _, f := range fields {
		if v, ok := s.Get(f); ok {
			next.fields[f] = v
		}
	}
	return next
}

// Equal reports whether both states hold the same fields with the same values.
// Values are compared through their canonical encoding, so numeric widths and
// slice element types do not matter.
func (s State) Equal(other State) bool {
	if len(s.fields) != len(other.fields) {
		return false
	}
	for k, v := range s.fields {
		ov, ok := other.fields[k]
		if !ok || !valuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// Decode copies the state fields into out (usually a pointer to a struct with
// mapstructure tags).
func (s State) Decode(out any) error {
	return decodeValue(s.Map(), out)
}

// String renders the state as canonical JSON.
func (s State) String() string {
	data, err := s.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("State(%d fields)", len(s.fields))
	}
	return string(data)
}

func (s State) clone(extra int) State {
	next := State{fields: make(map[string]any, len(s.fields)+extra), guard: s.guard}
	for k, v := range s.fields {
		next.fields[k] = v
	}
	return next
}

// Get returns the value of field converted to T.
// Values restored from a tracker come back as int64, float64, []any and
// map[string]any; they are decoded into T with mapstructure when a plain type
// assertion does not match.
func Get[T any](s State, field string) (T, bool) {
	var zero T
	v, ok := s.Get(field)
	if !ok {
		return zero, false
	}
	if t, ok := v.(T); ok {
		return t, true
	}
	var out T
	if err := decodeValue(v, &out); err != nil {
		return zero, false
	}
	return out, true
}

// GetOr is Get with a fallback for absent or unconvertible fields.
func GetOr[T any](s State, field string, fallback T) T {
	if v, ok := Get[T](s, field); ok {
		return v
	}
	return fallback
}

func decodeValue(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: false,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func toSequence(v any) []any {
	if seq, ok := v.([]any); ok {
		return seq
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		seq := make([]any, rv.Len())
		for i := range seq {
			seq[i] = rv.Index(i).Interface()
		}
		return seq
	}
	return []any{v}
}

func asInt64(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	}
	return 0, false
}

// readGuard tracks field access for read-contract enforcement.
type readGuard struct {
	allowed map[string]struct{}
	strict  bool

	mu     sync.Mutex
	denied map[string]struct{}
}

func (g *readGuard) allow(field string) bool {
	if g == nil {
		return true
	}
	if _, ok := g.allowed[field]; ok {
		return true
	}
	g.mu.Lock()
	g.denied[field] = struct{}{}
	g.mu.Unlock()
	return !g.strict
}

func (g *readGuard) visible(field string) bool {
	if g == nil || !g.strict {
		return true
	}
	_, ok := g.allowed[field]
	return ok
}

func (g *readGuard) violations() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.denied))
	for f := range g.denied {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// GuardReads returns a view of s that records every Get of a field outside
// reads. In strict mode those fields are also hidden. The returned function
// reports the offending field names collected so far.
func GuardReads(s State, reads []string, strict bool) (State, func() []string) {
	g := &readGuard{
		allowed: make(map[string]struct{}, len(reads)),
		strict:  strict,
		denied:  make(map[string]struct{}),
	}
	for _, r := range reads {
		g.allowed[r] = struct{}{}
	}
	return State{fields: s.fields, guard: g}, g.violations
}

// Unguard drops any read guard attached to s.
func Unguard(s State) State {
	return State{fields: s.fields}
}
