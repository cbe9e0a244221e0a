package domain

import "sort"

// StateDiff represents the changes between two states.
// It is designed to be serialized to JSON for hooks and audit logs.
type StateDiff struct {
	// Changed contains added or modified fields with their new values.
	Changed map[string]any `json:"changed,omitempty"`

	// Deleted lists fields present before and absent after.
	Deleted []string `json:"deleted,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// Read guards are ignored: every stored field takes part.
func Diff(oldState, newState State) StateDiff {
	diff := StateDiff{}

	for k, newVal := range newState.fields {
		oldVal, exists := oldState.fields[k]
		if !exists || !valuesEqual(oldVal, newVal) {
			if diff.Changed == nil {
				diff.Changed = make(map[string]any)
			}
			diff.Changed[k] = newVal
		}
	}

	for k := range oldState.fields {
		if _, exists := newState.fields[k]; !exists {
			diff.Deleted = append(diff.Deleted, k)
		}
	}
	sort.Strings(diff.Deleted)

	return diff
}

// Fields returns every touched field name, sorted.
func (d StateDiff) Fields() []string {
	out := make([]string, 0, len(d.Changed)+len(d.Deleted))
	for k := range d.Changed {
		out = append(out, k)
	}
	out = append(out, d.Deleted...)
	sort.Strings(out)
	return out
}

// IsEmpty checks if the diff contains any actionable changes.
func (d StateDiff) IsEmpty() bool {
	return len(d.Changed) == 0 && len(d.Deleted) == 0
}

// Apply writes the diff onto base, keeping only the fields allowed by keep
// (all fields when keep is nil).
func (d StateDiff) Apply(base State, keep func(field string) bool) State {
	updates := make(map[string]any, len(d.Changed))
	for k, v := range d.Changed {
		if keep == nil || keep(k) {
			updates[k] = v
		}
	}
	var deletes []string
	for _, k := range d.Deleted {
		if keep == nil || keep(k) {
			deletes = append(deletes, k)
		}
	}
	next := base
	if len(updates) > 0 {
		next = next.Update(updates)
	}
	if len(deletes) > 0 {
		next = next.Delete(deletes...)
	}
	return next
}
