package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Mask replaces the value of every masked field.
const Mask = "***"

type piiMiddleware struct {
	passthrough
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values of fields (at any
// nesting depth) whose name matches one of the patterns. Masking is one-way:
// loaded records contain the mask, not the original value.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.TrackingStore) ports.TrackingStore {
		return &piiMiddleware{passthrough: passthrough{next: next}, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, record domain.Record) error {
	// State is immutable; masking builds a new field table.
	record.State = domain.NewState(maskMap(record.State.Map(), m.patterns))
	return m.next.Save(ctx, record)
}

func (m *piiMiddleware) Load(ctx context.Context, appID string, sequence int) (*domain.Record, error) {
	return m.next.Load(ctx, appID, sequence)
}

// Helpers

func maskMap(m map[string]any, patterns []*regexp.Regexp) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if matchesAny(k, patterns) {
			out[k] = Mask
			continue
		}
		out[k] = maskValue(v, patterns)
	}
	return out
}

func maskValue(v any, patterns []*regexp.Regexp) any {
	switch val := v.(type) {
	case map[string]any:
		return maskMap(val, patterns)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = maskValue(e, patterns)
		}
		return out
	}
	return v
}

func matchesAny(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
