package middleware

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor/pkg/ports"
)

// Middleware allows wrapping a TrackingStore to add behavior.
type Middleware func(ports.TrackingStore) ports.TrackingStore

// Chain applies middlewares so that the first one is the outermost.
func Chain(store ports.TrackingStore, mws ...Middleware) ports.TrackingStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

// passthrough forwards the optional capabilities to the wrapped store.
type passthrough struct {
	next ports.TrackingStore
}

func (p passthrough) ListApplications(ctx context.Context) ([]string, error) {
	lister, ok := p.next.(ports.Lister)
	if !ok {
		return nil, fmt.Errorf("wrapped store %T cannot list applications", p.next)
	}
	return lister.ListApplications(ctx)
}

func (p passthrough) ListSequences(ctx context.Context, appID string) ([]int, error) {
	lister, ok := p.next.(ports.Lister)
	if !ok {
		return nil, fmt.Errorf("wrapped store %T cannot list sequences", p.next)
	}
	return lister.ListSequences(ctx, appID)
}

func (p passthrough) Delete(ctx context.Context, appID string) error {
	deleter, ok := p.next.(ports.Deleter)
	if !ok {
		return fmt.Errorf("wrapped store %T cannot delete", p.next)
	}
	return deleter.Delete(ctx, appID)
}
