package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// TrackingStore persists application records keyed by (app id, sequence).
// This allows for durable execution: resume and fork from any recorded step.
//
// Implementations must tolerate concurrent writers on distinct keys; writes
// to the same key are last-writer-wins.
type TrackingStore interface {
	// Save persists a record under (record.AppID, record.Position.Sequence).
	Save(ctx context.Context, record domain.Record) error

	// Load retrieves the record at sequence, or the highest one when sequence
	// is domain.LatestSequence.
	// Returns domain.ErrRecordNotFound if there is no such record.
	Load(ctx context.Context, appID string, sequence int) (*domain.Record, error)
}

// Lister is implemented by stores that can enumerate what they hold.
type Lister interface {
	// ListApplications returns every application id, sorted.
	ListApplications(ctx context.Context) ([]string, error)

	// ListSequences returns the recorded sequences of an application in ascending order.
	ListSequences(ctx context.Context, appID string) ([]int, error)
}

// Deleter is implemented by stores that can drop a whole application history.
type Deleter interface {
	Delete(ctx context.Context, appID string) error
}
