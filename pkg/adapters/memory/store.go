package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// Store implements ports.TrackingStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]map[int]domain.Record
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]map[int]domain.Record),
	}
}

// Save persists the record in memory.
func (s *Store) Save(ctx context.Context, record domain.Record) error {
	// Round-trip the state to ensure isolation, similar to serialization
	copied, err := isolate(record.State)
	if err != nil {
		return fmt.Errorf("failed to copy state of %s@%d: %w", record.AppID, record.Position.Sequence, err)
	}
	record.State = copied
	if record.Parent != nil {
		parent := *record.Parent
		record.Parent = &parent
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[record.AppID] == nil {
		s.data[record.AppID] = make(map[int]domain.Record)
	}
	s.data[record.AppID][record.Position.Sequence] = record
	return nil
}

// Load retrieves a record from memory.
func (s *Store) Load(ctx context.Context, appID string, sequence int) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.data[appID]
	if sequence == domain.LatestSequence {
		if len(records) == 0 {
			return nil, domain.ErrRecordNotFound
		}
		for seq := range records {
			if seq > sequence {
				sequence = seq
			}
		}
	}

	record, ok := records[sequence]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	copied, err := isolate(record.State)
	if err != nil {
		return nil, fmt.Errorf("failed to copy state of %s@%d: %w", appID, sequence, err)
	}
	record.State = copied
	if record.Parent != nil {
		parent := *record.Parent
		record.Parent = &parent
	}
	return &record, nil
}

// Delete removes the whole history of an application.
func (s *Store) Delete(ctx context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, appID)
	return nil
}

// ListApplications returns tracked application ids.
func (s *Store) ListApplications(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apps := make([]string, 0, len(s.data))
	for id := range s.data {
		apps = append(apps, id)
	}
	sort.Strings(apps)
	return apps, nil
}

// ListSequences returns the recorded sequences of appID.
func (s *Store) ListSequences(ctx context.Context, appID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seqs := make([]int, 0, len(s.data[appID]))
	for seq := range s.data[appID] {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	return seqs, nil
}

func isolate(state domain.State) (domain.State, error) {
	raw, err := state.MarshalJSON()
	if err != nil {
		return domain.State{}, err
	}
	var out domain.State
	if err := out.UnmarshalJSON(raw); err != nil {
		return domain.State{}, err
	}
	return out, nil
}
