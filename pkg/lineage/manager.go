package lineage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// DefaultLeaseTTL bounds how long a distributed lease survives a crashed holder.
const DefaultLeaseTTL = 30 * time.Second

// ErrUnsupported is returned when the store lacks an optional capability.
var ErrUnsupported = errors.New("operation not supported by tracking store")

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates lineage access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store ports.TrackingStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker   ports.DistributedLocker // Optional distributed locker
	leaseTTL time.Duration
	logger   *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLeaseTTL sets the TTL of distributed leases.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.leaseTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new lineage Manager. store may be nil when the manager
// is only used for locking.
func NewManager(store ports.TrackingStore, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		locks:    make(map[string]*lockEntry),
		leaseTTL: DefaultLeaseTTL,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(appID) after unlocking.
func (m *Manager) acquire(appID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[appID]
	if !exists {
		entry = &lockEntry{}
		m.locks[appID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(appID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[appID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, appID)
	}
}

// WithLock executes a function while holding the lease for the application.
func (m *Manager) WithLock(ctx context.Context, appID string, fn func(context.Context) error) error {
	entry := m.acquire(appID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(appID)
	}()

	// Distributed Locking
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, appID, m.leaseTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The caller's ctx may already be done; release on a fresh one.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := unlock(releaseCtx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"app_id", appID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Store returns the underlying tracking store.
func (m *Manager) Store() ports.TrackingStore {
	return m.store
}

// Load retrieves a record of an application under its lease.
func (m *Manager) Load(ctx context.Context, appID string, sequence int) (*domain.Record, error) {
	if m.store == nil {
		return nil, fmt.Errorf("load %s: %w", appID, ErrUnsupported)
	}
	var record *domain.Record
	err := m.WithLock(ctx, appID, func(ctx context.Context) error {
		var err error
		record, err = m.store.Load(ctx, appID, sequence)
		return err
	})
	return record, err
}

// History returns every record of an application in sequence order.
func (m *Manager) History(ctx context.Context, appID string) ([]domain.Record, error) {
	lister, ok := m.store.(ports.Lister)
	if !ok {
		return nil, fmt.Errorf("history of %s: %w", appID, ErrUnsupported)
	}

	var records []domain.Record
	err := m.WithLock(ctx, appID, func(ctx context.Context) error {
		seqs, err := lister.ListSequences(ctx, appID)
		if err != nil {
			return err
		}
		for _, seq := range seqs {
			rec, err := m.store.Load(ctx, appID, seq)
			if errors.Is(err, domain.ErrRecordNotFound) {
				continue // expired between list and load
			}
			if err != nil {
				return err
			}
			records = append(records, *rec)
		}
		return nil
	})
	return records, err
}

// Applications lists the tracked application ids.
func (m *Manager) Applications(ctx context.Context) ([]string, error) {
	lister, ok := m.store.(ports.Lister)
	if !ok {
		return nil, fmt.Errorf("list applications: %w", ErrUnsupported)
	}
	return lister.ListApplications(ctx)
}

// Delete removes the history of an application under its lease.
func (m *Manager) Delete(ctx context.Context, appID string) error {
	deleter, ok := m.store.(ports.Deleter)
	if !ok {
		return fmt.Errorf("delete %s: %w", appID, ErrUnsupported)
	}
	return m.WithLock(ctx, appID, func(ctx context.Context) error {
		return deleter.Delete(ctx, appID)
	})
}
