package lineage_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/lineage"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLocker counts lock acquisitions and releases.
type recordingLocker struct {
	locks, unlocks atomic.Int32
	err            error
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.locks.Add(1)
	return func(context.Context) error {
		l.unlocks.Add(1)
		return nil
	}, nil
}

// loadOnlyStore hides the optional capabilities of the memory store.
type loadOnlyStore struct{ ports.TrackingStore }

func TestManager_SerializesSameApplication(t *testing.T) {
	manager := lineage.NewManager(nil)
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.WithLock(ctx, "shared", func(context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond) // Simulate IO
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load(), "critical sections must not overlap")
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &recordingLocker{}
	manager := lineage.NewManager(nil, lineage.WithLocker(locker), lineage.WithLeaseTTL(time.Second))

	require.NoError(t, manager.WithLock(context.Background(), "app", func(context.Context) error { return nil }))
	assert.Equal(t, int32(1), locker.locks.Load())
	assert.Equal(t, int32(1), locker.unlocks.Load())

	locker.err = errors.New("redis down")
	called := false
	err := manager.WithLock(context.Background(), "app", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorContains(t, err, "failed to acquire distributed lock")
	assert.False(t, called)
}

func TestManager_History(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for seq := 1; seq <= 3; seq++ {
		require.NoError(t, store.Save(ctx, domain.Record{
			AppID:    "app",
			Position: domain.Position{Action: "step", Sequence: seq},
			State:    domain.NewState(map[string]any{"seq": seq}),
		}))
	}
	manager := lineage.NewManager(store)

	history, err := manager.History(ctx, "app")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, rec := range history {
		assert.Equal(t, i+1, rec.Position.Sequence)
	}

	latest, err := manager.Load(ctx, "app", domain.LatestSequence)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Position.Sequence)

	apps, err := manager.Applications(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, apps)

	require.NoError(t, manager.Delete(ctx, "app"))
	_, err = manager.Load(ctx, "app", domain.LatestSequence)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestManager_UnsupportedCapabilities(t *testing.T) {
	ctx := context.Background()
	manager := lineage.NewManager(loadOnlyStore{memory.NewStore()})

	_, err := manager.History(ctx, "app")
	assert.ErrorIs(t, err, lineage.ErrUnsupported)
	_, err = manager.Applications(ctx)
	assert.ErrorIs(t, err, lineage.ErrUnsupported)
	assert.ErrorIs(t, manager.Delete(ctx, "app"), lineage.ErrUnsupported)

	_, err = lineage.NewManager(nil).Load(ctx, "app", 1)
	assert.ErrorIs(t, err, lineage.ErrUnsupported)
}
