package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunTrackingStoreContract runs a suite of tests to verify that a TrackingStore
// implementation adheres to the defined interface contract. Lister and Deleter
// checks run when the store implements them.
func RunTrackingStoreContract(t *testing.T, store TrackingStore) {
	ctx := context.Background()
	appID := "contract-app-" + time.Now().Format("20060102150405.000000000")

	record := func(id string, seq int, state domain.State) domain.Record {
		return domain.Record{
			AppID:        id,
			PartitionKey: "tenant-1",
			Position:     domain.Position{Action: fmt.Sprintf("step%d", seq), Sequence: seq},
			Next:         fmt.Sprintf("step%d", seq+1),
			State:        state,
			CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		// 1. Create a record with every supported value kind
		state := domain.NewState(map[string]any{
			"foo":    "bar",
			"count":  42,
			"ratio":  0.5,
			"ok":     true,
			"none":   nil,
			"list":   []any{"a", 1},
			"nested": map[string]any{"inner": []any{map[string]any{"x": 1.0}}},
		})
		rec := record(appID, 1, state)
		rec.Parent = &domain.Lineage{AppID: "origin", Sequence: 3}

		// 2. Save
		require.NoError(t, store.Save(ctx, rec), "Save should not return error")

		// 3. Load
		loaded, err := store.Load(ctx, appID, 1)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, rec.AppID, loaded.AppID)
		assert.Equal(t, rec.PartitionKey, loaded.PartitionKey)
		assert.Equal(t, rec.Position, loaded.Position)
		assert.Equal(t, rec.Next, loaded.Next)
		assert.Equal(t, rec.Parent, loaded.Parent)
		assert.True(t, rec.CreatedAt.Equal(loaded.CreatedAt), "created_at %v != %v", rec.CreatedAt, loaded.CreatedAt)
		assert.True(t, state.Equal(loaded.State), "state %s != %s", state, loaded.State)

		count, ok := domain.Get[int](loaded.State, "count")
		assert.True(t, ok)
		assert.Equal(t, 42, count)
	})

	t.Run("Latest", func(t *testing.T) {
		id := appID + "-latest"
		for _, seq := range []int{1, 3, 2} {
			require.NoError(t, store.Save(ctx, record(id, seq, domain.NewState(map[string]any{"seq": seq}))))
		}

		latest, err := store.Load(ctx, id, domain.LatestSequence)
		require.NoError(t, err)
		assert.Equal(t, 3, latest.Position.Sequence)
		assert.Equal(t, 3, domain.GetOr(latest.State, "seq", 0))
	})

	t.Run("Overwrite Same Key", func(t *testing.T) {
		id := appID + "-overwrite"
		require.NoError(t, store.Save(ctx, record(id, 1, domain.NewState(map[string]any{"v": "first"}))))
		require.NoError(t, store.Save(ctx, record(id, 1, domain.NewState(map[string]any{"v": "second"}))))

		loaded, err := store.Load(ctx, id, 1)
		require.NoError(t, err)
		assert.Equal(t, "second", domain.GetOr(loaded.State, "v", ""))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+appID, 1)
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)

		_, err = store.Load(ctx, "non-existent-"+appID, domain.LatestSequence)
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)

		_, err = store.Load(ctx, appID, 99)
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	})

	t.Run("Concurrent Writers", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("%s-concurrent-%d", appID, i)
				assert.NoError(t, store.Save(ctx, record(id, 1, domain.NewState(map[string]any{"i": i}))))
			}(i)
		}
		wg.Wait()

		for i := 0; i < 8; i++ {
			loaded, err := store.Load(ctx, fmt.Sprintf("%s-concurrent-%d", appID, i), 1)
			require.NoError(t, err)
			assert.Equal(t, i, domain.GetOr(loaded.State, "i", -1))
		}
	})

	if lister, ok := store.(Lister); ok {
		t.Run("List", func(t *testing.T) {
			id := appID + "-list"
			for _, seq := range []int{2, 1, 3} {
				require.NoError(t, store.Save(ctx, record(id, seq, domain.State{})))
			}

			apps, err := lister.ListApplications(ctx)
			require.NoError(t, err)
			assert.Contains(t, apps, id)
			assert.Contains(t, apps, appID)

			seqs, err := lister.ListSequences(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, []int{1, 2, 3}, seqs)

			seqs, err = lister.ListSequences(ctx, "non-existent-"+appID)
			require.NoError(t, err)
			assert.Empty(t, seqs)
		})
	}

	if deleter, ok := store.(Deleter); ok {
		t.Run("Delete", func(t *testing.T) {
			id := appID + "-delete"
			require.NoError(t, store.Save(ctx, record(id, 1, domain.State{})))
			require.NoError(t, store.Save(ctx, record(id, 2, domain.State{})))

			require.NoError(t, deleter.Delete(ctx, id), "Delete should not return error")

			_, err := store.Load(ctx, id, domain.LatestSequence)
			assert.ErrorIs(t, err, domain.ErrRecordNotFound, "Load after Delete should return ErrRecordNotFound")

			if lister, ok := store.(Lister); ok {
				apps, err := lister.ListApplications(ctx)
				require.NoError(t, err)
				assert.NotContains(t, apps, id)
			}
		})
	}
}
