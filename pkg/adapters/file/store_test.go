package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	store := file.New(t.TempDir())
	ports.RunTrackingStoreContract(t, store)
}

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.Record{
		AppID:    "app-1",
		Position: domain.Position{Action: "a", Sequence: 7},
		State:    domain.NewState(map[string]any{"x": 1}),
	}))

	data, err := os.ReadFile(filepath.Join(dir, "app-1", "7.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"x": 1`)

	// Stray files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app-1", "notes.txt"), []byte("hi"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app-1", "tmp-8-123.json"), []byte("{"), 0644))
	seqs, err := store.ListSequences(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, []int{7}, seqs)
}

func TestFileStore_RejectsBadIdentifiers(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "..", "a/b", `a\b`} {
		err := store.Save(ctx, domain.Record{AppID: id})
		assert.Error(t, err, "app id %q", id)
	}

	err := store.Save(ctx, domain.Record{AppID: "ok", Position: domain.Position{Sequence: -2}})
	assert.Error(t, err)
}

func TestFileStore_CorruptRecord(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "app"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app", "1.json"), []byte("{not json"), 0644))

	_, err := store.Load(context.Background(), "app", 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRecordNotFound)
}
