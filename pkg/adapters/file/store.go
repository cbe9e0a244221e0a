package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// Store implements ports.TrackingStore using the local filesystem.
// Each application gets a directory holding one JSON file per sequence:
// <BasePath>/<appID>/<sequence>.json
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".arbor/records".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".arbor", "records")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) appDir(appID string) (string, error) {
	if appID == "" {
		return "", fmt.Errorf("appID cannot be empty")
	}
	if appID == "." || appID == ".." || strings.ContainsAny(appID, `/\`) {
		return "", fmt.Errorf("appID %q is not a valid directory name", appID)
	}
	return filepath.Join(s.BasePath, appID), nil
}

// Save persists the record to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, record domain.Record) error {
	dir, err := s.appDir(record.AppID)
	if err != nil {
		return err
	}
	if record.Position.Sequence < 0 {
		return fmt.Errorf("invalid sequence %d", record.Position.Sequence)
	}

	// Ensure directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure record directory: %w", err)
	}

	seq := strconv.Itoa(record.Position.Sequence)
	destPath := filepath.Join(dir, seq+".json")

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	// 1. Create Temp File
	// Same directory, so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-"+seq+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	// 2. Write Data
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	// 3. Fsync to ensure durability
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}

	// 4. Close File (cannot rename open file on Windows)
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// 5. Atomic Rename
	// On Windows, os.Rename fails if dest exists. We must remove it first.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing record for overwrite: %w", err)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to record: %w", err)
	}
	return nil
}

// Load retrieves a record from its JSON file.
func (s *Store) Load(ctx context.Context, appID string, sequence int) (*domain.Record, error) {
	dir, err := s.appDir(appID)
	if err != nil {
		return nil, err
	}

	if sequence == domain.LatestSequence {
		seqs, err := s.ListSequences(ctx, appID)
		if err != nil {
			return nil, err
		}
		if len(seqs) == 0 {
			return nil, domain.ErrRecordNotFound
		}
		sequence = seqs[len(seqs)-1]
	}

	data, err := os.ReadFile(filepath.Join(dir, strconv.Itoa(sequence)+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var record domain.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s@%d: %w", appID, sequence, err)
	}
	return &record, nil
}

// Delete removes the application directory.
func (s *Store) Delete(ctx context.Context, appID string) error {
	dir, err := s.appDir(appID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete records of %s: %w", appID, err)
	}
	return nil
}

// ListApplications returns every application that has a record directory.
func (s *Store) ListApplications(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}

	apps := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			apps = append(apps, entry.Name())
		}
	}
	sort.Strings(apps)
	return apps, nil
}

// ListSequences returns the recorded sequences of appID in ascending order.
func (s *Store) ListSequences(ctx context.Context, appID string) ([]int, error) {
	dir, err := s.appDir(appID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []int{}, nil
		}
		return nil, fmt.Errorf("failed to list records of %s: %w", appID, err)
	}

	seqs := []int{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	return seqs, nil
}
