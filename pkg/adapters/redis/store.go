package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.TrackingStore using Redis.
//
// Layout, relative to the prefix:
//
//	<appID>:<seq>   record JSON
//	<appID>:seqs    ZSET of recorded sequences (score = sequence)
//	index           ZSET of application ids (score = expiry, unix seconds)
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Store)

// WithTTL sets the expiration for records.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock overrides the clock used to score the application index.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "arbor:app:",
		ttl:    0, // No expiration by default
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) recordKey(appID string, seq int) string {
	return s.prefix + appID + ":" + strconv.Itoa(seq)
}

func (s *Store) seqKey(appID string) string {
	return s.prefix + appID + ":seqs"
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the record to Redis.
func (s *Store) Save(ctx context.Context, record domain.Record) error {
	if record.AppID == "" {
		return fmt.Errorf("appID cannot be empty")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	seq := record.Position.Sequence

	pipe := s.client.TxPipeline()

	// 1. Save JSON with TTL
	// Use 0 for no expiration if ttl is not set.
	pipe.Set(ctx, s.recordKey(record.AppID, seq), data, s.ttl)

	// 2. Sequence index, refreshed with the newest record
	pipe.ZAdd(ctx, s.seqKey(record.AppID), backend.Z{Score: float64(seq), Member: strconv.Itoa(seq)})
	if s.ttl > 0 {
		pipe.Expire(ctx, s.seqKey(record.AppID), s.ttl)
	}

	// 3. Application index (ZSET)
	// Score = Now + TTL. If TTL = 0, Score = +Inf (approx).
	score := float64(s.now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: record.AppID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves a record from Redis.
func (s *Store) Load(ctx context.Context, appID string, sequence int) (*domain.Record, error) {
	if sequence == domain.LatestSequence {
		top, err := s.client.ZRevRange(ctx, s.seqKey(appID), 0, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read sequence index: %w", err)
		}
		if len(top) == 0 {
			return nil, domain.ErrRecordNotFound
		}
		sequence, err = strconv.Atoi(top[0])
		if err != nil {
			return nil, fmt.Errorf("corrupt sequence index entry %q: %w", top[0], err)
		}
	}

	val, err := s.client.Get(ctx, s.recordKey(appID, sequence)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var record domain.Record
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &record, nil
}

// Delete removes every record of an application.
func (s *Store) Delete(ctx context.Context, appID string) error {
	seqs, err := s.ListSequences(ctx, appID)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for _, seq := range seqs {
		pipe.Del(ctx, s.recordKey(appID, seq))
	}
	pipe.Del(ctx, s.seqKey(appID))
	pipe.ZRem(ctx, s.indexKey(), appID)

	_, err = pipe.Exec(ctx)
	return err
}

// ListApplications returns live applications.
// Expired entries are pruned from the index lazily.
func (s *Store) ListApplications(ctx context.Context) ([]string, error) {
	now := float64(s.now().Unix())

	// ZREMRANGEBYSCORE key -inf (now)
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+strconv.FormatFloat(now, 'f', -1, 64)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired applications: %w", err)
	}

	apps, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}

// ListSequences returns the recorded sequences of appID in ascending order.
func (s *Store) ListSequences(ctx context.Context, appID string) ([]int, error) {
	members, err := s.client.ZRange(ctx, s.seqKey(appID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sequences: %w", err)
	}
	seqs := make([]int, 0, len(members))
	for _, m := range members {
		seq, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("corrupt sequence index entry %q: %w", m, err)
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
