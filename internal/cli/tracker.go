package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	redisadapter "github.com/aretw0/arbor/pkg/adapters/redis"
	sqladapter "github.com/aretw0/arbor/pkg/adapters/sql"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
	goredis "github.com/redis/go-redis/v9"
)

// Tracker bundles the configured store, the optional lease locker and the
// resources to release on exit.
type Tracker struct {
	Store   ports.TrackingStore
	Locker  ports.DistributedLocker
	closers []func() error
}

// Close releases the underlying connections.
func (t *Tracker) Close() error {
	var errs []error
	for _, c := range t.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// OpenTracker creates the tracking store selected by cfg. Masking and
// encryption middlewares are applied when configured; masking runs first so
// masked values are what gets encrypted.
func OpenTracker(cfg config.TrackerConfig) (*Tracker, error) {
	t := &Tracker{}

	switch cfg.Kind {
	case config.TrackerNone:
		return t, nil
	case config.TrackerMemory:
		t.Store = memory.NewStore()
	case config.TrackerFile:
		t.Store = file.New(cfg.File.Dir)
	case config.TrackerRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		t.closers = append(t.closers, client.Close)

		opts := []redisadapter.Option{redisadapter.WithPrefix(cfg.Redis.Prefix)}
		if cfg.Redis.TTL > 0 {
			opts = append(opts, redisadapter.WithTTL(cfg.Redis.TTL))
		}
		t.Store = redisadapter.NewFromClient(client, opts...)
		if cfg.Redis.Lock {
			t.Locker = redisadapter.NewLocker(client, cfg.Redis.Prefix)
		}
	case config.TrackerSQL:
		if cfg.SQL.Dialect == sqladapter.DialectSQLite || cfg.SQL.Dialect == "" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQL.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		store, err := sqladapter.Open(cfg.SQL.Dialect, cfg.SQL.DSN)
		if err != nil {
			return nil, err
		}
		t.closers = append(t.closers, store.Close)
		t.Store = store
	default:
		return nil, fmt.Errorf("unknown tracker kind %q", cfg.Kind)
	}

	var mws []middleware.Middleware
	if len(cfg.MaskFields) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.MaskFields))
	}
	if cfg.EncryptionKey != "" {
		key, err := cfg.Key()
		if err != nil {
			_ = t.Close()
			return nil, err
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	if len(mws) > 0 {
		t.Store = middleware.Chain(t.Store, mws...)
	}
	return t, nil
}
