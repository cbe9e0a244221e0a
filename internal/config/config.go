// Package config loads the arbor CLI configuration.
//
// Priority: defaults, then the YAML file, then ARBOR_* environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/arbor/internal/logging"
)

// Tracker kinds.
const (
	TrackerNone   = "none"
	TrackerMemory = "memory"
	TrackerFile   = "file"
	TrackerRedis  = "redis"
	TrackerSQL    = "sql"
)

// Config is the complete CLI configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" env:"LOG"`
	Tracker TrackerConfig `yaml:"tracker" env:"TRACKER"`
	Runtime RuntimeConfig `yaml:"runtime" env:"RUNTIME"`
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
	// Graph is only read from the file.
	Graph GraphConfig `yaml:"graph" env:"-"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	// debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// text or json
	Format string `yaml:"format" env:"FORMAT"`
}

// TrackerConfig selects and configures the tracking store.
type TrackerConfig struct {
	Kind  string      `yaml:"kind" env:"KIND"`
	File  FileConfig  `yaml:"file" env:"FILE"`
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	SQL   SQLConfig   `yaml:"sql" env:"SQL"`

	// EncryptionKey is a hex encoded 32 byte AES key. Records are encrypted
	// at rest when set.
	EncryptionKey string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
	// MaskFields are regular expressions of state fields masked before saving.
	MaskFields []string `yaml:"mask_fields" env:"MASK_FIELDS"`
}

// FileConfig configures the filesystem tracker.
type FileConfig struct {
	Dir string `yaml:"dir" env:"DIR"`
}

// RedisConfig configures the Redis tracker and lease locker.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"ADDR"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	Prefix   string        `yaml:"prefix" env:"PREFIX"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
	// Lock enables distributed leases on every step.
	Lock bool `yaml:"lock" env:"LOCK"`
}

// SQLConfig configures the GORM tracker.
type SQLConfig struct {
	// sqlite, postgres or mysql
	Dialect string `yaml:"dialect" env:"DIALECT"`
	DSN     string `yaml:"dsn" env:"DSN"`
}

// RuntimeConfig configures execution.
type RuntimeConfig struct {
	// strict or warn
	Contract string `yaml:"contract" env:"CONTRACT"`
	MaxSteps int    `yaml:"max_steps" env:"MAX_STEPS"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr enables the /metrics endpoint when set, e.g. ":9090".
	Addr string `yaml:"addr" env:"ADDR"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracker: TrackerConfig{
			Kind: TrackerFile,
			File: FileConfig{Dir: ".arbor/records"},
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "arbor:app:",
			},
			SQL: SQLConfig{
				Dialect: "sqlite",
				DSN:     ".arbor/arbor.db",
			},
		},
		Runtime: RuntimeConfig{
			Contract: "strict",
			MaxSteps: 1000,
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	switch c.Tracker.Kind {
	case TrackerNone, TrackerMemory:
	case TrackerFile:
		if c.Tracker.File.Dir == "" {
			errs = append(errs, errors.New("tracker.file.dir is required"))
		}
	case TrackerRedis:
		if c.Tracker.Redis.Addr == "" {
			errs = append(errs, errors.New("tracker.redis.addr is required"))
		}
	case TrackerSQL:
		if c.Tracker.SQL.DSN == "" {
			errs = append(errs, errors.New("tracker.sql.dsn is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tracker kind %q", c.Tracker.Kind))
	}

	if c.Tracker.EncryptionKey != "" {
		if _, err := c.Tracker.Key(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Runtime.Contract != "strict" && c.Runtime.Contract != "warn" {
		errs = append(errs, fmt.Errorf("unknown contract mode %q", c.Runtime.Contract))
	}
	if c.Runtime.MaxSteps < 0 {
		errs = append(errs, errors.New("runtime.max_steps must not be negative"))
	}

	if err := c.Graph.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Key decodes the encryption key.
func (t TrackerConfig) Key() ([]byte, error) {
	key, err := hex.DecodeString(t.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("tracker.encryption_key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("tracker.encryption_key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
