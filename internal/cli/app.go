package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/registry"
)

// NewBuilder prepares a builder for the configured graph. An empty graph
// configuration selects DemoGraph.
func NewBuilder(cfg *config.Config, reg *registry.Registry) (*arbor.Builder, error) {
	graphCfg := cfg.Graph
	if graphCfg.IsZero() {
		graphCfg = DemoGraph()
	}

	actions, err := reg.Actions(graphCfg.Actions...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve actions: %w", err)
	}

	b := arbor.NewBuilder().
		WithActions(actions...).
		WithFlow(graphCfg.Flow()).
		WithEntrypoint(graphCfg.Entrypoint).
		WithContractEnforcement(contractMode(cfg.Runtime.Contract))
	if len(graphCfg.InitialState) > 0 {
		b = b.WithState(graphCfg.State())
	}
	return b, nil
}

func contractMode(s string) arbor.ContractMode {
	if s == "warn" {
		return arbor.ContractWarn
	}
	return arbor.ContractStrict
}

// NewLogger builds the logger described by cfg, writing to stderr.
func NewLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithWriter(os.Stderr, level, cfg.Format == "json"), nil
}

// LoadConfig reads the configuration file (optional) and the environment.
func LoadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}
