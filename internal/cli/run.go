package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// RunOptions configures a CLI run.
type RunOptions struct {
	ConfigPath   string
	AppID        string
	PartitionKey string
	// Resume continues AppID from its latest record.
	Resume bool
	// ForkFrom starts a new lineage from the record ForkFrom@ForkSequence.
	ForkFrom     string
	ForkSequence int
	HaltBefore   []string
	HaltAfter    []string
	// Inputs is a JSON object offered to every step.
	Inputs string
	// MaxSteps overrides runtime.max_steps when positive.
	MaxSteps int
	JSON     bool
}

type stepLine struct {
	AppID    string       `json:"app_id"`
	Sequence int          `json:"sequence"`
	Action   string       `json:"action"`
	Next     string       `json:"next"`
	Result   any          `json:"result,omitempty"`
	State    domain.State `json:"state"`
}

// Execute runs the configured graph and writes one line per committed step.
func Execute(ctx context.Context, opts RunOptions, out io.Writer) error {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.MaxSteps > 0 {
		cfg.Runtime.MaxSteps = opts.MaxSteps
	}

	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return err
	}

	var inputs domain.Inputs
	if opts.Inputs != "" {
		if err := json.Unmarshal([]byte(opts.Inputs), &inputs); err != nil {
			return fmt.Errorf("invalid inputs: %w", err)
		}
	}

	tracker, err := OpenTracker(cfg.Tracker)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracker.Close(); err != nil {
			logger.Warn("failed to close tracker", "err", err)
		}
	}()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer stop()
	}

	b, err := NewBuilder(cfg, DemoRegistry())
	if err != nil {
		return err
	}
	b = b.WithHooks(observability.LoggingHooks(logger), metrics.Hooks()).WithLogger(logger)
	if tracker.Store != nil {
		b = b.WithTracker(tracker.Store)
	}
	if tracker.Locker != nil {
		b = b.WithLocker(tracker.Locker)
	}

	switch {
	case opts.ForkFrom != "":
		b = b.ForkFrom(opts.ForkFrom, opts.ForkSequence).WithIdentifiers(opts.AppID, opts.PartitionKey)
	case opts.Resume:
		if opts.AppID == "" {
			return errors.New("resume requires an application id")
		}
		b = b.WithLoad(opts.AppID, domain.LatestSequence).WithIdentifiers(opts.AppID, opts.PartitionKey)
	default:
		b = b.WithIdentifiers(opts.AppID, opts.PartitionKey)
	}

	app, err := b.Build(ctx)
	if err != nil {
		return err
	}
	logger.Info("application ready", "app_id", app.ID(), "sequence", app.Sequence(), "next", app.NextAction())

	runOpts := arbor.RunOptions{
		HaltBefore: opts.HaltBefore,
		HaltAfter:  opts.HaltAfter,
		Inputs:     inputs,
		MaxSteps:   cfg.Runtime.MaxSteps,
	}
	enc := json.NewEncoder(out)
	for res, err := range app.Iterate(ctx, runOpts) {
		if err != nil {
			return err
		}
		if opts.JSON {
			if err := enc.Encode(stepLine{
				AppID:    app.ID(),
				Sequence: res.Sequence,
				Action:   res.Action,
				Next:     res.Next,
				Result:   res.Result,
				State:    res.State,
			}); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(out, "%d %s -> %q %s\n", res.Sequence, res.Action, res.Next, res.State)
	}

	if !opts.JSON {
		if app.HasNext() {
			fmt.Fprintf(out, "%s halted at %d, next %s\n", app.ID(), app.Sequence(), app.NextAction())
		} else {
			fmt.Fprintf(out, "%s finished at %d\n", app.ID(), app.Sequence())
		}
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           observability.NewHandler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
