package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/pkg/lineage"
)

func openLineage(cfg *config.Config) (*lineage.Manager, *Tracker, error) {
	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	tracker, err := OpenTracker(cfg.Tracker)
	if err != nil {
		return nil, nil, err
	}
	if tracker.Store == nil {
		return nil, nil, fmt.Errorf("tracker %q keeps no records: %w", cfg.Tracker.Kind, lineage.ErrUnsupported)
	}
	return lineage.NewManager(tracker.Store, lineage.WithLogger(logger)), tracker, nil
}

// History prints the recorded steps of appID.
func History(ctx context.Context, cfg *config.Config, appID string, asJSON bool, out io.Writer) error {
	m, tracker, err := openLineage(cfg)
	if err != nil {
		return err
	}
	defer tracker.Close()

	records, err := m.History(ctx, appID)
	if err != nil {
		return err
	}
	if asJSON {
		return json.NewEncoder(out).Encode(records)
	}
	for _, r := range records {
		line := fmt.Sprintf("%d %s -> %q %s", r.Position.Sequence, r.Position.Action, r.Next, r.State)
		if r.Parent != nil {
			line += fmt.Sprintf(" (fork of %s@%d)", r.Parent.AppID, r.Parent.Sequence)
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

// ListApplications prints every recorded application id.
func ListApplications(ctx context.Context, cfg *config.Config, out io.Writer) error {
	m, tracker, err := openLineage(cfg)
	if err != nil {
		return err
	}
	defer tracker.Close()

	ids, err := m.Applications(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

// DeleteApplication removes every record of appID.
func DeleteApplication(ctx context.Context, cfg *config.Config, appID string) error {
	m, tracker, err := openLineage(cfg)
	if err != nil {
		return err
	}
	defer tracker.Close()
	return m.Delete(ctx, appID)
}

// Validate builds the configured graph without running it.
func Validate(ctx context.Context, cfg *config.Config, out io.Writer) error {
	b, err := NewBuilder(cfg, DemoRegistry())
	if err != nil {
		return err
	}
	app, err := b.Build(ctx)
	if err != nil {
		return err
	}
	g := app.Graph()
	fmt.Fprintf(out, "graph ok: %d actions, %d transitions, entrypoint %s\n",
		len(g.Actions()), len(g.AllTransitions()), g.Entrypoint())
	return nil
}
