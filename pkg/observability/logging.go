package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/arbor/pkg/domain"
)

// LoggingHooks returns hooks that log step boundaries.
// Steps are logged at Debug, failed steps at Warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		Name: "logging",
		OnPreStep: func(ctx context.Context, e *domain.PreStepEvent) error {
			logger.DebugContext(ctx, "step_start",
				"app_id", e.AppID,
				"sequence", e.Sequence,
				"action", e.Action,
			)
			return nil
		},
		OnPostStep: func(ctx context.Context, e *domain.PostStepEvent) error {
			if e.Err != nil {
				logger.WarnContext(ctx, "step_failed",
					"app_id", e.AppID,
					"sequence", e.Sequence,
					"action", e.Action,
					"duration", e.Duration,
					"err", e.Err,
				)
				return nil
			}
			logger.DebugContext(ctx, "step_end",
				"app_id", e.AppID,
				"sequence", e.Sequence,
				"action", e.Action,
				"next", e.Next,
				"changed", e.Diff.Fields(),
				"duration", e.Duration,
			)
			return nil
		},
	}
}
