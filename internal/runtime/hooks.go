package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
)

// runHooks calls required hooks first, then optional ones, each group in
// registration order. The first failing required hook stops dispatch before
// any optional hook sees the event. Failures of optional hooks are logged and
// returned as warnings.
func (r *Runtime) runHooks(ctx context.Context, phase, action string, call func(domain.LifecycleHooks) error) ([]error, error) {
	for _, h := range r.hooks {
		if !h.Required {
			continue
		}
		if err := safeCall(h, call); err != nil {
			return nil, &domain.HookError{Hook: h.Name, Phase: phase, Action: action, Err: err}
		}
	}

	var warnings []error
	for _, h := range r.hooks {
		if h.Required {
			continue
		}
		err := safeCall(h, call)
		if err == nil {
			continue
		}
		r.logger.WarnContext(ctx, "hook failed",
			"hook", h.Name,
			"phase", phase,
			"action", action,
			"err", err,
		)
		warnings = append(warnings, &domain.HookError{Hook: h.Name, Phase: phase, Action: action, Err: err})
	}
	return warnings, nil
}

func safeCall(h domain.LifecycleHooks, call func(domain.LifecycleHooks) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return call(h)
}
