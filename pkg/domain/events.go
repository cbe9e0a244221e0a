package domain

import (
	"context"
	"time"
)

// Hook phases.
const (
	PhasePreStep  = "pre_step"
	PhasePostStep = "post_step"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	AppID     string    `json:"app_id"`
	Sequence  int       `json:"sequence"` // sequence the step commits on success
}

// PreStepEvent is emitted before an action runs.
type PreStepEvent struct {
	EventBase
	Action string `json:"action"`
	State  State  `json:"state"`
	Inputs Inputs `json:"inputs,omitempty"`
}

// PostStepEvent is emitted after an action ran, successfully or not.
type PostStepEvent struct {
	EventBase
	Action   string        `json:"action"`
	Result   any           `json:"result,omitempty"`
	State    State         `json:"state"`
	Diff     StateDiff     `json:"diff"`
	Next     string        `json:"next,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// LifecycleHooks defines callbacks around every step.
// Hooks run synchronously, required hooks before optional ones and each group
// in registration order. A returned error (or panic) is logged and reported on
// the step result; it only aborts the step when Required is set, and then
// every hook receives a PostStepEvent carrying the error.
type LifecycleHooks struct {
	Name       string
	Required   bool
	OnPreStep  func(context.Context, *PreStepEvent) error
	OnPostStep func(context.Context, *PostStepEvent) error
}
