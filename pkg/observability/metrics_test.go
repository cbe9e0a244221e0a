package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	hooks := observability.NewMetrics(reg).Hooks()
	ctx := context.Background()

	require.NoError(t, hooks.OnPostStep(ctx, &domain.PostStepEvent{Action: "a", Next: "b", Duration: time.Millisecond}))
	require.NoError(t, hooks.OnPostStep(ctx, &domain.PostStepEvent{Action: "b", Next: "", Duration: time.Millisecond}))
	require.NoError(t, hooks.OnPostStep(ctx, &domain.PostStepEvent{Action: "b", Err: errors.New("boom")}))

	expected := `
# HELP arbor_steps_total Total number of executed steps by action and outcome (success or error)
# TYPE arbor_steps_total counter
arbor_steps_total{action="a",outcome="success"} 1
arbor_steps_total{action="b",outcome="error"} 1
arbor_steps_total{action="b",outcome="success"} 1
# HELP arbor_transitions_total Total number of resolved transitions by source and target action
# TYPE arbor_transitions_total counter
arbor_transitions_total{from="a",to="b"} 1
# HELP arbor_terminal_reached_total Total number of steps that ended on a terminal action
# TYPE arbor_terminal_reached_total counter
arbor_terminal_reached_total 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"arbor_steps_total", "arbor_transitions_total", "arbor_terminal_reached_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "arbor_step_duration_seconds"))
}

func TestNewHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	require.NoError(t, metrics.Hooks().OnPostStep(context.Background(), &domain.PostStepEvent{Action: "a", Next: "b"}))

	srv := httptest.NewServer(observability.NewHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body.String(), `arbor_transitions_total{from="a",to="b"} 1`)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hooks := observability.LoggingHooks(logger)
	ctx := context.Background()

	base := domain.EventBase{AppID: "app-1", Sequence: 3}
	require.NoError(t, hooks.OnPreStep(ctx, &domain.PreStepEvent{EventBase: base, Action: "a"}))
	require.NoError(t, hooks.OnPostStep(ctx, &domain.PostStepEvent{
		EventBase: base,
		Action:    "a",
		Next:      "b",
		Diff:      domain.StateDiff{Changed: map[string]any{"x": 1}},
	}))
	require.NoError(t, hooks.OnPostStep(ctx, &domain.PostStepEvent{EventBase: base, Action: "a", Err: errors.New("boom")}))

	out := buf.String()
	assert.Contains(t, out, "msg=step_start app_id=app-1 sequence=3 action=a")
	assert.Contains(t, out, "next=b changed=[x]")
	assert.Contains(t, out, "level=WARN msg=step_failed")
	assert.Contains(t, out, "err=boom")
}
