package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the Prometheus collectors fed by the runtime hooks.
type Metrics struct {
	steps       *prometheus.CounterVec
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	terminal    prometheus.Counter
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		// StepsTotal tracks executed steps by action and outcome (success/error).
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_steps_total",
			Help: "Total number of executed steps by action and outcome (success or error)",
		}, []string{"action", "outcome"}),

		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "arbor_transitions_total",
			Help: "Total number of resolved transitions by source and target action",
		}, []string{"from", "to"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbor_step_duration_seconds",
			Help:    "Duration of action execution by action",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"action"}),

		terminal: factory.NewCounter(prometheus.CounterOpts{
			Name: "arbor_terminal_reached_total",
			Help: "Total number of steps that ended on a terminal action",
		}),
	}
}

// Hooks returns lifecycle hooks recording into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		Name: "metrics",
		OnPostStep: func(_ context.Context, e *domain.PostStepEvent) error {
			m.duration.WithLabelValues(e.Action).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.steps.WithLabelValues(e.Action, OutcomeError).Inc()
				return nil
			}
			m.steps.WithLabelValues(e.Action, OutcomeSuccess).Inc()
			if e.Next == "" {
				m.terminal.Inc()
				return nil
			}
			m.transitions.WithLabelValues(e.Action, e.Next).Inc()
			return nil
		},
	}
}

// NewHandler exposes the gathered metrics on /metrics and a liveness probe on /healthz.
func NewHandler(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
