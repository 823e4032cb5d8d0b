package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"social-login/internal/sociallogin"
)

// Metrics holds the login-run collectors on a private registry.
type Metrics struct {
	Registry    *prometheus.Registry
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	StepsTotal  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "social_login_runs_total",
				Help: "Social login runs by provider and outcome (ok or error kind).",
			},
			[]string{"provider", "outcome"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "social_login_run_duration_seconds",
				Help:    "Wall time of social login runs, including browser start and close.",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"provider"},
		),
		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "social_login_steps_total",
				Help: "Step transitions reached by social login runs.",
			},
			[]string{"provider", "step"},
		),
	}
	m.Registry.MustRegister(m.RunsTotal, m.RunDuration, m.StepsTotal)
	return m
}

// ObserveStep is suitable as (part of) a sociallogin observer.
func (m *Metrics) ObserveStep(ev sociallogin.Event) {
	m.StepsTotal.WithLabelValues(ev.Provider.String(), string(ev.Step)).Inc()
}

// ObserveRun records the outcome of a finished run.
func (m *Metrics) ObserveRun(provider sociallogin.Provider, err error, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(provider.String(), Outcome(err)).Inc()
	m.RunDuration.WithLabelValues(provider.String()).Observe(elapsed.Seconds())
}

func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := sociallogin.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
