package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"satrunner/internal/runner"
)

const namespace = "satrunner"

// Metrics holds the Run collectors. Each instance owns its registry so tests
// can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	stepFailures *prometheus.CounterVec
	inFlight     prometheus.Gauge
	lastExitCode prometheus.Gauge
	lastFinished *prometheus.GaugeVec
	queueDropped *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Runs by trigger kind and terminal state.",
		}, []string{"trigger", "result"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a Run from trigger to terminal state.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"result"}),
		stepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Failed Runs by the step that failed.",
		}, []string{"step"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Runs currently executing.",
		}),
		lastExitCode: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_exit_code",
			Help:      "Exit code of the most recent Run.",
		}),
		lastFinished: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_finished_timestamp_seconds",
			Help:      "Unix time the most recent Run with this result finished.",
		}, []string{"result"}),
		queueDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_dropped_total",
			Help:      "Triggers that never became a Run, by reason.",
		}, []string{"reason"}),
	}
}

// RunStarted marks a Run in flight. The returned func must be called once
// the Run finishes.
func (m *Metrics) RunStarted() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

func (m *Metrics) ObserveRun(res runner.Result) {
	if m == nil {
		return
	}
	result := string(res.State)
	m.runsTotal.WithLabelValues(string(res.Trigger.Kind), result).Inc()
	m.runDuration.WithLabelValues(result).Observe(res.Duration().Seconds())
	if res.FailedStep != "" {
		m.stepFailures.WithLabelValues(string(res.FailedStep)).Inc()
	}
	m.lastExitCode.Set(float64(res.ExitCode))
	finished := res.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	m.lastFinished.WithLabelValues(result).Set(float64(finished.Unix()))
}

// TriggerDropped counts a trigger rejected before it ran (queue full,
// overlap skip, stale).
func (m *Metrics) TriggerDropped(reason string) {
	if m == nil {
		return
	}
	m.queueDropped.WithLabelValues(reason).Inc()
}
