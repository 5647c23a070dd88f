package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the counters exported on /metrics.
type Metrics struct {
	Registry      *prometheus.Registry
	BackendCalls  *prometheus.CounterVec
	Submissions   *prometheus.CounterVec
	ActiveQuizzes prometheus.Gauge
}

// New registers the quiz-runner collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		BackendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quiz_runner",
			Name:      "backend_requests_total",
			Help:      "Backend REST calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quiz_runner",
			Name:      "submissions_total",
			Help:      "Quiz submissions by trigger (manual, timeout) and outcome.",
		}, []string{"trigger", "outcome"}),
		ActiveQuizzes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "quiz_runner",
			Name:      "active_quizzes",
			Help:      "Quiz machines currently open in this process.",
		}),
	}
	reg.MustRegister(m.BackendCalls, m.Submissions, m.ActiveQuizzes)
	return m
}

// ObserveBackend records one backend call. Safe on a nil receiver.
func (m *Metrics) ObserveBackend(op string, err error) {
	if m == nil {
		return
	}
	m.BackendCalls.WithLabelValues(op, outcome(err)).Inc()
}

// ObserveSubmission records one submit attempt. Safe on a nil receiver.
func (m *Metrics) ObserveSubmission(trigger string, err error) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(trigger, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ActiveInc and ActiveDec track open quiz machines. Safe on a nil receiver.
func (m *Metrics) ActiveInc() {
	if m == nil {
		return
	}
	m.ActiveQuizzes.Inc()
}

func (m *Metrics) ActiveDec() {
	if m == nil {
		return
	}
	m.ActiveQuizzes.Dec()
}
