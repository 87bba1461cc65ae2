package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch outcomes.
const (
	OutcomeSent     = "sent"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	SchedulerTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reminder_scheduler_ticks_total",
		Help: "Scheduler ticks by result (ok, error, skipped).",
	}, []string{"result"})

	RemindersDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reminders_dispatched_total",
		Help: "Reminder dispatch attempts by outcome.",
	}, []string{"outcome"})

	DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reminder_dispatch_latency_seconds",
		Help:    "Latency of a single push channel call.",
		Buckets: prometheus.DefBuckets,
	})

	RemindersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reminders_failed_total",
		Help: "Reminders that exhausted their retries.",
	})

	RemindersCleaned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reminders_cleaned_total",
		Help: "Expired reminders deleted by the retention policy.",
	})
)

// Recorder is the metrics sink used by the scheduler, dispatcher and retention policy.
type Recorder interface {
	Tick(result string)
	Dispatch(outcome string, seconds float64)
	Exhausted()
	Cleaned(n int64)
}

// Prometheus records into the package-level collectors.
type Prometheus struct{}

func (Prometheus) Tick(result string) {
	SchedulerTicks.WithLabelValues(result).Inc()
}

func (Prometheus) Dispatch(outcome string, seconds float64) {
	RemindersDispatched.WithLabelValues(outcome).Inc()
	DispatchLatency.Observe(seconds)
}

func (Prometheus) Exhausted() {
	RemindersFailed.Inc()
}

func (Prometheus) Cleaned(n int64) {
	if n > 0 {
		RemindersCleaned.Add(float64(n))
	}
}
