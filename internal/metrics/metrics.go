// Package metrics holds the prometheus collectors for lead processing.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// LeadsTotal counts summarized leads by badge.
	LeadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intake",
		Subsystem: "runner",
		Name:      "leads_total",
		Help:      "Leads summarized, labeled by badge.",
	}, []string{"badge"})

	// LeadErrorsTotal counts leads skipped because they could not be summarized.
	LeadErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "intake",
		Subsystem: "runner",
		Name:      "lead_errors_total",
		Help:      "Leads skipped because their input could not be resolved.",
	})

	// PhonesTotal counts collected phone candidates by validity.
	PhonesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intake",
		Subsystem: "runner",
		Name:      "phones_total",
		Help:      "Phone candidates collected, labeled by valid=true|false.",
	}, []string{"valid"})

	// LeadDurationSeconds is the time to summarize one lead, throttle wait excluded.
	LeadDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "intake",
		Subsystem: "runner",
		Name:      "lead_duration_seconds",
		Help:      "Time to resolve and summarize a single lead.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	// JobsInFlight is the number of jobs currently running.
	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "intake",
		Subsystem: "server",
		Name:      "jobs_in_flight",
		Help:      "Jobs accepted and not yet finished.",
	})
)

// Register registers the collectors with the default registry. Safe to call
// more than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			LeadsTotal,
			LeadErrorsTotal,
			PhonesTotal,
			LeadDurationSeconds,
			JobsInFlight,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}
