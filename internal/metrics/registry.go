// Package metrics holds the Prometheus instruments for the billing engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all domain-specific metrics for the application
type Registry struct {
	// Invoice generation
	InvoicesGenerated   prometheus.Counter
	GenerationConflicts prometheus.Counter
	GenerationFailures  prometheus.Counter

	// Scheduler batches
	BatchRuns     prometheus.Counter
	BatchDuration prometheus.Histogram

	// Payment reconciliation
	PaymentsRecorded prometheus.Counter
	PaymentsReversed prometheus.Counter

	// HTTP surface
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewRegistry registers all instruments against reg
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		InvoicesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_invoices_generated_total",
			Help: "Invoices successfully generated.",
		}),
		GenerationConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_generation_conflicts_total",
			Help: "Generation attempts skipped because the period was already billed.",
		}),
		GenerationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_generation_failures_total",
			Help: "Generation attempts that failed with an unexpected error.",
		}),
		BatchRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_batch_runs_total",
			Help: "Recurring billing batch runs.",
		}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "billing_batch_duration_seconds",
			Help:    "Duration of recurring billing batch runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		PaymentsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_payments_recorded_total",
			Help: "Payments recorded against invoices.",
		}),
		PaymentsReversed: factory.NewCounter(prometheus.CounterOpts{
			Name: "billing_payments_reversed_total",
			Help: "Payments reversed (deleted) from invoices.",
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, path pattern and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and path pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}
