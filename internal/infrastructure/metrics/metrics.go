// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ncfpos/internal/domain/sequence"
)

var _ sequence.Metrics = (*Metrics)(nil)

// Metrics holds Prometheus collectors for invoice issuance and HTTP traffic.
type Metrics struct {
	NumbersIssued   *prometheus.CounterVec
	IssueFailures   *prometheus.CounterVec
	IssueDuration   prometheus.Histogram
	CounterOverride *prometheus.CounterVec
	CountersBehind  *prometheus.GaugeVec
	IdempotentHits  prometheus.Counter
	HTTPDuration    *prometheus.HistogramVec
}

// New registers the collectors with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		NumbersIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ncfpos_invoice_numbers_issued_total",
			Help: "Total number of invoice numbers issued",
		}, []string{"invoice_type"}),
		IssueFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ncfpos_invoice_issue_failures_total",
			Help: "Total number of failed invoice number issuances",
		}, []string{"reason"}),
		IssueDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ncfpos_invoice_issue_duration_seconds",
			Help:    "Duration of the counter increment",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		CounterOverride: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ncfpos_invoice_counter_overrides_total",
			Help: "Total number of administrative counter overrides",
		}, []string{"invoice_type"}),
		CountersBehind: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ncfpos_invoice_counters_behind",
			Help: "Counters sitting below the highest invoice number in sales, per store",
		}, []string{"store_id"}),
		IdempotentHits: f.NewCounter(prometheus.CounterOpts{
			Name: "ncfpos_idempotent_replays_total",
			Help: "Total number of responses replayed for a repeated idempotency key",
		}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ncfpos_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// ObserveIssued implements sequence.Metrics.
func (m *Metrics) ObserveIssued(invoiceType string, took time.Duration) {
	m.NumbersIssued.WithLabelValues(invoiceType).Inc()
	m.IssueDuration.Observe(took.Seconds())
}

// IncIssueFailure implements sequence.Metrics.
func (m *Metrics) IncIssueFailure(reason string) {
	m.IssueFailures.WithLabelValues(reason).Inc()
}

// IncOverride implements sequence.Metrics.
func (m *Metrics) IncOverride(invoiceType string) {
	m.CounterOverride.WithLabelValues(invoiceType).Inc()
}

// RecordReconcile publishes the result of a reconcile run.
func (m *Metrics) RecordReconcile(reports []*sequence.ReconcileReport) {
	for _, r := range reports {
		m.CountersBehind.WithLabelValues(r.StoreID.String()).Set(float64(len(r.Behind)))
	}
}
