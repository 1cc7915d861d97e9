package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	purchases            *prometheus.CounterVec
	refunds              *prometheus.CounterVec
	reconciliationErrors prometheus.Counter
	notificationFailures *prometheus.CounterVec
	attemptsReconciled   *prometheus.CounterVec
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		purchases: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "purchases_total",
				Help: "Ticket confirmations by result",
			},
			[]string{"result"},
		),
		refunds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refunds_total",
				Help: "Ticket cancellations by result",
			},
			[]string{"result"},
		),
		reconciliationErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "inventory_reconciliation_errors_total",
				Help: "Refunded line items whose tier could not be restored",
			},
		),
		notificationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_failures_total",
				Help: "Notifications that failed to deliver",
			},
			[]string{"channel"},
		),
		attemptsReconciled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "purchase_attempts_reconciled_total",
				Help: "Purchase attempts handled by the reconciler",
			},
			[]string{"outcome"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
	}
}

func (m *Metrics) Purchase(result string) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(result).Inc()
}

func (m *Metrics) Refund(result string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(result).Inc()
}

func (m *Metrics) ReconciliationError() {
	if m == nil {
		return
	}
	m.reconciliationErrors.Inc()
}

func (m *Metrics) NotificationFailure(channel string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(channel).Inc()
}

func (m *Metrics) AttemptReconciled(outcome string) {
	if m == nil {
		return
	}
	m.attemptsReconciled.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HTTPRequest(handler, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(handler, method, status).Inc()
	m.httpDuration.WithLabelValues(handler, method).Observe(seconds)
}
