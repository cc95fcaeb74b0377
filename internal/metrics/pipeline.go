// Package metrics exposes Prometheus counters for invoice pipeline runs.
// A nil *Pipeline is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Pipeline struct {
	registry *prometheus.Registry

	outcomes   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   prometheus.Gauge
	ledgerRows prometheus.Counter
	fallbacks  *prometheus.CounterVec
}

func NewPipeline() *Pipeline {
	registry := prometheus.NewRegistry()

	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facturas",
			Subsystem: "pipeline",
			Name:      "invoices_total",
			Help:      "Processed invoices by terminal state.",
		},
		[]string{"state"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "facturas",
			Subsystem: "pipeline",
			Name:      "invoice_duration_seconds",
			Help:      "Invoice pipeline duration in seconds by terminal state.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"state"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "facturas",
			Subsystem: "pipeline",
			Name:      "invoices_in_flight",
			Help:      "Invoices currently being processed.",
		},
	)
	ledgerRows := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "facturas",
			Subsystem: "ledger",
			Name:      "rows_appended_total",
			Help:      "Rows appended to the ledger.",
		},
	)
	fallbacks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "facturas",
			Subsystem: "extract",
			Name:      "vision_fallbacks_total",
			Help:      "Vision-only extractions by reason.",
		},
		[]string{"reason"},
	)

	registry.MustRegister(outcomes, duration, inFlight, ledgerRows, fallbacks)

	return &Pipeline{
		registry:   registry,
		outcomes:   outcomes,
		duration:   duration,
		inFlight:   inFlight,
		ledgerRows: ledgerRows,
		fallbacks:  fallbacks,
	}
}

func (m *Pipeline) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Pipeline) StartInvoice() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Pipeline) FinishInvoice(state string, duration time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.outcomes.WithLabelValues(state).Inc()
	m.duration.WithLabelValues(state).Observe(duration.Seconds())
}

func (m *Pipeline) AddLedgerRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ledgerRows.Add(float64(n))
}

func (m *Pipeline) VisionFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}
