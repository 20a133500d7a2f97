// Package metrics holds the Prometheus collectors exported by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Estimates       *prometheus.CounterVec
	EstimateSeconds *prometheus.HistogramVec
	GeocodeErrors   prometheus.Counter
	GeocodeSeconds  prometheus.Histogram
	ReferenceRows   *prometheus.GaugeVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Estimates: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "resale_estimates_total",
			Help: "Total number of price estimates by schema version and outcome.",
		}, []string{"version", "status"}),
		EstimateSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resale_estimate_duration_seconds",
			Help:    "Duration of the feature pipeline and scoring for one estimate.",
			Buckets: prometheus.DefBuckets,
		}, []string{"version"}),
		GeocodeErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "resale_geocode_errors_total",
			Help: "Total number of failed address lookups.",
		}),
		GeocodeSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "resale_geocode_duration_seconds",
			Help:    "Duration of address lookups against the geocoding API.",
			Buckets: prometheus.DefBuckets,
		}),
		ReferenceRows: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "resale_reference_rows",
			Help: "Rows loaded per reference dataset.",
		}, []string{"kind"}),
	}
}

// ObserveEstimate records one estimate outcome.
func (m *Metrics) ObserveEstimate(version string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.Estimates.WithLabelValues(version, status).Inc()
	m.EstimateSeconds.WithLabelValues(version).Observe(seconds)
}

// ObserveGeocode records one address lookup.
func (m *Metrics) ObserveGeocode(seconds float64, err error) {
	if m == nil {
		return
	}
	m.GeocodeSeconds.Observe(seconds)
	if err != nil {
		m.GeocodeErrors.Inc()
	}
}

// SetReferenceRows publishes loaded dataset sizes.
func (m *Metrics) SetReferenceRows(counts map[string]int) {
	if m == nil {
		return
	}
	for kind, n := range counts {
		m.ReferenceRows.WithLabelValues(kind).Set(float64(n))
	}
}
