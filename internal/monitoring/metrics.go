package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ExtractedTotal       *prometheus.CounterVec
	ErrorsTotal          *prometheus.CounterVec
	MissingSectionsTotal *prometheus.CounterVec
	EnrichmentTotal      *prometheus.CounterVec
	QueueReconnects      prometheus.Counter
}

func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metric set against reg. Tests pass a fresh
// registry so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ExtractedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "extractor_articles_processed_total",
			Help: "The total number of articles processed",
		}, []string{"mode"}), // 'browser', 'static-html'
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "extractor_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"type"}), // e.g., 'auth_failed', 'fetch_failed', 'db_save_failed'
		MissingSectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "extractor_missing_sections_total",
			Help: "The total number of sections whose rule lists failed to match",
		}, []string{"section"}),
		EnrichmentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "extractor_enrichment_total",
			Help: "The total number of enrichment calls by outcome",
		}, []string{"outcome"}), // 'accepted', 'remediation', 'no_result'
		QueueReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "extractor_queue_reconnects_total",
			Help: "The total number of broker reconnect cycles",
		}),
	}
}

func (m *Metrics) IncExtracted(mode string) {
	m.ExtractedTotal.WithLabelValues(mode).Inc()
}

func (m *Metrics) IncErrors(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncMissingSection(section string) {
	m.MissingSectionsTotal.WithLabelValues(section).Inc()
}

func (m *Metrics) IncEnrichment(outcome string) {
	m.EnrichmentTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncQueueReconnects() {
	m.QueueReconnects.Inc()
}
