package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments exposed on /metrics.
type Metrics struct {
	HTTPRequests    *prometheus.CounterVec
	PagesProcessed  *prometheus.CounterVec
	ItemsCropped    prometheus.Counter
	ProcessDuration prometheus.Histogram
}

// NewMetrics registers the server instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		HTTPRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cataloger_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "status"}),
		PagesProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cataloger_pages_processed_total",
			Help: "Page processing runs by result",
		}, []string{"result"}),
		ItemsCropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "cataloger_items_cropped_total",
			Help: "Item crops persisted across all pages",
		}),
		ProcessDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "cataloger_process_duration_seconds",
			Help:    "End to end page processing duration",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
}
