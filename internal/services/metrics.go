package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type serviceMetrics struct {
	requestsCreated   prometheus.Counter
	statusTransitions *prometheus.CounterVec
	generations       *prometheus.CounterVec
	generationLatency prometheus.Histogram
	previews          *prometheus.CounterVec
	downloads         *prometheus.CounterVec
}

var metrics = sync.OnceValue(func() *serviceMetrics {
	return &serviceMetrics{
		requestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formationflow_requests_created_total",
			Help: "Formation requests created.",
		}),
		statusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formationflow_status_transitions_total",
			Help: "Committed status transitions.",
		}, []string{"from", "to"}),
		generations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formationflow_document_generations_total",
			Help: "Document generation outcomes.",
		}, []string{"outcome"}),
		generationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "formationflow_document_generation_seconds",
			Help:    "Render, rasterize, store and register time for final documents.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		previews: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formationflow_previews_total",
			Help: "Preview renders by result.",
		}, []string{"result"}),
		downloads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formationflow_downloads_total",
			Help: "Document downloads by result.",
		}, []string{"result"}),
	}
})
