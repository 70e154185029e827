package httpapi

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var metrics = sync.OnceValue(func() *httpMetrics {
	return &httpMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formationflow_http_requests_total",
			Help: "HTTP requests by method, route template and status code.",
		}, []string{"method", "route", "code"}),
		latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formationflow_http_request_duration_seconds",
			Help:    "HTTP request latency by route template.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
})
