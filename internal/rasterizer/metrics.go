package rasterizer

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

var getMetrics = sync.OnceValue(func() *metrics {
	return &metrics{
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "formationflow",
			Subsystem: "rasterizer",
			Name:      "duration_seconds",
			Help:      "Time spent converting HTML to PDF.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"mode"}),
		failures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "formationflow",
			Subsystem: "rasterizer",
			Name:      "failures_total",
			Help:      "Conversions that returned an error.",
		}, []string{"mode"}),
	}
})

func observe(opts Options, elapsed time.Duration, err error) {
	mode := "preview"
	if opts.Final {
		mode = "final"
	}
	m := getMetrics()
	m.duration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if err != nil {
		m.failures.WithLabelValues(mode).Inc()
	}
}
