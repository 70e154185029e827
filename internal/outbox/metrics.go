package outbox

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	enqueueTotal    *prometheus.CounterVec
	dispatchTotal   *prometheus.CounterVec
	deadTotal       *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	pending         prometheus.Gauge
	locked          prometheus.Gauge
	relayLeader     prometheus.Gauge
}

var metricsInstance = sync.OnceValue(func() *metrics {
	return &metrics{
		enqueueTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formationflow_outbox_enqueue_total",
			Help: "Messages written to the generation outbox.",
		}, []string{"topic"}),
		dispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formationflow_outbox_dispatch_total",
			Help: "Dispatch attempts by result.",
		}, []string{"topic", "result"}),
		deadTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formationflow_outbox_dead_total",
			Help: "Messages that exhausted their attempts.",
		}, []string{"topic"}),
		dispatchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formationflow_outbox_dispatch_latency_seconds",
			Help:    "Time spent delivering one message.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"topic"}),
		pending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "formationflow_outbox_pending",
			Help: "Unpublished messages.",
		}),
		locked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "formationflow_outbox_locked",
			Help: "Messages currently claimed by a relay.",
		}),
		relayLeader: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "formationflow_outbox_relay_leader",
			Help: "1 when this process holds the relay lock.",
		}),
	}
})
