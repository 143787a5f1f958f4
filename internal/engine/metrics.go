package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	saveLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sync",
		Name:      "save_seconds",
		Help:      "Latency of a full read-merge-write save cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	savesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sync",
		Name:      "saves_total",
		Help:      "Save cycles by outcome.",
	}, []string{"result"})

	echoesSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sync",
		Name:      "echoes_suppressed_total",
		Help:      "Feed notifications discarded as this client's own write.",
	})

	remoteApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sync",
		Name:      "remote_updates_applied_total",
		Help:      "Genuine remote documents merged into local state.",
	})
)

func init() {
	prometheus.MustRegister(saveLatency, savesTotal, echoesSuppressed, remoteApplied)
}
