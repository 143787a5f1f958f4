package remote

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	fetchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "remote",
		Name:      "fetch_seconds",
		Help:      "Latency for reading the board row.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"board"})

	writeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "remote",
		Name:      "write_seconds",
		Help:      "Latency for replacing the board row.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"board"})

	feedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "remote",
		Name:      "feed_messages_total",
		Help:      "Writes observed on the push-notification feed.",
	}, []string{"board"})
)

func init() {
	prometheus.MustRegister(fetchLatency, writeLatency, feedMessages)
}
