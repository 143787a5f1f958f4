package ws

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	feedConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "feed",
		Name:      "connections",
		Help:      "Active UI WebSocket connections.",
	})

	feedDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "feed",
		Name:      "dropped_events_total",
		Help:      "Events dropped because a client's send queue was full.",
	})
)

func init() {
	prometheus.MustRegister(feedConnections, feedDropped)
}
