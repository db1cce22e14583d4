// Package metrics provides Prometheus instrumentation for the chat service.
// It exposes gauges for connection and subscription counts, counters for
// message and event throughput, and a histogram for fan-out latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// RoomSubscriptions tracks the current number of live room subscriptions.
	RoomSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_room_subscriptions",
		Help: "Current number of live room subscriptions",
	})

	// MessagesPersisted counts chat messages durably appended to the log.
	MessagesPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_messages_persisted_total",
		Help: "Total number of chat messages appended to the message log",
	})

	// EventsPublished counts events published to rooms, labeled by frame type.
	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairchat_events_published_total",
		Help: "Total number of events published to rooms",
	}, []string{"type"}) // type = "chat_message", "typing", "user_status"

	// FramesDropped counts inbound frames dropped as malformed or unknown.
	FramesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_frames_dropped_total",
		Help: "Total number of inbound frames dropped as malformed",
	})

	// PresenceFlips counts presence transitions, labeled "online" or "offline".
	PresenceFlips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairchat_presence_flips_total",
		Help: "Total number of presence transitions",
	}, []string{"direction"})

	// PublishLatency records room fan-out latency in seconds.
	PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pairchat_publish_latency_seconds",
		Help:    "Room event fan-out latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		RoomSubscriptions,
		MessagesPersisted,
		EventsPublished,
		FramesDropped,
		PresenceFlips,
		PublishLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
