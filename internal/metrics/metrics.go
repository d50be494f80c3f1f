// Package metrics provides Prometheus instrumentation for the zone chat
// client: connection state, zone occupancy, message flow through the store
// and optimistic send round-trips.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionState is the current session state (0 disconnected,
	// 1 connecting, 2 connected, 3 joined).
	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zonechat_connection_state",
		Help: "Current zone session state",
	})

	// ConnectAttempts counts socket dial attempts by result: "ok" or "error".
	ConnectAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zonechat_connect_attempts_total",
		Help: "Socket dial attempts",
	}, []string{"result"})

	// JoinRequests counts join-location-chat emits.
	JoinRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zonechat_join_requests_total",
		Help: "Zone join requests sent to the server",
	})

	// ZoneOccupancy is the online user count of the active zone.
	ZoneOccupancy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zonechat_zone_occupancy",
		Help: "Online users in the active zone",
	})

	// MessagesTotal counts store operations, labeled by outcome:
	// "sent", "appended", "reconciled", "duplicate", "rolled_back".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zonechat_messages_total",
		Help: "Messages processed by the zone message store",
	}, []string{"type"})

	// SendRoundTrip records the time from an optimistic insert to the
	// reconciliation of its authoritative echo.
	SendRoundTrip = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "zonechat_send_round_trip_seconds",
		Help:    "Optimistic send to authoritative echo latency",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionState,
		ConnectAttempts,
		JoinRequests,
		ZoneOccupancy,
		MessagesTotal,
		SendRoundTrip,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
