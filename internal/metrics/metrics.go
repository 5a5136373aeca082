// Package metrics holds the relay's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connections_active",
		Help: "Live signaling connections.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_events_dropped_total",
		Help: "Outbound events dropped because a connection queue was full or closed.",
	})

	Calls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_calls_total",
		Help: "Direct call outcomes.",
	}, []string{"outcome"})

	Transfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_transfers_total",
		Help: "Transfer handshake outcomes.",
	}, []string{"outcome"})

	RoomFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_room_frames_total",
		Help: "Fallback media frames fanned out to rooms.",
	})
)
