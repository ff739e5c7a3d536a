// Package metrics exposes the server's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sessions tracks currently connected sessions.
	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "murmel",
		Name:      "sessions",
		Help:      "Currently connected sessions.",
	})

	// FramesIn counts control frames received, labelled by message kind.
	FramesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "murmel",
		Name:      "frames_in_total",
		Help:      "Control frames received.",
	}, []string{"type"})

	// FramesOut counts control frames sent, labelled by message kind.
	FramesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "murmel",
		Name:      "frames_out_total",
		Help:      "Control frames sent.",
	}, []string{"type"})

	// VoicePackets counts voice packets accepted from speakers.
	VoicePackets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "murmel",
		Name:      "voice_packets_total",
		Help:      "Voice tunnel packets accepted.",
	})

	// BroadcastDrops counts deliveries dropped on a full subscriber queue.
	BroadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "murmel",
		Name:      "broadcast_drops_total",
		Help:      "Broadcast deliveries dropped because a subscriber queue was full.",
	})

	// ProtocolErrors counts per-connection fatal protocol errors.
	ProtocolErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "murmel",
		Name:      "protocol_errors_total",
		Help:      "Connections torn down on protocol errors.",
	})

	// WebClients tracks connected web bridge chat clients.
	WebClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "murmel",
		Name:      "web_clients",
		Help:      "Connected web bridge clients.",
	})
)
