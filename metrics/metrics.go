package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// MessagesReceived counts MQTT messages delivered on the location topic
	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "livemap",
			Name:      "mqtt_messages_received_total",
			Help:      "Total number of MQTT messages received on the subscribed topic",
		},
		[]string{"topic"},
	)

	// ParseErrors counts payloads that could not be decoded
	ParseErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "livemap",
			Name:      "payload_parse_errors_total",
			Help:      "Total number of location payloads that failed to parse",
		},
	)

	// PathPoints is the current length of the in-memory path
	PathPoints = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "livemap",
			Name:      "path_points",
			Help:      "Number of points in the current path",
		},
	)

	// ConnectionState is 0 disconnected, 1 connecting, 2 connected
	ConnectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "livemap",
			Name:      "mqtt_connection_state",
			Help:      "MQTT session state (0 disconnected, 1 connecting, 2 connected)",
		},
	)

	// WebSocketClients is the number of connected dashboard viewers
	WebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "livemap",
			Name:      "websocket_clients",
			Help:      "Number of connected dashboard WebSocket clients",
		},
	)

	// RecordedPoints counts points written to the recording database
	RecordedPoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "livemap",
			Name:      "recorded_points_total",
			Help:      "Total number of points written to the recording database",
		},
		[]string{"result"},
	)

	once sync.Once
)

// InitMetrics registers all collectors with the default registry. Safe to
// call more than once.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(MessagesReceived)
		prometheus.DefaultRegisterer.Register(ParseErrors)
		prometheus.DefaultRegisterer.Register(PathPoints)
		prometheus.DefaultRegisterer.Register(ConnectionState)
		prometheus.DefaultRegisterer.Register(WebSocketClients)
		prometheus.DefaultRegisterer.Register(RecordedPoints)
	})
}
