package events

import "time"

type Event struct {
	Type      string    `json:"type"`             // "connected", "subscribed", "connection_lost", "parse_failed", "path_cleared", ...
	Source    string    `json:"source"`           // component that raised it: "MQTT", "Location", "Operator"
	Detail    string    `json:"detail,omitempty"` // error text or topic
	Timestamp time.Time `json:"timestamp"`
}

// Event types raised by the application.
const (
	TypeConnectRequested = "connect_requested"
	TypeConnected        = "connected"
	TypeConnectFailed    = "connect_failed"
	TypeSubscribed       = "subscribed"
	TypeSubscribeFailed  = "subscribe_failed"
	TypeConnectionLost   = "connection_lost"
	TypeReconnecting     = "reconnecting"
	TypeDisconnected     = "disconnected"
	TypeParseFailed      = "parse_failed"
	TypePathCleared      = "path_cleared"
	TypeRecordingFailed  = "recording_failed"
)
