package broker

import (
	"fmt"
	"time"
)

// State is the tri-state connection signal shown on the dashboard.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "disconnected":
		*s = StateDisconnected
	case "connecting":
		*s = StateConnecting
	case "connected":
		*s = StateConnected
	default:
		return fmt.Errorf("unknown state %q", b)
	}
	return nil
}

// Status is a snapshot of the session
type Status struct {
	State      State     `json:"state"`
	ClientID   string    `json:"client_id"`
	Connected  bool      `json:"connected"`
	Subscribed bool      `json:"subscribed"`
	LastError  string    `json:"last_error,omitempty"`
	Broker     string    `json:"broker"`
	Topic      string    `json:"topic"`
	ChangedAt  time.Time `json:"changed_at"`
}

// PublishRequest is the body accepted by POST /mqtt/publish. QoS defaults to 1.
type PublishRequest struct {
	Topic   string `json:"topic"`
	Message any    `json:"message"`
	QoS     *int   `json:"qos,omitempty"`
}

// TopicRequest is the body accepted by the subscribe endpoints
type TopicRequest struct {
	Topic string `json:"topic"`
	QoS   int    `json:"qos"`
}
