package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kaireichart/live-location-map/config"
	"github.com/kaireichart/live-location-map/events"
	"github.com/kaireichart/live-location-map/metrics"
)

// ErrNotConnected is returned by operations that need a live session.
var ErrNotConnected = errors.New("mqtt client is not connected")

const (
	eventSource     = "MQTT"
	disconnectQuiet = 250 // milliseconds
)

// Options wires a Session to the rest of the application.
type Options struct {
	// OnMessage receives payloads published on the configured topic.
	OnMessage func(topic string, payload []byte)
	// OnStatus is called after every status change, outside the session lock.
	OnStatus func(Status)
	// NewClient builds the underlying client. Defaults to mqtt.NewClient.
	NewClient func(*mqtt.ClientOptions) mqtt.Client
}

// Session owns one MQTT connection at a time. A fresh client, with a fresh
// client id, is created on every manual connect.
type Session struct {
	cfg  config.MQTTConfig
	opts Options

	mu     sync.Mutex
	client mqtt.Client
	status Status
}

func NewSession(cfg config.MQTTConfig, opts Options) *Session {
	initPahoLoggers()
	if opts.NewClient == nil {
		opts.NewClient = mqtt.NewClient
	}
	return &Session{
		cfg:  cfg,
		opts: opts,
		status: Status{
			State:     StateDisconnected,
			Broker:    cfg.BrokerURL,
			Topic:     cfg.Topic,
			ChangedAt: time.Now(),
		},
	}
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Connect opens a new session and waits for the broker to accept it. It is
// a no-op when already connected; a pending attempt is abandoned and
// replaced.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.status.State == StateConnected && s.client != nil {
		s.mu.Unlock()
		return nil
	}
	stale := s.client

	clientID := newClientID(s.cfg.ClientIDPrefix)
	client := s.opts.NewClient(s.clientOptions(clientID))
	s.client = client
	s.mu.Unlock()

	if stale != nil {
		stale.Disconnect(0)
	}

	s.update(client, func(st *Status) {
		st.State = StateConnecting
		st.ClientID = clientID
		st.Subscribed = false
		st.LastError = ""
	})
	events.Record(events.TypeConnectRequested, eventSource, s.cfg.BrokerURL)
	log.Info().Str("broker", s.cfg.BrokerURL).Str("client_id", clientID).Msg("connecting to MQTT broker")

	if err := waitToken(ctx, client.Connect(), s.cfg.ConnectTimeout); err != nil {
		log.Error().Err(err).Str("broker", s.cfg.BrokerURL).Msg("failed to connect to MQTT broker")
		events.Record(events.TypeConnectFailed, eventSource, err.Error())

		client.Disconnect(0)
		s.mu.Lock()
		if s.client != client {
			// A newer attempt owns the status now.
			s.mu.Unlock()
			return fmt.Errorf("failed to connect to %s: %w", s.cfg.BrokerURL, err)
		}
		s.client = nil
		st := s.applyLocked(func(st *Status) {
			st.State = StateDisconnected
			st.Subscribed = false
			st.LastError = err.Error()
		})
		s.mu.Unlock()
		s.notify(st)
		return fmt.Errorf("failed to connect to %s: %w", s.cfg.BrokerURL, err)
	}
	return nil
}

// Disconnect ends the current session, if any.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	wasConnected := s.status.State != StateDisconnected
	st := s.applyLocked(func(st *Status) {
		st.State = StateDisconnected
		st.Subscribed = false
	})
	s.mu.Unlock()

	if client == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		client.Disconnect(disconnectQuiet)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Msg("MQTT disconnect did not finish in time")
	}

	if wasConnected {
		events.Record(events.TypeDisconnected, eventSource, st.ClientID)
	}
	log.Info().Str("client_id", st.ClientID).Msg("disconnected from MQTT broker")
	s.notify(st)
	return nil
}

// Toggle disconnects a connected session and connects otherwise.
func (s *Session) Toggle(ctx context.Context) error {
	if s.Status().State == StateConnected {
		return s.Disconnect(ctx)
	}
	return s.Connect(ctx)
}

// Subscribe adds a subscription on the live session.
func (s *Session) Subscribe(ctx context.Context, topic string, qos byte) error {
	client, err := s.connectedClient()
	if err != nil {
		return err
	}
	if err := waitSubscribe(ctx, client.Subscribe(topic, qos, s.handleMessage), topic, s.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	if topic == s.cfg.Topic {
		s.update(client, func(st *Status) { st.Subscribed = true })
	}
	return nil
}

// Unsubscribe removes a subscription from the live session.
func (s *Session) Unsubscribe(ctx context.Context, topic string) error {
	client, err := s.connectedClient()
	if err != nil {
		return err
	}
	if err := waitToken(ctx, client.Unsubscribe(topic), s.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", topic, err)
	}
	if topic == s.cfg.Topic {
		s.update(client, func(st *Status) { st.Subscribed = false })
	}
	return nil
}

// Publish sends value JSON-encoded.
func (s *Session) Publish(ctx context.Context, topic string, value any, qos byte) error {
	client, err := s.connectedClient()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := waitToken(ctx, client.Publish(topic, qos, false, payload), s.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (s *Session) connectedClient() (mqtt.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || s.status.State != StateConnected {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

func (s *Session) clientOptions(clientID string) *mqtt.ClientOptions {
	return mqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(clientID).
		SetUsername(s.cfg.Username).
		SetPassword(s.cfg.Password).
		SetProtocolVersion(uint(s.cfg.ProtocolVersion)).
		SetCleanSession(true).
		SetAutoReconnect(s.cfg.AutoReconnect).
		SetConnectRetry(false).
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetKeepAlive(s.cfg.KeepAlive).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost).
		SetReconnectingHandler(s.onReconnecting).
		SetDefaultPublishHandler(s.handleMessage)
}

func (s *Session) onConnect(c mqtt.Client) {
	if !s.update(c, func(st *Status) {
		st.State = StateConnected
		st.LastError = ""
	}) {
		return
	}
	st := s.Status()
	log.Info().Str("client_id", st.ClientID).Msg("connected to MQTT broker")
	events.Record(events.TypeConnected, eventSource, st.ClientID)

	token := c.Subscribe(s.cfg.Topic, byte(s.cfg.QoS), s.handleMessage)
	if err := waitSubscribe(context.Background(), token, s.cfg.Topic, s.cfg.ConnectTimeout); err != nil {
		log.Error().Err(err).Str("topic", s.cfg.Topic).Msg("failed to subscribe")
		events.Record(events.TypeSubscribeFailed, eventSource, err.Error())
		s.update(c, func(st *Status) {
			st.Subscribed = false
			st.LastError = err.Error()
		})
		return
	}

	if s.update(c, func(st *Status) { st.Subscribed = true }) {
		log.Info().Str("topic", s.cfg.Topic).Msg("subscribed to topic")
		events.Record(events.TypeSubscribed, eventSource, s.cfg.Topic)
	}
}

func (s *Session) onConnectionLost(c mqtt.Client, err error) {
	next := StateDisconnected
	if s.cfg.AutoReconnect {
		next = StateConnecting
	}
	if !s.update(c, func(st *Status) {
		st.State = next
		st.Subscribed = false
		if err != nil {
			st.LastError = err.Error()
		}
	}) {
		return
	}
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	log.Warn().Err(err).Msg("MQTT connection lost")
	events.Record(events.TypeConnectionLost, eventSource, detail)
}

func (s *Session) onReconnecting(c mqtt.Client, _ *mqtt.ClientOptions) {
	if s.update(c, func(st *Status) { st.State = StateConnecting }) {
		log.Info().Str("broker", s.cfg.BrokerURL).Msg("reconnecting to MQTT broker")
		events.Record(events.TypeReconnecting, eventSource, "")
	}
}

func (s *Session) handleMessage(_ mqtt.Client, m mqtt.Message) {
	if m.Topic() != s.cfg.Topic {
		log.Debug().Str("topic", m.Topic()).Int("bytes", len(m.Payload())).Msg("ignoring message on other topic")
		return
	}
	if s.opts.OnMessage != nil {
		s.opts.OnMessage(m.Topic(), m.Payload())
	}
}

// update applies fn when c is still the session's client and reports
// whether it did. Callbacks from abandoned clients are ignored.
func (s *Session) update(c mqtt.Client, fn func(*Status)) bool {
	s.mu.Lock()
	if s.client != c {
		s.mu.Unlock()
		return false
	}
	st := s.applyLocked(fn)
	s.mu.Unlock()

	s.notify(st)
	return true
}

// applyLocked is the single place status is written. s.mu must be held.
func (s *Session) applyLocked(fn func(*Status)) Status {
	fn(&s.status)
	s.status.Connected = s.status.State == StateConnected
	s.status.ChangedAt = time.Now()
	return s.status
}

func (s *Session) notify(st Status) {
	metrics.ConnectionState.Set(float64(st.State))
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(st)
	}
}

func waitToken(ctx context.Context, t mqtt.Token, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitSubscribe also checks the broker's per-topic return code.
func waitSubscribe(ctx context.Context, t mqtt.Token, topic string, timeout time.Duration) error {
	if err := waitToken(ctx, t, timeout); err != nil {
		return err
	}
	if st, ok := t.(*mqtt.SubscribeToken); ok {
		if code, found := st.Result()[topic]; found && code == 0x80 {
			return fmt.Errorf("broker rejected subscription to %s", topic)
		}
	}
	return nil
}

func newClientID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
