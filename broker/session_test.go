package broker

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaireichart/live-location-map/config"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient implements the parts of mqtt.Client a Session uses.
type fakeClient struct {
	mqtt.Client

	opts         *mqtt.ClientOptions
	connectErr   error
	subscribeErr error

	mu           sync.Mutex
	subscribed   map[string]mqtt.MessageHandler
	published    []published
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token { return doneToken(c.connectErr) }

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) IsConnected() bool { return !c.disconnected }

func (c *fakeClient) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr == nil {
		c.subscribed[topic] = cb
	}
	return doneToken(c.subscribeErr)
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.subscribed, t)
	}
	return doneToken(nil)
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, qos, payload.([]byte)})
	return doneToken(nil)
}

// deliver simulates the library dispatching a message to the subscription.
func (c *fakeClient) deliver(topic, payload string) {
	c.mu.Lock()
	cb := c.subscribed[topic]
	c.mu.Unlock()
	if cb == nil {
		cb = c.opts.DefaultPublishHandler
	}
	cb(c, &fakeMessage{topic: topic, payload: []byte(payload)})
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

type harness struct {
	session  *Session
	clients  []*fakeClient
	messages []string
	statuses []Status

	connectErr   error
	subscribeErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{}
	cfg := config.Default().MQTT
	cfg.BrokerURL = "wss://broker.test:8884/mqtt"
	cfg.Username = "user"
	cfg.Password = "pass"

	h.session = NewSession(cfg, Options{
		OnMessage: func(topic string, payload []byte) {
			h.messages = append(h.messages, topic+" "+string(payload))
		},
		OnStatus: func(st Status) {
			h.statuses = append(h.statuses, st)
		},
		NewClient: func(o *mqtt.ClientOptions) mqtt.Client {
			c := &fakeClient{
				opts:         o,
				connectErr:   h.connectErr,
				subscribeErr: h.subscribeErr,
				subscribed:   map[string]mqtt.MessageHandler{},
			}
			h.clients = append(h.clients, c)
			return c
		},
	})
	return h
}

func (h *harness) last() *fakeClient {
	return h.clients[len(h.clients)-1]
}

// connect runs Connect and the library's on-connect callback.
func (h *harness) connect(t *testing.T) *fakeClient {
	t.Helper()
	require.NoError(t, h.session.Connect(context.Background()))
	c := h.last()
	c.opts.OnConnect(c)
	return c
}

func TestConnectBuildsClientOptions(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)

	require.Len(t, c.opts.Servers, 1)
	assert.Equal(t, "wss", c.opts.Servers[0].Scheme)
	assert.Equal(t, "broker.test:8884", c.opts.Servers[0].Host)
	assert.Equal(t, "user", c.opts.Username)
	assert.Equal(t, "pass", c.opts.Password)
	assert.Equal(t, uint(4), c.opts.ProtocolVersion)
	assert.True(t, strings.HasPrefix(c.opts.ClientID, "test_client_"))
	assert.Len(t, c.opts.ClientID, len("test_client_")+12)
}

func TestConnectSubscribesToTopic(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)

	st := h.session.Status()
	assert.Equal(t, StateConnected, st.State)
	assert.True(t, st.Connected)
	assert.True(t, st.Subscribed)
	assert.Equal(t, c.opts.ClientID, st.ClientID)
	assert.Contains(t, c.subscribed, "moveit")

	states := make([]State, 0, len(h.statuses))
	for _, s := range h.statuses {
		states = append(states, s.State)
	}
	assert.Equal(t, []State{StateConnecting, StateConnected, StateConnected}, states)
}

func TestConnectWhenConnectedIsNoop(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	require.NoError(t, h.session.Connect(context.Background()))
	assert.Len(t, h.clients, 1)
}

func TestConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.connectErr = errors.New("not authorized")

	err := h.session.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "not authorized")

	st := h.session.Status()
	assert.Equal(t, StateDisconnected, st.State)
	assert.False(t, st.Connected)
	assert.Equal(t, "not authorized", st.LastError)
	assert.True(t, h.last().disconnected, "failed client is ended")

	require.NotEmpty(t, h.statuses)
	pushed := h.statuses[len(h.statuses)-1]
	assert.Equal(t, StateDisconnected, pushed.State)
	assert.Equal(t, "not authorized", pushed.LastError)

	// The session is usable again after a failure.
	h.connectErr = nil
	h.connect(t)
	st = h.session.Status()
	assert.Equal(t, StateConnected, st.State)
	assert.Empty(t, st.LastError)
}

func TestConnectHonoursContext(t *testing.T) {
	h := newHarness(t)
	h.session.opts.NewClient = func(o *mqtt.ClientOptions) mqtt.Client {
		return &pendingClient{fakeClient: fakeClient{opts: o, subscribed: map[string]mqtt.MessageHandler{}}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.session.Connect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	st := h.session.Status()
	assert.Equal(t, StateDisconnected, st.State)
	assert.Equal(t, context.Canceled.Error(), st.LastError)
}

type pendingClient struct {
	fakeClient
}

func (c *pendingClient) Connect() mqtt.Token {
	return &fakeToken{done: make(chan struct{})}
}

func TestSubscribeFailureIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.subscribeErr = errors.New("subscribe denied")
	h.connect(t)

	st := h.session.Status()
	assert.Equal(t, StateConnected, st.State)
	assert.False(t, st.Subscribed)
	assert.Equal(t, "subscribe denied", st.LastError)
}

func TestMessagesOnOtherTopicsAreIgnored(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)

	c.deliver("moveit", "lat=1&lng=2")
	c.deliver("live/location", "lat=3&lng=4")

	assert.Equal(t, []string{"moveit lat=1&lng=2"}, h.messages)
}

func TestConnectionLostAndReconnect(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)

	c.opts.OnConnectionLost(c, errors.New("EOF"))
	st := h.session.Status()
	assert.Equal(t, StateConnecting, st.State, "library reconnects")
	assert.False(t, st.Subscribed)
	assert.Equal(t, "EOF", st.LastError)

	c.opts.OnReconnecting(c, c.opts)
	assert.Equal(t, StateConnecting, h.session.Status().State)

	c.opts.OnConnect(c)
	assert.Equal(t, StateConnected, h.session.Status().State)
	assert.True(t, h.session.Status().Subscribed)
}

func TestConnectionLostWithoutAutoReconnect(t *testing.T) {
	h := newHarness(t)
	h.session.cfg.AutoReconnect = false
	c := h.connect(t)

	c.opts.OnConnectionLost(c, errors.New("EOF"))
	assert.Equal(t, StateDisconnected, h.session.Status().State)
}

func TestToggleRecreatesClient(t *testing.T) {
	h := newHarness(t)
	first := h.connect(t)
	firstID := h.session.Status().ClientID

	require.NoError(t, h.session.Toggle(context.Background()))
	st := h.session.Status()
	assert.Equal(t, StateDisconnected, st.State)
	assert.False(t, st.Connected)
	assert.False(t, st.Subscribed)
	assert.False(t, h.statuses[len(h.statuses)-1].Connected)
	assert.True(t, first.disconnected)

	require.NoError(t, h.session.Toggle(context.Background()))
	second := h.last()
	second.opts.OnConnect(second)

	require.Len(t, h.clients, 2)
	assert.NotEqual(t, firstID, h.session.Status().ClientID)
	assert.Equal(t, StateConnected, h.session.Status().State)

	// Late callbacks from the first client no longer affect the session.
	first.opts.OnConnectionLost(first, errors.New("stale"))
	assert.Equal(t, StateConnected, h.session.Status().State)
}

func TestDisconnectWithoutClient(t *testing.T) {
	h := newHarness(t)
	assert.NoError(t, h.session.Disconnect(context.Background()))
	assert.Equal(t, StateDisconnected, h.session.Status().State)
}

func TestPublishRequiresConnection(t *testing.T) {
	h := newHarness(t)

	err := h.session.Publish(context.Background(), "moveit", "hello", 1)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, h.session.Subscribe(context.Background(), "x", 0), ErrNotConnected)
	assert.ErrorIs(t, h.session.Unsubscribe(context.Background(), "x"), ErrNotConnected)
}

func TestPublishEncodesJSON(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)

	require.NoError(t, h.session.Publish(context.Background(), "status", map[string]any{"ok": true}, 1))
	require.Len(t, c.published, 1)
	assert.Equal(t, "status", c.published[0].topic)
	assert.Equal(t, byte(1), c.published[0].qos)
	assert.JSONEq(t, `{"ok":true}`, string(c.published[0].payload))
}

func TestUnsubscribeMainTopic(t *testing.T) {
	h := newHarness(t)
	c := h.connect(t)

	require.NoError(t, h.session.Unsubscribe(context.Background(), "moveit"))
	assert.False(t, h.session.Status().Subscribed)
	assert.NotContains(t, c.subscribed, "moveit")

	require.NoError(t, h.session.Subscribe(context.Background(), "moveit", 0))
	assert.True(t, h.session.Status().Subscribed)
}

func TestStateJSON(t *testing.T) {
	data, err := json.Marshal(Status{State: StateConnecting})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"connecting"`)

	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, StateConnecting, st.State)
}

func TestHandlers(t *testing.T) {
	h := newHarness(t)
	r := mux.NewRouter()
	h.session.SetupHandlers(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mqtt/status", nil))
	assert.Contains(t, rec.Body.String(), "disconnected")
	assert.Contains(t, rec.Body.String(), ">Connect<")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mqtt/publish", strings.NewReader(`{"topic":"a","message":1}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mqtt/toggle", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	c := h.last()
	c.opts.OnConnect(c)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mqtt/status", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "connected</span> with id")
	assert.Contains(t, body, c.opts.ClientID)
	assert.Contains(t, body, ">Disconnect<")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mqtt/publish", bytes.NewBufferString(`{"topic":"a/+","message":1}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mqtt/publish", bytes.NewBufferString(`{"topic":"a","message":"hi"}`)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, c.published, 1)
	assert.Equal(t, byte(1), c.published[0].qos)
	assert.Equal(t, `"hi"`, string(c.published[0].payload))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mqtt/subscribe", bytes.NewBufferString(`{"topic":"live/#"}`)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, c.subscribed, "live/#")
}

func TestStatusCard(t *testing.T) {
	render := func(st Status) string {
		var sb strings.Builder
		require.NoError(t, StatusCard(st).Render(context.Background(), &sb))
		return sb.String()
	}

	body := render(Status{State: StateConnecting, Broker: "wss://broker.test:8884/mqtt", LastError: "<b>refused</b>"})
	assert.Contains(t, body, "connecting</span>")
	assert.Contains(t, body, "&lt;b&gt;refused&lt;/b&gt;")
	assert.NotContains(t, body, "Subscribed to")
	assert.Contains(t, body, ">Connect</button>")

	body = render(Status{State: StateConnected, Connected: true, Subscribed: true, ClientID: "test_client_1", Topic: "moveit"})
	assert.Contains(t, body, "Subscribed to <code>moveit</code>")
	assert.NotContains(t, body, `class="error"`)
	assert.Contains(t, body, ">Disconnect</button>")
}
