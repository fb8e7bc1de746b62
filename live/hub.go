package live

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kaireichart/live-location-map/metrics"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Same-origin requests and non-browser clients carry no Origin.
		if origin == "" {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

// Message is the envelope pushed to dashboard viewers
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// client is one viewer. Only its writePump writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans messages out to every connected browser. Broadcast never waits
// on the network: each client has a queue, and a client whose queue is
// full is dropped.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]bool
	snapshot func() []Message
}

// NewHub creates a hub. snapshot, when set, provides the messages a newly
// connected viewer receives before any broadcast.
func NewHub(snapshot func() []Message) *Hub {
	return &Hub{
		clients:  make(map[*client]bool),
		snapshot: snapshot,
	}
}

func (h *Hub) SetupHandlers(r *mux.Router) {
	r.HandleFunc("/ws", h.HandleWebSocket)
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	// Queue the snapshot and register under one lock so no broadcast can
	// slip in between them.
	h.mu.Lock()
	if h.snapshot != nil {
		for _, msg := range h.snapshot() {
			payload, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Str("type", msg.Type).Msg("failed to encode snapshot")
				continue
			}
			c.send <- payload
		}
	}
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(count))
	log.Info().Str("remote", r.RemoteAddr).Int("clients", count).Msg("websocket client connected")

	go h.writePump(c)
	go h.readPump(c)
}

// readPump drains client frames so close and pong frames are processed.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Warn().Err(err).Msg("error sending to websocket client")
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// remove unregisters c and closes its queue, which ends its writePump.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	ok := h.removeLocked(c)
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.WebSocketClients.Set(float64(count))
		log.Info().Int("clients", count).Msg("websocket client disconnected")
	}
}

func (h *Hub) removeLocked(c *client) bool {
	if !h.clients[c] {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

// Broadcast queues a typed message for every client.
func (h *Hub) Broadcast(msgType string, data any) {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		log.Error().Err(err).Str("type", msgType).Msg("failed to encode broadcast")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			log.Warn().Msg("websocket client too slow, dropping it")
			h.removeLocked(c)
		}
	}
	metrics.WebSocketClients.Set(float64(len(h.clients)))
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
	metrics.WebSocketClients.Set(0)
}
