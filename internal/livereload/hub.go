// Package livereload tells browsers showing the document to reload when the
// files behind it change. It has three parts: a Watcher polling files for
// changes, a Hub broadcasting reload signals over websockets, and a Widget
// placing the client script in the document.
package livereload

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"impractical.co/docshell/internal/metrics"
)

const (
	// PingInterval is how often idle connections are pinged.
	PingInterval = 30 * time.Second

	writeWait  = 10 * time.Second
	sendBuffer = 4
)

// Message types sent to clients.
const (
	TypeHello  = "hello"
	TypeReload = "reload"
)

// Message is the JSON payload sent to clients.
type Message struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan Message
}

// Hub tracks connected live reload clients and broadcasts reload signals to
// them. The zero value is not usable; use NewHub.
type Hub struct {
	metrics  *metrics.Metrics
	origins  []string
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[uuid.UUID]*client
	closed  bool
}

// NewHub returns a Hub recording its client count and broadcasts in m, which
// may be nil. Browsers may only connect from the Hub's own origin, or from
// one of origins.
func NewHub(m *metrics.Metrics, origins ...string) *Hub {
	h := &Hub{
		metrics: m,
		origins: origins,
		clients: map[uuid.UUID]*client{},
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin accepts requests without an Origin header, which don't come
// from browsers, requests from the same host, and the allowed origins.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if slices.Contains(h.origins, origin) {
		return true
	}
	log.Debug().Str("origin", origin).Str("host", r.Host).Msg("live reload origin rejected")
	return false
}

// ServeHTTP upgrades the request to a websocket and keeps it registered until
// the client goes away or the Hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		log.Debug().Err(err).Msg("live reload upgrade failed")
		return
	}

	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan Message, sendBuffer),
	}
	c.send <- Message{Type: TypeHello}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go c.writeLoop()

	log.Debug().Str("client", c.id.String()).Str("remote", r.RemoteAddr).Msg("live reload client connected")
	for {
		// clients never send anything meaningful, reading only surfaces
		// close frames and drives pong handling
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("client", c.id.String()).Msg("live reload client read error")
			}
			break
		}
	}
	h.unregister(c)
	log.Debug().Str("client", c.id.String()).Msg("live reload client disconnected")
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	h.metrics.SetLiveReloadClients(len(h.clients))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.metrics.SetLiveReloadClients(len(h.clients))
}

// Broadcast tells every connected client to reload, returning how many were
// told. Clients that already have reloads queued are skipped, since one
// reload covers both.
func (h *Hub) Broadcast(reason string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := Message{Type: TypeReload, Reason: reason}
	sent := 0
	for _, c := range h.clients {
		select {
		case c.send <- msg:
			sent++
		default:
			log.Debug().Str("client", c.id.String()).Msg("live reload client backlogged, skipping")
		}
	}
	h.metrics.IncLiveReloadBroadcasts()
	log.Info().Str("reason", reason).Int("clients", sent).Msg("live reload broadcast")
	return sent
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
	h.metrics.SetLiveReloadClients(0)
}
