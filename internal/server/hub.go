package server

import (
	"encoding/json"
	"sync"
	"time"

	"codeberg.org/mutker/ecoguard/internal/logger"
	"codeberg.org/mutker/ecoguard/internal/telemetry"
	"codeberg.org/mutker/ecoguard/internal/view"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
	readLimit  = 512
)

// Hub fans rendered snapshots out to websocket clients. Each client holds
// at most one pending snapshot; a newer one replaces it.
type Hub struct {
	log logger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn    *websocket.Conn
	binding view.Binding
	send    chan []byte
	once    sync.Once
}

func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}

	return &Hub{
		log:     log.With("hub"),
		clients: make(map[*client]struct{}),
	}
}

// Broadcast renders f once per binding in use and queues it for every
// client. It never blocks on a slow client.
func (h *Hub) Broadcast(f telemetry.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rendered := make(map[string][]byte)
	for c := range h.clients {
		name := c.binding.Name()
		msg, ok := rendered[name]
		if !ok {
			var err error
			msg, err = json.Marshal(c.binding.Render(f))
			if err != nil {
				h.log.Error().Err(err).Str("view", name).Msg("Failed to encode view")
				continue
			}
			rendered[name] = msg
		}
		c.offer(msg)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		c.stop()
		delete(h.clients, c)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}

	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	c.stop()
}

// serve runs the client until its connection ends. initial is sent first.
func (h *Hub) serve(conn *websocket.Conn, b view.Binding, initial telemetry.Frame) {
	c := &client{
		conn:    conn,
		binding: b,
		send:    make(chan []byte, 1),
	}
	if msg, err := json.Marshal(b.Render(initial)); err == nil {
		c.offer(msg)
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}

	h.log.Debug().Str("view", b.Name()).Str("remote", conn.RemoteAddr().String()).Msg("Client connected")

	go c.writePump()
	c.readPump()

	h.unregister(c)
	h.log.Debug().Str("view", b.Name()).Msg("Client disconnected")
}

func (c *client) offer(msg []byte) {
	for {
		select {
		case c.send <- msg:
			return
		default:
		}

		select {
		case <-c.send:
		default:
		}
	}
}

func (c *client) stop() {
	c.once.Do(func() {
		close(c.send)
	})
}

// readPump discards client messages and returns when the peer goes away.
func (c *client) readPump() {
	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
