package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"claude-relay/internal/protocol"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second

	sendBuffer = 256
)

// Hub fans encoded events out to every connected WebSocket client and keeps
// a short replay of recent frames for clients that connect late.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool
	replay  *RingBuffer
}

// NewHub creates a hub that replays up to replaySize frames to new clients.
func NewHub(replaySize int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger.With("component", "hub"),
		clients: make(map[*client]bool),
		replay:  NewRingBuffer(replaySize),
	}
}

// Emit encodes ev and broadcasts it to all clients. It satisfies the
// emitter interfaces of the session and summary packages.
func (h *Hub) Emit(key string, ev protocol.Event) error {
	data, err := protocol.Encode(key, ev)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Status frames are transient; replaying them would show stale spinners.
	if ev.Type() != protocol.TypeClaudeStatus {
		h.replay.Write(data)
	}
	h.broadcastLocked(data)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastLocked(data []byte) {
	for c := range h.clients {
		c.trySend(data)
	}
}

// register adds c and queues the replay while holding the lock so no event
// can slip between the replay and the live stream.
func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, frame := range h.replay.ReadAll() {
		c.trySend(frame)
	}
	h.clients[c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	handler func(c *client, raw []byte)
}

func newClient(conn *websocket.Conn, hub *Hub, handler func(*client, []byte)) *client {
	return &client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		hub:     hub,
		handler: handler,
	}
}

// trySend queues data without blocking. Slow clients drop frames.
// Callers must hold the hub lock so send is not closed concurrently.
func (c *client) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("client buffer full, dropping frame")
	}
}

// reply sends a frame to this client only.
func (c *client) reply(data []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.hub.clients[c] {
		c.trySend(data)
	}
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		c.handler(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
