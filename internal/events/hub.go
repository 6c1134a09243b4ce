// Package events broadcasts job lifecycle events to WebSocket subscribers.
// The hub is a best-effort fanout: events are ephemeral notifications and a
// slow or disconnected client never affects the engine.
package events

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rzbill/quarry/internal/queue"
	logpkg "github.com/rzbill/quarry/pkg/log"
)

const (
	// sendBuffer is the per-client event backlog. When a client falls this
	// far behind, further events are dropped for that client.
	sendBuffer = 256
	// writeTimeout bounds each WebSocket write so a dead peer errors out
	// instead of wedging its writer goroutine.
	writeTimeout = 10 * time.Second
)

// Hub fans queue engine events out to connected WebSocket clients. It
// implements queue.Emitter. Each client gets a buffered send channel drained
// by its own writer goroutine, so Emit never blocks on a slow client.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan queue.Event
	logger  logpkg.Logger
}

// New creates an empty hub.
func New(logger logpkg.Logger) *Hub {
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	return &Hub{
		clients: make(map[*websocket.Conn]chan queue.Event),
		logger:  logger.WithComponent("events"),
	}
}

// Add registers a client connection and owns its lifecycle: a writer
// goroutine drains the client's send channel, and a read loop detects
// disconnects and removes the client.
func (h *Hub) Add(conn *websocket.Conn) {
	ch := make(chan queue.Event, sendBuffer)
	h.mu.Lock()
	h.clients[conn] = ch
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("events client connected", logpkg.Int("clients", n))

	// Writer: sole owner of writes on this connection. Exits when remove
	// closes the channel or a write fails.
	go func() {
		for ev := range ch {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				h.remove(conn)
				_ = conn.Close()
				return
			}
		}
		_ = conn.Close()
	}()

	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// remove unregisters the client and closes its send channel, stopping the
// writer. Safe to call more than once per connection.
func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	ch, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(ch)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("events client disconnected", logpkg.Int("clients", n))
	}
}

// Emit queues the event for every connected client without blocking. Clients
// whose backlog is full miss the event.
func (h *Hub) Emit(ev queue.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
