package controllers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rzbill/quarry/internal/runtime"
)

// EventsController upgrades clients onto the WebSocket feed of job
// lifecycle events.
type EventsController struct {
	rt       *runtime.Runtime
	upgrader websocket.Upgrader
}

// NewEventsController creates a new events controller.
func NewEventsController(rt *runtime.Runtime) *EventsController {
	return &EventsController{
		rt: rt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The REST surface is already open cross-origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers the event feed route with the given mux.
func (c *EventsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/events", c.handleEvents)
}

// handleEvents subscribes the client to every job lifecycle event.
// GET /v1/events (WebSocket)
func (c *EventsController) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c.rt.Events().Add(conn)
}
