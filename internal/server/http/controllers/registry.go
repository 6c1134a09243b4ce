package controllers

import (
	"net/http"

	"github.com/rzbill/quarry/internal/runtime"
	queuesvc "github.com/rzbill/quarry/internal/services/queues"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes
// and manages the lifecycle of individual controllers.
type ControllerRegistry struct {
	general *GeneralController
	queues  *QueuesController
	events  *EventsController
}

// NewControllerRegistry creates a new controller registry.
//
// It initializes all controllers with the provided runtime and service.
func NewControllerRegistry(rt *runtime.Runtime, svc *queuesvc.Service) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		queues:  NewQueuesController(rt, svc),
		events:  NewEventsController(rt),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
//
// This method sets up all HTTP endpoints: general endpoints (health,
// Prometheus metrics), the queue operation endpoints, and the WebSocket
// event feed.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.queues.RegisterRoutes(mux)
	r.events.RegisterRoutes(mux)
}
