package queue

// EventType identifies a job lifecycle transition.
type EventType string

const (
	EventPut       EventType = "put"
	EventPopped    EventType = "popped"
	EventHeartbeat EventType = "heartbeat"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventReclaimed EventType = "reclaimed"
	EventCanceled  EventType = "canceled"
)

// Event is a lifecycle notification emitted after the transition committed.
// Events are ephemeral: missing one never affects engine state.
type Event struct {
	Type   EventType `json:"type"`
	JobID  string    `json:"job_id"`
	Queue  string    `json:"queue,omitempty"`
	Worker string    `json:"worker,omitempty"`
	AtMs   int64     `json:"at_ms"`
}

// Emitter receives lifecycle events. Implementations must not block.
type Emitter interface {
	Emit(Event)
}

func (e *Engine) emit(ev Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}
