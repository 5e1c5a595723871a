package navigation

import "time"

// EventType names a session event.
type EventType string

const (
	EventStarted       EventType = "started"
	EventStepAdvanced  EventType = "stepAdvanced"
	EventArrived       EventType = "arrived"
	EventStopped       EventType = "stopped"
	EventPositionError EventType = "positionError"
	EventUpdated       EventType = "updated"
)

// Event is emitted after every session transition, in production order.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	At        time.Time `json:"at"`
	Snapshot  Snapshot  `json:"snapshot"`
	// Announcement is the text spoken with this event, if any.
	Announcement string `json:"announcement,omitempty"`
	// FromStep is the index before a stepAdvanced transition.
	FromStep  int    `json:"fromStep,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// Listener receives session events. Listeners run on the goroutine that
// caused the transition and must not call Start, Stop or OnPosition* on the
// emitting session.
type Listener interface {
	SessionEvent(e Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(e Event)

func (f ListenerFunc) SessionEvent(e Event) { f(e) }
