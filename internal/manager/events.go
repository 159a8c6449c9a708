package manager

import "time"

// Lifecycle event names.
const (
	EventLoadStart      = "load_start"
	EventLoadDone       = "load_done"
	EventLoadError      = "load_error"
	EventChatStart      = "chat_start"
	EventChatDone       = "chat_done"
	EventChatError      = "chat_error"
	EventUnload         = "unload"
	EventSessionUpdated = "session_updated"
)

// Event is one lifecycle notification. Time is set by the manager when the
// event is published.
type Event struct {
	Name    string
	ModelID string
	Time    time.Time
	Fields  map[string]any
}

// EventPublisher receives events synchronously from the manager's goroutine,
// so Publish must return quickly and must not call back into the Manager.
type EventPublisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// LogPublisher writes events to the package logger at debug level.
type LogPublisher struct{}

func (LogPublisher) Publish(e Event) {
	ev := logger.Debug().Str("event", e.Name).Str("model", e.ModelID).Time("at", e.Time)
	if len(e.Fields) > 0 {
		ev = ev.Fields(e.Fields)
	}
	ev.Msg("manager event")
}

// Publishers fans an event out to several publishers in order.
type Publishers []EventPublisher

func (ps Publishers) Publish(e Event) {
	for _, p := range ps {
		if p != nil {
			p.Publish(e)
		}
	}
}
