package events

import "time"

// Event defines the contract for all store events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "SESSION_CREATED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// New builds a BaseEvent stamped with the current time.
func New(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now()}
}

const (
	SessionCreated   = "SESSION_CREATED"
	SessionDeleted   = "SESSION_DELETED"
	SessionRenamed   = "SESSION_RENAMED"
	SessionActivated = "SESSION_ACTIVATED"
	FilesIngested    = "FILES_INGESTED"
	FileDeleted      = "FILE_DELETED"
	SelectionChanged = "SELECTION_CHANGED"
	MessageAppended  = "MESSAGE_APPENDED"
	MessageRemoved   = "MESSAGE_REMOVED"
	TurnStarted      = "TURN_STARTED"
	TurnCompleted    = "TURN_COMPLETED"
	TurnFailed       = "TURN_FAILED"
)
