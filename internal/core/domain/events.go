package domain

// EventType enumerates the lifecycle transitions published on the event bus
// and POSTed to webhooks.
type EventType string

const (
	EventStreamUp        EventType = "StreamUp"
	EventStreamDown      EventType = "StreamDown"
	EventPublishUp       EventType = "PublishUp"
	EventPublishDown     EventType = "PublishDown"
	EventSubscribeUp     EventType = "SubscribeUp"
	EventSubscribeDown   EventType = "SubscribeDown"
	EventCascadePushUp   EventType = "CascadePushUp"
	EventCascadePushDown EventType = "CascadePushDown"
	EventCascadePullUp   EventType = "CascadePullUp"
	EventCascadePullDown EventType = "CascadePullDown"
)

// EventCategory is the outer "type" field of the webhook body:
// "Stream" for whole-stream lifecycle, "Forward" for session-level events.
type EventCategory string

const (
	CategoryStream  EventCategory = "Stream"
	CategoryForward EventCategory = "Forward"
)

// StreamSnapshot is the "stream" payload object of a lifecycle event.
type StreamSnapshot struct {
	ID        string `json:"id"`
	Publish   int    `json:"publish"`
	Subscribe int    `json:"subscribe"`
	Cascade   int    `json:"cascade"`
	Session   string `json:"session,omitempty"`
}

// Event is the lifecycle event payload published on the EventBus and POSTed
// to configured webhooks verbatim.
type Event struct {
	Type   EventCategory  `json:"type"`
	Event  EventType      `json:"event"`
	Stream StreamSnapshot `json:"stream"`
}

// categoryFor classifies an EventType into its outer "type" field.
func categoryFor(e EventType) EventCategory {
	switch e {
	case EventStreamUp, EventStreamDown:
		return CategoryStream
	default:
		return CategoryForward
	}
}

// NewEvent builds an Event with the category derived from kind.
func NewEvent(kind EventType, stream StreamSnapshot) Event {
	return Event{Type: categoryFor(kind), Event: kind, Stream: stream}
}
