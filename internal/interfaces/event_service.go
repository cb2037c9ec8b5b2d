package interfaces

import "context"

// EventType represents different event types on the internal bus
type EventType string

const (
	// EventEventsUpserted fires after a reconciliation run persisted events.
	// Payload: []*models.Event (the upserted set). Cache layers subscribe
	// to this and invalidate every window that could contain them.
	EventEventsUpserted EventType = "events_upserted"

	// EventRefreshTriggered requests an immediate scheduler pass
	EventRefreshTriggered EventType = "refresh_triggered"

	// EventTaskDeadLettered fires when a refresh task exhausts its retries.
	// Payload: *models.DeadLetter.
	EventTaskDeadLettered EventType = "task_dead_lettered"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the in-process pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
