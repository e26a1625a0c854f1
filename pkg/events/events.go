// Package events provides event bus abstractions for the sales-intelligence
// data-integration core. It supports publishing and subscribing to domain
// events using RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event.
type EventType string

// Common event types
const (
	// Raw zone events
	EventTypeRawRecordIngested EventType = "lake.raw.record_ingested"
	EventTypeRawBatchIngested  EventType = "lake.raw.batch_ingested"

	// Canonical zone events
	EventTypeEntityMerged  EventType = "lake.canonical.entity_merged"
	EventTypeEntityCreated EventType = "lake.canonical.entity_created"
	EventTypeEntityUpdated EventType = "lake.canonical.entity_updated"

	// Serving zone events
	EventTypeServingRefreshRequested EventType = "lake.serving.refresh_requested"
	EventTypeServingRefreshed        EventType = "lake.serving.refreshed"

	// Sync pipeline events
	EventTypeSyncBatchStarted   EventType = "sync.batch.started"
	EventTypeSyncBatchCompleted EventType = "sync.batch.completed"
	EventTypeSyncBatchPartial   EventType = "sync.batch.partial"
	EventTypeSyncBatchFailed    EventType = "sync.batch.failed"
	EventTypeSyncJobQueued      EventType = "sync.job.queued"
	EventTypeSyncJobStarted     EventType = "sync.job.started"
	EventTypeSyncJobCompleted   EventType = "sync.job.completed"
	EventTypeSyncJobCancelled   EventType = "sync.job.cancelled"

	// Audit events
	EventTypeAuditRecorded EventType = "audit.recorded"
)

// Event represents a domain event.
type Event struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	Source      string                 `json:"source"`
	AggregateID string                 `json:"aggregate_id"`
	Version     int                    `json:"version"`
	Timestamp   time.Time              `json:"timestamp"`
	Data        map[string]interface{} `json:"data"`
	Metadata    map[string]string      `json:"metadata,omitempty"`
}

// NewEvent creates a new event. source identifies the integration or
// component that raised it (e.g. "odoo", "salesforce", "sync-worker").
func NewEvent(eventType EventType, source, aggregateID string, data map[string]interface{}) *Event {
	return &Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		Source:      source,
		AggregateID: aggregateID,
		Version:     1,
		Timestamp:   time.Now().UTC(),
		Data:        data,
		Metadata:    make(map[string]string),
	}
}

// WithMetadata adds metadata to the event.
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// WithVersion sets the event version.
func (e *Event) WithVersion(version int) *Event {
	e.Version = version
	return e
}

// Marshal serializes the event to JSON.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes an event from JSON.
func Unmarshal(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}

// Publisher defines the interface for publishing events.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	PublishBatch(ctx context.Context, events []*Event) error
	Close() error
}

// Subscriber defines the interface for subscribing to events.
type Subscriber interface {
	Subscribe(ctx context.Context, eventTypes []EventType, handler Handler) error
	Unsubscribe() error
	Close() error
}

// Handler is a function that handles an event.
type Handler func(ctx context.Context, event *Event) error

// EventBus combines Publisher and Subscriber interfaces.
type EventBus interface {
	Publisher
	Subscriber
}

// OutboxEntry represents an entry in the transactional outbox.
type OutboxEntry struct {
	ID        string    `json:"id" db:"id"`
	EventType EventType `json:"event_type" db:"event_type"`
	Payload   []byte    `json:"payload" db:"payload"`
	Published bool      `json:"published" db:"published"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewOutboxEntry creates a new outbox entry from an event.
func NewOutboxEntry(event *Event) (*OutboxEntry, error) {
	payload, err := event.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event for outbox: %w", err)
	}

	return &OutboxEntry{
		ID:        event.ID,
		EventType: event.Type,
		Payload:   payload,
		Published: false,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// OutboxRepository defines the interface for outbox persistence.
type OutboxRepository interface {
	Save(ctx context.Context, entry *OutboxEntry) error
	GetUnpublished(ctx context.Context, limit int) ([]*OutboxEntry, error)
	MarkPublished(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

