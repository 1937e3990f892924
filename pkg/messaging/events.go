package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types published over the ticket lifecycle.
const (
	EventTypeTicketSubmitted  = "ticket.submitted"
	EventTypeTicketClassified = "ticket.classified"
	EventTypeTicketCompleted  = "ticket.completed"
	EventTypeTicketEscalated  = "ticket.escalated"
	EventTypeTicketFlood      = "ticket.flood"
)

// Event is the base event structure
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     int             `json:"version"`
	Data        json.RawMessage `json:"data"`
	Metadata    EventMetadata   `json:"metadata"`
}

// EventMetadata contains event metadata
type EventMetadata struct {
	CorrelationID string `json:"correlation_id"`
	CausationID   string `json:"causation_id"`
	UserID        string `json:"user_id,omitempty"`
	Source        string `json:"source"`
}

// TicketSubmittedEvent is emitted when a ticket clears admission.
type TicketSubmittedEvent struct {
	TicketID  string `json:"ticket_id"`
	CreatedAt int64  `json:"created_at"`
}

// TicketClassifiedEvent is emitted once the classification stage assigns
// a category and urgency score.
type TicketClassifiedEvent struct {
	TicketID   string  `json:"ticket_id"`
	Category   string  `json:"category"`
	Urgency    float64 `json:"urgency_score"`
	UsedScorer bool    `json:"used_scorer"`
}

// TicketCompletedEvent is emitted when a ticket reaches a terminal
// status with an assigned agent.
type TicketCompletedEvent struct {
	TicketID      string  `json:"ticket_id"`
	Category      string  `json:"category"`
	Urgency       float64 `json:"urgency_score"`
	AssignedAgent string  `json:"assigned_agent"`
}

// TicketEscalatedEvent is emitted when a completed ticket's urgency score
// exceeds the notification threshold.
type TicketEscalatedEvent struct {
	TicketID    string  `json:"ticket_id"`
	Urgency     float64 `json:"urgency_score"`
	Category    string  `json:"category"`
	TextPreview string  `json:"text_preview"`
}

// TicketFloodEvent is emitted when the dedup window flags a ticket as
// part of a flash flood and routes it to the master incident status.
type TicketFloodEvent struct {
	TicketID string `json:"ticket_id"`
	Category string `json:"category"`
}

// NewEvent creates a new event
func NewEvent(eventType string, aggregateID uuid.UUID, data interface{}, metadata EventMetadata) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: aggregateID,
		Timestamp:   time.Now(),
		Version:     1,
		Data:        dataBytes,
		Metadata:    metadata,
	}, nil
}

// ParseEventData parses event data into the specified type
func ParseEventData[T any](event *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// EventStore interface for event sourcing
type EventStore interface {
	Append(ctx interface{}, aggregateID uuid.UUID, events []Event, expectedVersion int) error
	Load(ctx interface{}, aggregateID uuid.UUID) ([]Event, error)
	LoadFrom(ctx interface{}, aggregateID uuid.UUID, fromVersion int) ([]Event, error)
}

// EventBus interface for publishing events
type EventBus interface {
	Publish(ctx interface{}, event Event) error
	Subscribe(eventType string, handler func(Event) error) error
}

// Snapshot represents an aggregate snapshot
type Snapshot struct {
	AggregateID uuid.UUID       `json:"aggregate_id"`
	Version     int             `json:"version"`
	State       json.RawMessage `json:"state"`
	Timestamp   time.Time       `json:"timestamp"`
}
