// Package events is the structured envelope the audit store wraps every
// ticket status transition in before it is persisted, carrying
// correlation/trace context alongside the typed transition payload.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	TicketSubmitted  = "ticket.submitted"
	TicketProcessing = "ticket.processing"
	TicketClassified = "ticket.classified"
	TicketCompleted  = "ticket.completed"
	TicketEscalated  = "ticket.escalated"
	TicketFlooded    = "ticket.flooded"
	AgentAssigned    = "agent.assigned"
)

// BaseEvent contains common event fields
type BaseEvent struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	Data          json.RawMessage `json:"data"`
	Metadata      Metadata        `json:"metadata"`
}

// Metadata contains event metadata
type Metadata struct {
	CorrelationID string            `json:"correlation_id"`
	CausationID   string            `json:"causation_id"`
	UserID        string            `json:"user_id,omitempty"`
	Source        string            `json:"source"`
	TraceID       string            `json:"trace_id,omitempty"`
	SpanID        string            `json:"span_id,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// TicketData is a point-in-time snapshot of a ticket's status record, the
// payload carried by every ticket.* event type.
type TicketData struct {
	TicketID      string  `json:"ticket_id"`
	Status        string  `json:"status"`
	Category      string  `json:"category,omitempty"`
	UrgencyScore  *float64 `json:"urgency_score,omitempty"`
	UrgencyLabel  string  `json:"urgency_label,omitempty"`
	AssignedAgent string  `json:"assigned_agent,omitempty"`
}

// NewEvent creates a new event
func NewEvent(eventType string, aggregateID uuid.UUID, aggregateType string, data interface{}, metadata Metadata) (*BaseEvent, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &BaseEvent{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Timestamp:     time.Now(),
		Version:       1,
		Data:          dataBytes,
		Metadata:      metadata,
	}, nil
}

// ParseData parses event data into the given type
func (e *BaseEvent) ParseData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// WithCorrelation sets correlation and causation IDs
func (m *Metadata) WithCorrelation(correlationID, causationID string) *Metadata {
	m.CorrelationID = correlationID
	m.CausationID = causationID
	return m
}

// WithTracing sets trace context
func (m *Metadata) WithTracing(traceID, spanID string) *Metadata {
	m.TraceID = traceID
	m.SpanID = spanID
	return m
}
