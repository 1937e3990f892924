// Package ticket defines the core data model shared by every stage of the
// ingestion and processing pipeline: ingest controller, broker, worker, and
// consumer endpoint all operate on these types rather than raw JSON.
package ticket

import (
	"strings"
	"time"
)

// Status is a ticket's position in the pending -> processing -> {completed,
// master_incident} lifecycle. There are no transitions out of a terminal
// status.
type Status string

const (
	StatusPending        Status = "pending"
	StatusProcessing     Status = "processing"
	StatusCompleted      Status = "completed"
	StatusMasterIncident Status = "master_incident"
)

// Category is the classification a Scorer (or the baseline fallback)
// assigns to a ticket.
type Category string

const (
	CategoryBilling   Category = "Billing"
	CategoryTechnical Category = "Technical"
	CategoryLegal     Category = "Legal"
)

// UrgencyLabel is a pure function of UrgencyScore: high iff score >= 0.5.
type UrgencyLabel string

const (
	UrgencyHigh UrgencyLabel = "high"
	UrgencyLow  UrgencyLabel = "low"
)

// UnassignedAgent is the sentinel assigned_agent value used when the agent
// router has no eligible agent for a category.
const UnassignedAgent = "unassigned"

// StatusTTL is how long a status record survives in the broker after its
// last write.
const StatusTTL = 7 * 24 * time.Hour

// Ticket is the immutable payload a client submits at ingest time.
type Ticket struct {
	TicketID    string `json:"ticket_id"`
	Subject     string `json:"subject,omitempty"`
	Body        string `json:"body,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// HasText reports whether at least one free-text field is non-empty, the
// admission precondition enforced by the ingest controller.
func (t Ticket) HasText() bool {
	return strings.TrimSpace(t.Subject) != "" ||
		strings.TrimSpace(t.Body) != "" ||
		strings.TrimSpace(t.Description) != ""
}

// CombinedText space-joins every non-empty text field, in subject/body/
// description order. It is computed once at admission and carried through
// the queue message so the worker never has to re-derive it.
func (t Ticket) CombinedText() string {
	parts := make([]string, 0, 3)
	for _, f := range []string{t.Subject, t.Body, t.Description} {
		if strings.TrimSpace(f) != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

// QueueMessage is what the ingest controller enqueues and a worker
// dequeues: the ticket plus its precomputed combined text.
type QueueMessage struct {
	Ticket
	CombinedText string `json:"combined_text"`
}

// TicketStatus is the mutable record keyed by ticket_id. Fields past CreatedAt
// are only populated once the worker has classified the ticket.
type TicketStatus struct {
	TicketID      string       `json:"ticket_id"`
	Status        Status       `json:"status"`
	Subject       string       `json:"subject,omitempty"`
	Body          string       `json:"body,omitempty"`
	Description   string       `json:"description,omitempty"`
	CreatedAt     int64        `json:"created_at"`
	Category      Category     `json:"category,omitempty"`
	UrgencyScore  *float64     `json:"urgency_score,omitempty"`
	UrgencyLabel  UrgencyLabel `json:"urgency_label,omitempty"`
	AssignedAgent string       `json:"assigned_agent,omitempty"`
}

// DeriveUrgencyLabel implements invariant I5: urgency_label is a pure
// function of urgency_score.
func DeriveUrgencyLabel(score float64) UrgencyLabel {
	if score >= 0.5 {
		return UrgencyHigh
	}
	return UrgencyLow
}

// AcceptedResponse is the body the ingest controller returns on a
// successful 202 admission.
type AcceptedResponse struct {
	TicketID  string `json:"ticket_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}
