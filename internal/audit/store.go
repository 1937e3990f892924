// Package audit archives the worker's ticket status writes (processing,
// completed, master_incident) to Postgres so history survives the
// broker's 7-day Redis TTL. The pending status written at admission is not
// archived. It is best-effort: a
// write failure here is logged and never fails the ticket itself, since
// Redis remains the authoritative live status.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ticketmesh/ticketmesh/internal/ticket"
	"github.com/ticketmesh/ticketmesh/shared/events"
)

// Store archives ticket status transitions to Postgres.
type Store struct {
	db *sql.DB
}

// New wraps an existing *sql.DB. Callers own the connection's lifecycle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema is the DDL for the audit table, applied by migrations tooling
// outside this package.
const Schema = `
CREATE TABLE IF NOT EXISTS ticket_audit (
	id              BIGSERIAL PRIMARY KEY,
	ticket_id       TEXT NOT NULL,
	status          TEXT NOT NULL,
	category        TEXT,
	urgency_score   DOUBLE PRECISION,
	assigned_agent  TEXT,
	event           JSONB NOT NULL,
	recorded_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ticket_audit_ticket_id_idx ON ticket_audit (ticket_id);
`

// eventTypeForStatus maps a ticket status to the event type recorded
// alongside it, so a consumer reading the envelope back can tell what
// transition occurred without re-deriving it from the status string.
func eventTypeForStatus(status ticket.Status) string {
	switch status {
	case ticket.StatusPending:
		return events.TicketSubmitted
	case ticket.StatusProcessing:
		return events.TicketProcessing
	case ticket.StatusMasterIncident:
		return events.TicketFlooded
	case ticket.StatusCompleted:
		return events.TicketCompleted
	default:
		return events.TicketProcessing
	}
}

// Record appends one transition. The worker calls it after each of its
// own status writes, so a ticket's history is the ordered set of rows with
// its ticket_id, starting at processing; the ingest controller's pending
// write is not recorded. Each row also carries a structured event envelope
// (aggregate id, type, metadata) built from shared/events, so the
// history can be replayed or exported without reshaping the typed
// columns.
func (s *Store) Record(ctx context.Context, status ticket.TicketStatus) error {
	var urgency sql.NullFloat64
	if status.UrgencyScore != nil {
		urgency = sql.NullFloat64{Float64: *status.UrgencyScore, Valid: true}
	}

	aggregateID, err := uuid.Parse(status.TicketID)
	if err != nil {
		aggregateID = uuid.New()
	}
	event, err := events.NewEvent(eventTypeForStatus(status.Status), aggregateID, "ticket",
		events.TicketData{
			TicketID:      status.TicketID,
			Status:        string(status.Status),
			Category:      string(status.Category),
			UrgencyScore:  status.UrgencyScore,
			UrgencyLabel:  string(status.UrgencyLabel),
			AssignedAgent: status.AssignedAgent,
		},
		events.Metadata{Source: "ticketmesh-worker"},
	)
	if err != nil {
		return fmt.Errorf("audit: build event for %s: %w", status.TicketID, err)
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: marshal event for %s: %w", status.TicketID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ticket_audit (ticket_id, status, category, urgency_score, assigned_agent, event, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		status.TicketID, status.Status, string(status.Category), urgency, status.AssignedAgent, eventJSON, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("audit: record %s: %w", status.TicketID, err)
	}
	return nil
}

// AuditEntry is one row of a ticket's recorded history.
type AuditEntry struct {
	Status        string    `json:"status"`
	Category      string    `json:"category,omitempty"`
	UrgencyScore  *float64  `json:"urgency_score,omitempty"`
	AssignedAgent string    `json:"assigned_agent,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// History returns every recorded transition for a ticket, oldest first.
func (s *Store) History(ctx context.Context, ticketID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, category, urgency_score, assigned_agent, recorded_at
		 FROM ticket_audit WHERE ticket_id = $1 ORDER BY recorded_at ASC`,
		ticketID,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: history %s: %w", ticketID, err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var category, agent sql.NullString
		var urgency sql.NullFloat64
		if err := rows.Scan(&e.Status, &category, &urgency, &agent, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("audit: scan history %s: %w", ticketID, err)
		}
		e.Category = category.String
		e.AssignedAgent = agent.String
		if urgency.Valid {
			v := urgency.Float64
			e.UrgencyScore = &v
		}
		entries = append(entries, e)
	}
	return entries, nil
}
