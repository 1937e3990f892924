// Package notify implements the outbound high-urgency notification sink:
// always publishes to NATS, and additionally POSTs to a configured
// webhook when one is set.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ticketmesh/ticketmesh/internal/ticket"
	"github.com/ticketmesh/ticketmesh/pkg/messaging"
)

// Subject is the NATS subject high-urgency events are published to.
const Subject = "tickets.high_urgency"

// ReadySubject is the NATS subject a completed ticket's full status is
// published to, letting any number of api processes fan it out to their
// own WebSocket clients without sharing worker memory.
const ReadySubject = "tickets.ready"

// PreviewLen is the maximum length of the text preview included in a
// notification.
const PreviewLen = 200

// Notification is the payload delivered to both NATS and the webhook.
type Notification struct {
	TicketID    string  `json:"ticket_id"`
	Urgency     float64 `json:"urgency_score"`
	Category    string  `json:"category"`
	TextPreview string  `json:"text_preview"`
	Timestamp   int64   `json:"timestamp"`
}

// Notifier publishes high-urgency ticket events.
type Notifier struct {
	nats       *messaging.Client
	webhookURL string
	httpClient *http.Client
}

// New builds a Notifier. webhookURL may be empty, which suppresses the
// HTTP call while NATS publication still happens.
func New(nats *messaging.Client, webhookURL string) *Notifier {
	return &Notifier{
		nats:       nats,
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// NotifyHighUrgency is invoked by the worker whenever a ticket's urgency
// score exceeds the notification threshold (0.8). Failures here are
// logged and never propagate back to the caller: a missed notification
// does not fail the ticket.
func (n *Notifier) NotifyHighUrgency(ctx context.Context, ticketID string, urgency float64, category, text string) {
	notification := Notification{
		TicketID:    ticketID,
		Urgency:     urgency,
		Category:    category,
		TextPreview: preview(text),
		Timestamp:   time.Now().Unix(),
	}

	if n.nats != nil {
		event, err := messaging.NewEvent(messaging.EventTypeTicketEscalated, aggregateID(ticketID), messaging.TicketEscalatedEvent{
			TicketID:    ticketID,
			Urgency:     urgency,
			Category:    category,
			TextPreview: notification.TextPreview,
		}, messaging.EventMetadata{Source: "ticketmesh-worker"})
		if err != nil {
			log.Printf("notify: build escalation event for %s: %v", ticketID, err)
		} else if err := n.nats.Publish(ctx, Subject, event); err != nil {
			log.Printf("notify: nats publish failed for %s: %v", ticketID, err)
		}
	}

	if n.webhookURL == "" {
		return
	}
	if err := n.postWebhook(ctx, notification); err != nil {
		log.Printf("notify: webhook post failed for %s: %v", ticketID, err)
	}
}

func (n *Notifier) postWebhook(ctx context.Context, notification Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// ReadyPublisher publishes a completed ticket's status to ReadySubject,
// satisfying the worker package's ReadyPublisher interface over NATS so
// worker and api processes can run independently.
type ReadyPublisher struct {
	nats *messaging.Client
}

// NewReadyPublisher builds a ReadyPublisher over an existing NATS client.
func NewReadyPublisher(nats *messaging.Client) *ReadyPublisher {
	return &ReadyPublisher{nats: nats}
}

// PublishReady publishes status to ReadySubject. A publish failure is
// logged only: a dropped WebSocket push never fails the ticket, since
// GetStatus and PopNextReady remain authoritative.
func (p *ReadyPublisher) PublishReady(status ticket.TicketStatus) {
	if p.nats == nil {
		return
	}
	if err := p.nats.Publish(context.Background(), ReadySubject, status); err != nil {
		log.Printf("notify: publish ready %s: %v", status.TicketID, err)
	}
}

// aggregateID derives an event aggregate id from a ticket id, falling
// back to a fresh random id when the ticket id isn't itself a UUID (a
// caller-supplied non-UUID ticket_id is valid per the ingest contract).
func aggregateID(ticketID string) uuid.UUID {
	if id, err := uuid.Parse(ticketID); err == nil {
		return id
	}
	return uuid.New()
}

// preview collapses newlines and truncates to PreviewLen runes.
func preview(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) > PreviewLen {
		return string(runes[:PreviewLen])
	}
	return collapsed
}
