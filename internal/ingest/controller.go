// Package ingest implements ticket admission: validate, serialize on the
// submit lock, write initial status, and enqueue for a worker to pick up.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ticketmesh/ticketmesh/internal/broker"
	"github.com/ticketmesh/ticketmesh/internal/ticket"
)

// ErrValidation is returned when no text field is present on the payload.
var ErrValidation = errors.New("ingest: at least one of subject, body, or description is required")

// ErrOverloaded is returned when the submit lock could not be acquired
// after every retry attempt, signalling a transient-overload response to
// the caller (HTTP 429/503).
var ErrOverloaded = errors.New("ingest: submit lock exhausted, system is overloaded")

const (
	maxSubmitAttempts  = 10
	submitBackoffUnit  = 50 * time.Millisecond
)

// Controller admits tickets under the broker's submit lock.
type Controller struct {
	broker *broker.Broker
	holder string
	now    func() time.Time
}

// New builds a Controller. holder identifies this process as the lock
// holder for observability; it has no bearing on correctness since the
// lock is a plain mutex key.
func New(b *broker.Broker, holder string) *Controller {
	return &Controller{broker: b, holder: holder, now: time.Now}
}

// Submit runs the full admission protocol in section 4.F: validate,
// acquire the submit lock with linear backoff, write pending status, add
// to all-ids, enqueue, and release the lock on every exit path.
func (c *Controller) Submit(ctx context.Context, in ticket.Ticket) (*ticket.AcceptedResponse, error) {
	if !in.HasText() {
		return nil, ErrValidation
	}

	acquired, err := c.acquireWithBackoff(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrOverloaded
	}
	defer c.broker.ReleaseSubmitLock(ctx)

	id := in.TicketID
	if id == "" {
		id = c.broker.GenerateTicketID()
	}

	createdAt := c.now().Unix()
	in.TicketID = id
	in.CreatedAt = createdAt

	status := ticket.TicketStatus{
		TicketID:    id,
		Status:      ticket.StatusPending,
		Subject:     in.Subject,
		Body:        in.Body,
		Description: in.Description,
		CreatedAt:   createdAt,
	}
	if err := c.broker.SetStatus(ctx, id, status); err != nil {
		return nil, err
	}
	if err := c.broker.AddToAllIDs(ctx, id); err != nil {
		return nil, err
	}

	msg := ticket.QueueMessage{Ticket: in, CombinedText: in.CombinedText()}
	if err := c.broker.Enqueue(ctx, msg); err != nil {
		return nil, err
	}

	return &ticket.AcceptedResponse{
		TicketID:  id,
		Status:    "accepted",
		StatusURL: fmt.Sprintf("/api/v1/tickets/%s/status", id),
	}, nil
}



func (c *Controller) acquireWithBackoff(ctx context.Context) (bool, error) {
	for attempt := 0; attempt < maxSubmitAttempts; attempt++ {
		ok, err := c.broker.AcquireSubmitLock(ctx, c.holder)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if attempt == maxSubmitAttempts-1 {
			break
		}
		backoff := time.Duration(attempt+1) * submitBackoffUnit
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return false, nil
}
