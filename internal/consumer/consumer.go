// Package consumer implements the pop-next and list-queue read paths
// consumers use to retrieve completed tickets.
package consumer

import (
	"context"
	"fmt"
	"sort"

	"github.com/ticketmesh/ticketmesh/internal/broker"
	"github.com/ticketmesh/ticketmesh/internal/ticket"
)

// ErrEmpty is returned by PopNextReady when the ready index has no
// completed tickets waiting.
var ErrEmpty = fmt.Errorf("consumer: ready index is empty")

// ErrNotFound is returned when a requested ticket id has no status
// record (unknown or expired).
var ErrNotFound = fmt.Errorf("consumer: ticket not found")

// Endpoint serves the read-side of the pipeline.
type Endpoint struct {
	broker *broker.Broker
}

// New builds an Endpoint over the shared broker.
func New(b *broker.Broker) *Endpoint {
	return &Endpoint{broker: b}
}

// PopNextReady pops and returns the highest-urgency completed ticket.
func (e *Endpoint) PopNextReady(ctx context.Context) (*ticket.TicketStatus, error) {
	id, found, err := e.broker.ReadyPopMax(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrEmpty
	}
	status, err := e.broker.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, ErrNotFound
	}
	return status, nil
}

// GetStatus returns the status record for a single ticket.
func (e *Endpoint) GetStatus(ctx context.Context, id string) (*ticket.TicketStatus, error) {
	status, err := e.broker.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, ErrNotFound
	}
	return status, nil
}

// ListQueue returns every known ticket, sorted: completed tickets first by
// descending urgency_score then ascending created_at, followed by every
// other status ascending by created_at.
func (e *Endpoint) ListQueue(ctx context.Context) ([]ticket.TicketStatus, error) {
	ids, err := e.broker.ListAllIDs(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]ticket.TicketStatus, 0, len(ids))
	for _, id := range ids {
		s, err := e.broker.GetStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if s == nil {
			continue // expired between ListAllIDs and GetStatus
		}
		statuses = append(statuses, *s)
	}

	sort.SliceStable(statuses, func(i, j int) bool {
		a, b := statuses[i], statuses[j]
		aCompleted := a.Status == ticket.StatusCompleted
		bCompleted := b.Status == ticket.StatusCompleted

		if aCompleted != bCompleted {
			return aCompleted // completed tickets sort first
		}
		if aCompleted && bCompleted {
			aScore, bScore := scoreOf(a), scoreOf(b)
			if aScore != bScore {
				return aScore > bScore // descending urgency
			}
			return a.CreatedAt < b.CreatedAt // ascending created_at tie-break
		}
		return a.CreatedAt < b.CreatedAt
	})

	return statuses, nil
}

func scoreOf(s ticket.TicketStatus) float64 {
	if s.UrgencyScore == nil {
		return 0
	}
	return *s.UrgencyScore
}
