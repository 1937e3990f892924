// Package worker implements the processing worker pool: dequeue, classify,
// dedup-check, route, and write the final status and ready-index entry
// for each ticket.
package worker

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ticketmesh/ticketmesh/internal/agents"
	"github.com/ticketmesh/ticketmesh/internal/audit"
	"github.com/ticketmesh/ticketmesh/internal/broker"
	"github.com/ticketmesh/ticketmesh/internal/classify"
	"github.com/ticketmesh/ticketmesh/internal/dedup"
	"github.com/ticketmesh/ticketmesh/internal/metrics"
	"github.com/ticketmesh/ticketmesh/internal/notify"
	"github.com/ticketmesh/ticketmesh/internal/ticket"
	"github.com/ticketmesh/ticketmesh/pkg/score"
)

// DequeueTimeout is the poll timeout between empty dequeues, letting the
// loop check ctx.Done() for graceful shutdown.
const DequeueTimeout = 5 * time.Second

// NotifyThreshold is the urgency score above which a completed ticket
// triggers the notifier.
const NotifyThreshold = 0.8

// ReadyPublisher receives a completed ticket's status as soon as it is
// added to the ready index, feeding the consumer endpoint's WebSocket
// fan-out. A nil ReadyPublisher is valid and simply drops the event.
type ReadyPublisher interface {
	PublishReady(status ticket.TicketStatus)
}

// Pool runs Concurrency worker goroutines, each looping over the same
// broker queue, coordinated by an errgroup so any unexpected goroutine
// exit cancels the whole pool and propagates the first error.
type Pool struct {
	broker      *broker.Broker
	classifier  *classify.Classifier
	dedupWindow *dedup.Window
	router      *agents.Router
	auditStore  *audit.Store
	notifier    *notify.Notifier
	metrics     *metrics.Sink
	readyPub    ReadyPublisher
	concurrency int

	inflight singleflight.Group
}

// Config configures a Pool.
type Config struct {
	Broker      *broker.Broker
	Classifier  *classify.Classifier
	DedupWindow *dedup.Window
	Router      *agents.Router
	AuditStore  *audit.Store // optional
	Notifier    *notify.Notifier
	Metrics     *metrics.Sink // optional, may be nil
	ReadyPub    ReadyPublisher // optional
	Concurrency int
}

// New builds a Pool from Config.
func New(cfg Config) *Pool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{
		broker:      cfg.Broker,
		classifier:  cfg.Classifier,
		dedupWindow: cfg.DedupWindow,
		router:      cfg.Router,
		auditStore:  cfg.AuditStore,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		readyPub:    cfg.ReadyPub,
		concurrency: concurrency,
	}
}

// Run starts Concurrency worker loops and blocks until ctx is cancelled or
// one of them returns an unexpected error.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		g.Go(func() error {
			return p.loop(ctx)
		})
	}
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := p.broker.Dequeue(ctx, DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("worker: dequeue error: %v", err)
			continue
		}
		if msg == nil {
			continue // poll timeout, loop and check ctx again
		}

		p.processWithSingleflight(ctx, *msg)
	}
}

// processWithSingleflight collapses concurrent in-process attempts at the
// same ticket id into a single processTicket call, a fast-path layered on
// top of the distributed processing lock (which still governs
// cross-process exclusivity).
func (p *Pool) processWithSingleflight(ctx context.Context, msg ticket.QueueMessage) {
	if msg.TicketID == "" {
		log.Printf("worker: dropping message with no ticket_id")
		return
	}
	_, _, _ = p.inflight.Do(msg.TicketID, func() (interface{}, error) {
		p.processTicket(ctx, msg)
		return nil, nil
	})
}

func (p *Pool) processTicket(ctx context.Context, msg ticket.QueueMessage) {
	id := msg.TicketID
	text := msg.CombinedText
	if text == "" {
		text = msg.Ticket.CombinedText()
	}

	acquired, err := p.broker.AcquireProcessingLock(ctx, id, "worker")
	if err != nil {
		log.Printf("worker: acquire lock %s: %v", id, err)
		return
	}
	if !acquired {
		// Another worker owns this ticket; drop silently per spec.
		return
	}
	defer p.broker.ReleaseProcessingLock(ctx, id)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker: panic processing %s: %v", id, r)
			p.writeDefensiveCompleted(ctx, msg)
		}
	}()

	processingStatus := ticket.TicketStatus{
		TicketID:    id,
		Status:      ticket.StatusProcessing,
		Subject:     msg.Subject,
		Body:        msg.Body,
		Description: msg.Description,
		CreatedAt:   msg.CreatedAt,
	}
	p.writeStatus(ctx, processingStatus)

	outcome := p.classifier.Classify(ctx, text)
	if p.metrics.Enabled() {
		p.metrics.ClassificationLatency(string(outcome.Category), outcome.UsedScorer, outcome.LatencyMs)
	}

	flood := p.dedupCheck(id, text)
	if p.metrics.Enabled() {
		p.metrics.DedupFloodCount(id, flood)
	}

	if flood {
		urgencyVal := outcome.Urgency.Float64()
		p.writeStatus(ctx, ticket.TicketStatus{
			TicketID:     id,
			Status:       ticket.StatusMasterIncident,
			Subject:      msg.Subject,
			Body:         msg.Body,
			Description:  msg.Description,
			CreatedAt:    msg.CreatedAt,
			Category:     outcome.Category,
			UrgencyScore: &urgencyVal,
			UrgencyLabel: ticket.DeriveUrgencyLabel(urgencyVal),
		})
		return
	}

	assignedAgent := ticket.UnassignedAgent
	agentName, ok, err := p.router.Select(ctx, outcome.Category)
	if err != nil {
		log.Printf("worker: router select for %s: %v", id, err)
	} else if ok {
		assignedAgent = agentName
	}

	urgencyVal := outcome.Urgency.Float64()
	completed := ticket.TicketStatus{
		TicketID:      id,
		Status:        ticket.StatusCompleted,
		Subject:       msg.Subject,
		Body:          msg.Body,
		Description:   msg.Description,
		CreatedAt:     msg.CreatedAt,
		Category:      outcome.Category,
		UrgencyScore:  &urgencyVal,
		UrgencyLabel:  ticket.DeriveUrgencyLabel(urgencyVal),
		AssignedAgent: assignedAgent,
	}
	p.writeStatus(ctx, completed)

	tieBreakScore := outcome.Urgency.WithTieBreak(msg.CreatedAt)
	if err := p.broker.ReadyAdd(ctx, id, tieBreakScore); err != nil {
		log.Printf("worker: ready add %s: %v", id, err)
	} else if p.readyPub != nil {
		p.readyPub.PublishReady(completed)
	}

	if outcome.Urgency.ExceedsNotifyThreshold() && p.notifier != nil {
		p.notifier.NotifyHighUrgency(ctx, id, urgencyVal, string(outcome.Category), text)
	}
}

func (p *Pool) dedupCheck(id, text string) bool {
	if p.dedupWindow == nil {
		return false
	}
	return p.dedupWindow.IsFlashFlood(id, text)
}

func (p *Pool) writeStatus(ctx context.Context, status ticket.TicketStatus) {
	if err := p.broker.SetStatus(ctx, status.TicketID, status); err != nil {
		log.Printf("worker: set status %s: %v", status.TicketID, err)
		return
	}
	if p.auditStore != nil {
		if err := p.auditStore.Record(ctx, status); err != nil {
			log.Printf("worker: audit record %s: %v", status.TicketID, err)
		}
	}
}

func (p *Pool) writeDefensiveCompleted(ctx context.Context, msg ticket.QueueMessage) {
	zero := score.FromFloat(0).Float64()
	p.writeStatus(ctx, ticket.TicketStatus{
		TicketID:      msg.TicketID,
		Status:        ticket.StatusCompleted,
		Subject:       msg.Subject,
		Body:          msg.Body,
		Description:   msg.Description,
		CreatedAt:     msg.CreatedAt,
		Category:      ticket.CategoryTechnical,
		UrgencyScore:  &zero,
		UrgencyLabel:  ticket.DeriveUrgencyLabel(zero),
		AssignedAgent: ticket.UnassignedAgent,
	})
}
