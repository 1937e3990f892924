package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketmesh/ticketmesh/internal/ticket"
)

func newTestBroker(t *testing.T) *Broker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(rdb, DefaultKeys())
}

func TestSubmitLockIsExclusive(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	ok, err := b.AcquireSubmitLock(ctx, "holder-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.AcquireSubmitLock(ctx, "holder-b")
	require.NoError(t, err)
	assert.False(t, ok, "a second acquire should fail while the lock is held")

	require.NoError(t, b.ReleaseSubmitLock(ctx))

	ok, err = b.AcquireSubmitLock(ctx, "holder-b")
	require.NoError(t, err)
	assert.True(t, ok, "releasing should let another holder acquire")
}

func TestProcessingLockIsPerTicket(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	ok1, err := b.AcquireProcessingLock(ctx, "t1", "worker-a")
	require.NoError(t, err)
	assert.True(t, ok1)

	ok2, err := b.AcquireProcessingLock(ctx, "t2", "worker-a")
	require.NoError(t, err)
	assert.True(t, ok2, "locks for different tickets are independent")

	ok3, err := b.AcquireProcessingLock(ctx, "t1", "worker-b")
	require.NoError(t, err)
	assert.False(t, ok3, "a second worker cannot acquire an already-held ticket lock")
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Enqueue(ctx, ticket.QueueMessage{Ticket: ticket.Ticket{TicketID: "t1"}}))
	require.NoError(t, b.Enqueue(ctx, ticket.QueueMessage{Ticket: ticket.Ticket{TicketID: "t2"}}))

	first, err := b.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "t1", first.TicketID)

	second, err := b.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "t2", second.TicketID)
}

func TestDequeueTimesOutWhenEmpty(t *testing.T) {
	b := newTestBroker(t)

	msg, err := b.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestSetGetStatusRoundTrip(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	urgency := 0.75
	status := ticket.TicketStatus{
		TicketID:     "t1",
		Status:       ticket.StatusCompleted,
		Category:     ticket.CategoryBilling,
		UrgencyScore: &urgency,
	}
	require.NoError(t, b.SetStatus(ctx, "t1", status))

	got, err := b.GetStatus(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, status.Status, got.Status)
	assert.Equal(t, status.Category, got.Category)
	assert.InDelta(t, urgency, *got.UrgencyScore, 1e-9)
}

func TestGetStatusMissingReturnsNil(t *testing.T) {
	b := newTestBroker(t)

	got, err := b.GetStatus(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAllIDsSet(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.AddToAllIDs(ctx, "t1"))
	require.NoError(t, b.AddToAllIDs(ctx, "t2"))

	ids, err := b.ListAllIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, ids)
}

func TestReadyIndexPopsHighestScoreFirst(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.ReadyAdd(ctx, "low", 0.2))
	require.NoError(t, b.ReadyAdd(ctx, "high", 0.9))
	require.NoError(t, b.ReadyAdd(ctx, "mid", 0.5))

	id, found, err := b.ReadyPopMax(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "high", id)

	id, found, err = b.ReadyPopMax(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "mid", id)
}

func TestReadyPopMaxEmpty(t *testing.T) {
	b := newTestBroker(t)

	id, found, err := b.ReadyPopMax(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, id)
}

func TestQueueLength(t *testing.T) {
	b := newTestBroker(t)
	ctx := context.Background()

	n, err := b.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, b.Enqueue(ctx, ticket.QueueMessage{Ticket: ticket.Ticket{TicketID: "t1"}}))
	require.NoError(t, b.Enqueue(ctx, ticket.QueueMessage{Ticket: ticket.Ticket{TicketID: "t2"}}))

	n, err = b.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGenerateTicketIDIsUnique(t *testing.T) {
	b := newTestBroker(t)

	a := b.GenerateTicketID()
	c := b.GenerateTicketID()
	assert.NotEqual(t, a, c)
}
