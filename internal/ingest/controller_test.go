package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketmesh/ticketmesh/internal/broker"
	"github.com/ticketmesh/ticketmesh/internal/ticket"
)

func newTestController(t *testing.T) (*Controller, *broker.Broker) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	b := broker.New(rdb, broker.DefaultKeys())
	return New(b, "test-api"), b
}

func TestSubmitRejectsTicketWithoutText(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.Submit(context.Background(), ticket.Ticket{})

	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmitAdmitsValidTicket(t *testing.T) {
	c, b := newTestController(t)
	ctx := context.Background()

	resp, err := c.Submit(ctx, ticket.Ticket{Subject: "my invoice is wrong"})

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.TicketID)
	assert.Equal(t, "accepted", resp.Status)
	assert.Contains(t, resp.StatusURL, resp.TicketID)

	status, err := b.GetStatus(ctx, resp.TicketID)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, ticket.StatusPending, status.Status)

	ids, err := b.ListAllIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, resp.TicketID)
}

func TestSubmitReleasesLockOnSuccess(t *testing.T) {
	c, b := newTestController(t)
	ctx := context.Background()

	_, err := c.Submit(ctx, ticket.Ticket{Body: "help"})
	require.NoError(t, err)

	ok, err := b.AcquireSubmitLock(ctx, "someone-else")
	require.NoError(t, err)
	assert.True(t, ok, "the submit lock must be released once Submit returns")
}

func TestSubmitPreservesCallerSuppliedTicketID(t *testing.T) {
	c, _ := newTestController(t)

	resp, err := c.Submit(context.Background(), ticket.Ticket{TicketID: "custom-id-1", Description: "issue"})

	require.NoError(t, err)
	assert.Equal(t, "custom-id-1", resp.TicketID)
}

func TestSubmitOverloadedWhenLockNeverFrees(t *testing.T) {
	c, b := newTestController(t)
	ctx := context.Background()

	ok, err := b.AcquireSubmitLock(ctx, "stuck-holder")
	require.NoError(t, err)
	require.True(t, ok)

	start := time.Now()
	_, err = c.Submit(ctx, ticket.Ticket{Body: "help"})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrOverloaded)
	assert.GreaterOrEqual(t, elapsed, 9*submitBackoffUnit, "should exhaust all backoff attempts before giving up")
}
