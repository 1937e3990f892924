package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketmesh/ticketmesh/internal/ticket"
)

func TestPreviewCollapsesWhitespaceAndTruncates(t *testing.T) {
	t.Run("collapses newlines and repeated spaces", func(t *testing.T) {
		assert.Equal(t, "a b c", preview("a\n  b\tc"))
	})

	t.Run("truncates beyond PreviewLen runes", func(t *testing.T) {
		long := strings.Repeat("x", PreviewLen+50)
		got := preview(long)
		assert.Len(t, []rune(got), PreviewLen)
	})

	t.Run("leaves a short string untouched", func(t *testing.T) {
		assert.Equal(t, "short text", preview("short text"))
	})
}

func TestNotifyHighUrgencyPostsWebhookPayload(t *testing.T) {
	received := make(chan Notification, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n Notification
		require.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		received <- n
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New(nil, server.URL)
	n.NotifyHighUrgency(context.Background(), "t1", 0.9, "Billing", "the invoice is very late and urgent")

	select {
	case got := <-received:
		assert.Equal(t, "t1", got.TicketID)
		assert.Equal(t, 0.9, got.Urgency)
		assert.Equal(t, "Billing", got.Category)
	case <-time.After(time.Second):
		t.Fatal("expected a webhook POST")
	}
}

func TestNotifyHighUrgencySkipsWebhookWhenURLEmpty(t *testing.T) {
	n := New(nil, "")
	n.NotifyHighUrgency(context.Background(), "t1", 0.9, "Billing", "urgent")
}

func TestReadyPublisherIsNilSafe(t *testing.T) {
	var p *ReadyPublisher
	assert.NotPanics(t, func() {
		p = NewReadyPublisher(nil)
		p.PublishReady(ticket.TicketStatus{TicketID: "t1"})
	})
}

func TestAggregateIDFallsBackForNonUUIDTicketID(t *testing.T) {
	a := aggregateID("not-a-uuid")
	b := aggregateID("not-a-uuid")
	assert.NotEqual(t, a, b, "non-UUID ticket ids get a fresh random aggregate id each call")
}

func TestAggregateIDIsStableForUUIDTicketID(t *testing.T) {
	const id = "11111111-1111-1111-1111-111111111111"
	a := aggregateID(id)
	b := aggregateID(id)
	assert.Equal(t, a, b)
	assert.Equal(t, id, a.String())
}
