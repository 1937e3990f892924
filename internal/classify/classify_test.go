package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ticketmesh/ticketmesh/internal/ticket"
)

type stubScorer struct {
	category ticket.Category
	urgency  float64
	delay    time.Duration
	err      error
}

func (s stubScorer) Score(ctx context.Context, text string) (ticket.Category, float64, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return "", 0, s.err
	}
	return s.category, s.urgency, nil
}

func TestBaselinePrecedence(t *testing.T) {
	t.Run("legal outranks billing and technical keywords", func(t *testing.T) {
		cat, _ := Baseline("I need a lawyer about my invoice, the api is broken")
		assert.Equal(t, ticket.CategoryLegal, cat)
	})

	t.Run("billing outranks technical", func(t *testing.T) {
		cat, _ := Baseline("my invoice payment failed and the login is broken")
		assert.Equal(t, ticket.CategoryBilling, cat)
	})

	t.Run("defaults to technical with no keyword match", func(t *testing.T) {
		cat, _ := Baseline("hello there, just saying hi")
		assert.Equal(t, ticket.CategoryTechnical, cat)
	})

	t.Run("urgent keyword drives urgency to 1", func(t *testing.T) {
		_, urgency := Baseline("this is urgent, the system is down")
		assert.Equal(t, 1.0, urgency)
	})
}

func TestClassifyUsesScorerWhenFast(t *testing.T) {
	c := New(stubScorer{category: ticket.CategoryBilling, urgency: 0.6}, nil)

	outcome := c.Classify(context.Background(), "invoice question")

	assert.True(t, outcome.UsedScorer)
	assert.Equal(t, ticket.CategoryBilling, outcome.Category)
	assert.InDelta(t, 0.6, outcome.Urgency.Float64(), 1e-9)
}

func TestClassifyFallsBackOnScorerError(t *testing.T) {
	c := New(stubScorer{err: errors.New("scorer exploded")}, nil)

	outcome := c.Classify(context.Background(), "the api is down, urgent")

	assert.False(t, outcome.UsedScorer)
	assert.Equal(t, ticket.CategoryTechnical, outcome.Category)
	assert.True(t, outcome.Urgency.IsHigh())
}

func TestClassifyKeepsSlowScorerResult(t *testing.T) {
	c := New(stubScorer{category: ticket.CategoryTechnical, urgency: 0.2, delay: LatencyThreshold + 50*time.Millisecond}, nil)

	outcome := c.Classify(context.Background(), "login is broken")

	assert.True(t, outcome.UsedScorer, "a call slower than the latency threshold still returns the Scorer's answer; the breaker only records it as a failure")
}

func TestBreakerOpensAfterThreeFailures(t *testing.T) {
	c := New(stubScorer{err: errors.New("down")}, nil)

	for i := 0; i < 3; i++ {
		c.Classify(context.Background(), "ticket text")
	}

	assert.Equal(t, "open", c.BreakerState().String())
}

func TestBaselineScorerNeverErrors(t *testing.T) {
	var s BaselineScorer
	cat, urgency, err := s.Score(context.Background(), "urgent billing invoice dispute")

	assert.NoError(t, err)
	assert.Equal(t, ticket.CategoryBilling, cat)
	assert.Equal(t, 1.0, urgency)
}
