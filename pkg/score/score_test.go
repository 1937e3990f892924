package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromFloatClamping(t *testing.T) {
	t.Run("clamps below zero", func(t *testing.T) {
		assert.Equal(t, 0.0, FromFloat(-0.3).Float64())
	})

	t.Run("clamps above one", func(t *testing.T) {
		assert.Equal(t, 1.0, FromFloat(1.7).Float64())
	})

	t.Run("passes through in-range values", func(t *testing.T) {
		assert.InDelta(t, 0.42, FromFloat(0.42).Float64(), 1e-9)
	})
}

func TestIsHigh(t *testing.T) {
	t.Run("exactly 0.5 is high", func(t *testing.T) {
		assert.True(t, FromFloat(0.5).IsHigh())
	})

	t.Run("below 0.5 is not high", func(t *testing.T) {
		assert.False(t, FromFloat(0.49).IsHigh())
	})
}

func TestExceedsNotifyThreshold(t *testing.T) {
	t.Run("exactly 0.8 does not exceed", func(t *testing.T) {
		assert.False(t, FromFloat(0.8).ExceedsNotifyThreshold())
	})

	t.Run("above 0.8 exceeds", func(t *testing.T) {
		assert.True(t, FromFloat(0.81).ExceedsNotifyThreshold())
	})
}

func TestWithTieBreakOrdering(t *testing.T) {
	t.Run("later createdAt sorts below earlier createdAt at equal urgency", func(t *testing.T) {
		s := FromFloat(0.9)

		earlier := s.WithTieBreak(1000)
		later := s.WithTieBreak(2000)

		assert.Less(t, later, earlier)
	})

	t.Run("tie break never changes relative order of distinct urgency scores", func(t *testing.T) {
		high := FromFloat(0.9).WithTieBreak(5000)
		low := FromFloat(0.1).WithTieBreak(1)

		assert.Greater(t, high, low)
	})
}

func TestParseThreshold(t *testing.T) {
	t.Run("parses a valid decimal string", func(t *testing.T) {
		s, err := ParseThreshold("0.8")
		assert.NoError(t, err)
		assert.InDelta(t, 0.8, s.Float64(), 1e-9)
	})

	t.Run("rejects a malformed string", func(t *testing.T) {
		_, err := ParseThreshold("not-a-number")
		assert.Error(t, err)
	})
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 1.0, Clamp01(5))
	assert.Equal(t, 0.0, Clamp01(-5))
}
