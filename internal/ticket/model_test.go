package ticket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasText(t *testing.T) {
	t.Run("all fields empty", func(t *testing.T) {
		assert.False(t, Ticket{}.HasText())
	})

	t.Run("whitespace only does not count", func(t *testing.T) {
		assert.False(t, Ticket{Subject: "   ", Body: "\t"}.HasText())
	})

	t.Run("subject alone is enough", func(t *testing.T) {
		assert.True(t, Ticket{Subject: "help"}.HasText())
	})

	t.Run("description alone is enough", func(t *testing.T) {
		assert.True(t, Ticket{Description: "my invoice is wrong"}.HasText())
	})
}

func TestCombinedText(t *testing.T) {
	t.Run("joins populated fields in subject/body/description order", func(t *testing.T) {
		tk := Ticket{Subject: "Billing issue", Body: "invoice #123", Description: "please refund"}
		assert.Equal(t, "Billing issue invoice #123 please refund", tk.CombinedText())
	})

	t.Run("skips empty fields without extra separators", func(t *testing.T) {
		tk := Ticket{Subject: "outage", Description: "still down"}
		assert.Equal(t, "outage still down", tk.CombinedText())
	})

	t.Run("empty ticket yields empty string", func(t *testing.T) {
		assert.Equal(t, "", Ticket{}.CombinedText())
	})
}

func TestDeriveUrgencyLabel(t *testing.T) {
	t.Run("exactly 0.5 is high", func(t *testing.T) {
		assert.Equal(t, UrgencyHigh, DeriveUrgencyLabel(0.5))
	})

	t.Run("below 0.5 is low", func(t *testing.T) {
		assert.Equal(t, UrgencyLow, DeriveUrgencyLabel(0.49))
	})

	t.Run("1.0 is high", func(t *testing.T) {
		assert.Equal(t, UrgencyHigh, DeriveUrgencyLabel(1.0))
	})
}
