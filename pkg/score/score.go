// Package score provides a fixed-precision wrapper around urgency scores so
// clamping and the ready-index tie-break encoding don't accumulate float
// drift across repeated writes.
package score

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Score is a value clamped to [0, 1], backed by decimal.Decimal so
// comparisons against the 0.5 and 0.8 thresholds never suffer float
// rounding at the boundary.
type Score struct {
	value decimal.Decimal
}

var (
	zero = decimal.NewFromInt(0)
	one  = decimal.NewFromInt(1)
	half = decimal.NewFromFloat(0.5)
	high = decimal.NewFromFloat(0.8)
)

// FromFloat builds a Score from a raw Scorer or baseline output, clamping
// it into [0, 1].
//
//	0.1 + 0.2 != 0.3 in float, so clamp on the decimal representation
func FromFloat(f float64) Score {
	d := decimal.NewFromFloat(f)
	if d.LessThan(zero) {
		d = zero
	}
	if d.GreaterThan(one) {
		d = one
	}
	return Score{value: d}
}

// Float64 returns the float64 representation for JSON encoding and for the
// broker's sorted-set score argument.
func (s Score) Float64() float64 {
	f, _ := s.value.Float64()
	return f
}

// IsHigh reports whether the score meets the urgency_label "high"
// threshold (invariant I5: a pure function of the score).
func (s Score) IsHigh() bool {
	return s.value.GreaterThanOrEqual(half)
}

// ExceedsNotifyThreshold reports whether the score passes the 0.8
// notification cutoff.
func (s Score) ExceedsNotifyThreshold() bool {
	return s.value.GreaterThan(high)
}

// String renders the score for logging.
func (s Score) String() string {
	return s.value.StringFixed(4)
}

// WithTieBreak encodes createdAt into the low-order digits of the score so
// the ready index's max-score pop resolves ties by ascending created_at: a later ticket
// with an identical urgency_score sorts fractionally below an earlier one.
// The raw urgency_score is always stored separately and is never recovered
// from this encoded value.
func (s Score) WithTieBreak(createdAt int64) float64 {
	penalty := decimal.NewFromInt(createdAt).Mul(decimal.NewFromFloat(1e-15))
	return s.value.Sub(penalty).InexactFloat64()
}

// Clamp01 is a convenience guard for call sites that already hold a float
// and only need the clamped value, without constructing a Score.
func Clamp01(f float64) float64 {
	return FromFloat(f).Float64()
}

// ParseThreshold parses a config-supplied threshold string ("0.8") into a
// Score, used when the notification threshold becomes configurable.
func ParseThreshold(s string) (Score, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Score{}, fmt.Errorf("invalid threshold %q: %w", s, err)
	}
	return Score{value: d}, nil
}
