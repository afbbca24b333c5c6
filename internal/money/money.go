// Package money provides integer minor-unit amount primitives.
// All monetary values in the engine are ZAR cents; floats never enter
// a money path.
package money

import (
	"fmt"
	"strings"
)

// Cents is a monetary amount in minor currency units.
type Cents int64

// OneRand is the tolerance unit used by amount matching (R1 = 100 cents).
const OneRand Cents = 100

// Abs returns the absolute magnitude of the amount.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// WithinTolerance reports whether a is within +/- tol of b.
func WithinTolerance(a, b, tol Cents) bool {
	return (a - b).Abs() <= tol.Abs()
}

// WithinPercent reports whether a is within +/- pct percent of b.
// The comparison is done entirely in integer arithmetic: |a-b|*100 <= b*pct.
func WithinPercent(a, b Cents, pct int64) bool {
	if b < 0 {
		b = -b
	}
	diff := int64((a - b).Abs())
	return diff*100 <= int64(b)*pct
}

// PercentOrOneRand returns the larger of pct percent of base and R1,
// the tolerance band used by the near-exact amount tier.
func PercentOrOneRand(base Cents, pct int64) Cents {
	band := Cents(int64(base.Abs()) * pct / 100)
	if band < OneRand {
		return OneRand
	}
	return band
}

// FormatZAR renders the amount as a human-readable rand string,
// e.g. 400000 -> "R4,000.00". Used only for reasoning text, never for
// arithmetic.
func (c Cents) FormatZAR() string {
	neg := c < 0
	v := int64(c.Abs())
	rand := v / 100
	cents := v % 100

	digits := fmt.Sprintf("%d", rand)
	var b strings.Builder
	pre := len(digits) % 3
	if pre > 0 {
		b.WriteString(digits[:pre])
	}
	for i := pre; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%sR%s.%02d", sign, b.String(), cents)
}
