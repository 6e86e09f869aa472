// Package rational implements exact rational arithmetic for pattern time.
//
// Pattern queries walk arcs across arbitrarily many cycles during a long
// live-coding session; floating point begin/end times drift over that
// timescale, so all pattern-side time math is done with exact fractions
// instead. No repo in the retrieved pack implements rational arithmetic,
// so this wraps math/big.Rat directly rather than hand-rolling GCD
// reduction — math/big is the standard library's answer to this exact
// problem.
package rational

import (
	"fmt"
	"math/big"
)

// Rational is an exact fraction, always kept reduced with a positive
// denominator (math/big.Rat maintains that invariant internally).
type Rational struct {
	r big.Rat
}

// New returns num/den reduced. Panics if den == 0, matching the
// precondition the rest of the pattern engine assumes (den>0 per spec).
func New(num, den int64) Rational {
	if den == 0 {
		panic("rational: zero denominator")
	}
	var out Rational
	out.r.SetFrac64(num, den)
	return out
}

// FromInt returns n/1.
func FromInt(n int64) Rational {
	return New(n, 1)
}

// Zero is the additive identity.
var Zero = FromInt(0)

// One is the multiplicative identity.
var One = FromInt(1)

// FromFloat64 converts f to the exact rational value of the float. It is
// used wherever a float enters time math: FastCat's float child weights
// and the controller's wall-clock cycle positions.
func FromFloat64(f float64) Rational {
	var out Rational
	out.r.SetFloat64(f)
	return out
}

// Num and Den return the reduced numerator and denominator.
func (a Rational) Num() int64 { return a.r.Num().Int64() }
func (a Rational) Den() int64 { return a.r.Denom().Int64() }

func (a Rational) Add(b Rational) Rational {
	var out Rational
	out.r.Add(&a.r, &b.r)
	return out
}

func (a Rational) Sub(b Rational) Rational {
	var out Rational
	out.r.Sub(&a.r, &b.r)
	return out
}

func (a Rational) Mul(b Rational) Rational {
	var out Rational
	out.r.Mul(&a.r, &b.r)
	return out
}

// Div returns a/b. Panics if b is zero.
func (a Rational) Div(b Rational) Rational {
	if b.r.Sign() == 0 {
		panic("rational: division by zero")
	}
	var out Rational
	out.r.Quo(&a.r, &b.r)
	return out
}

func (a Rational) Neg() Rational {
	var out Rational
	out.r.Neg(&a.r)
	return out
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Rational) Cmp(b Rational) int {
	return a.r.Cmp(&b.r)
}

func (a Rational) Equal(b Rational) bool { return a.Cmp(b) == 0 }
func (a Rational) Less(b Rational) bool  { return a.Cmp(b) < 0 }
func (a Rational) LessEqual(b Rational) bool {
	return a.Cmp(b) <= 0
}
func (a Rational) Greater(b Rational) bool { return a.Cmp(b) > 0 }

func (a Rational) IsZero() bool { return a.r.Sign() == 0 }
func (a Rational) Sign() int    { return a.r.Sign() }

// Float64 converts to the nearest representable float64, for feeding
// audio-rate math (frame counts, Hz, etc.) where exactness is no longer
// required once a time value leaves the pattern engine.
func (a Rational) Float64() float64 {
	f, _ := a.r.Float64()
	return f
}

// Floor returns the greatest integer <= a, as a Rational (denominator 1).
func (a Rational) Floor() Rational {
	num := new(big.Int).Set(a.r.Num())
	den := a.r.Denom()
	q := new(big.Int)
	m := new(big.Int)
	q.DivMod(num, den, m) // Euclidean division: m is always >= 0
	return New(q.Int64(), 1)
}

// Ceil returns the least integer >= a.
func (a Rational) Ceil() Rational {
	f := a.Floor()
	if f.Equal(a) {
		return f
	}
	return f.Add(One)
}

// FloorInt returns Floor as a plain int, for indexing cycles.
func (a Rational) FloorInt() int64 {
	return a.Floor().Num()
}

// Min and Max are convenience helpers used throughout TimeSpan clipping.
func Min(a, b Rational) Rational {
	if a.Less(b) {
		return a
	}
	return b
}

func Max(a, b Rational) Rational {
	if a.Greater(b) {
		return a
	}
	return b
}

func (a Rational) String() string {
	if a.Den() == 1 {
		return fmt.Sprintf("%d", a.Num())
	}
	return fmt.Sprintf("%d/%d", a.Num(), a.Den())
}
