// Package pattern implements the pattern query engine (spec component
// C/D): patterns as functions from a time arc to a list of events, and
// the algebraic combinators built over that single abstraction.
package pattern

import (
	"github.com/klanglive/klang/internal/rational"
	"github.com/klanglive/klang/internal/voicedata"
)

// Pattern is a function arc -> [event], queried with a context. Every
// combinator in this package returns a Pattern built from this one
// interface, the same "interface wrapping a function value" composition
// the teacher uses for effects.Effector/Chain.
type Pattern interface {
	Query(arc TimeSpan, ctx *QueryContext) []Event
	Weight() float64
	NumSteps() rational.Rational
}

type queryFunc func(arc TimeSpan, ctx *QueryContext) []Event

type patternFunc struct {
	query    queryFunc
	weight   float64
	numSteps rational.Rational
}

func (p *patternFunc) Query(arc TimeSpan, ctx *QueryContext) []Event {
	return p.query(arc, ctx)
}
func (p *patternFunc) Weight() float64               { return p.weight }
func (p *patternFunc) NumSteps() rational.Rational { return p.numSteps }

func newPattern(numSteps rational.Rational, weight float64, q queryFunc) Pattern {
	return &patternFunc{query: q, weight: weight, numSteps: numSteps}
}

// Weighted overrides a pattern's Weight, the sequence-step-weight syntax
// ("bd@3 sn") relies on when used as a FastCat child.
func Weighted(w float64, p Pattern) Pattern {
	return newPattern(p.NumSteps(), w, func(arc TimeSpan, ctx *QueryContext) []Event {
		return p.Query(arc, ctx)
	})
}

// Silence is the empty pattern: it answers every query with no events,
// the base case every combinator must stay panic-free against (§4.1
// failure mode).
func Silence() Pattern {
	return newPattern(rational.One, 1.0, func(TimeSpan, *QueryContext) []Event { return nil })
}

// Pure (atomic) emits one whole = [sam, sam+1) per integer cycle
// intersecting the query arc, clipped to the arc to produce part.
func Pure(data voicedata.VoiceData) Pattern {
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		var out []Event
		for _, cyc := range spanCycles(arc) {
			s := sam(cyc.Begin)
			whole := span(s, s.Add(rational.One))
			out = append(out, Event{Part: cyc, Whole: &whole, Data: data})
		}
		return out
	}
	return newPattern(rational.One, 1.0, q)
}

// Stack is the union of all children's events for the arc.
func Stack(children ...Pattern) Pattern {
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		var out []Event
		for _, c := range children {
			out = append(out, c.Query(arc, ctx)...)
		}
		return out
	}
	return newPattern(rational.One, 1.0, q)
}

// splitQueries wraps p so every query arc it receives is first split at
// cycle boundaries, the precondition fastGap-style per-cycle combinators
// need.
func splitQueries(p Pattern) Pattern {
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		var out []Event
		for _, cyc := range spanCycles(arc) {
			out = append(out, p.Query(cyc, ctx)...)
		}
		return out
	}
	return newPattern(p.NumSteps(), p.Weight(), q)
}

// fastGap squeezes one whole cycle of p into the first 1/factor of each
// cycle, leaving the remainder silent — the building block compressSpan
// (and so FastCat) is built from.
func fastGap(factor rational.Rational, p Pattern) Pattern {
	if factor.Sign() <= 0 {
		return Silence()
	}
	r := factor
	if r.Less(rational.One) {
		r = rational.One
	}
	munge := func(t rational.Rational) rational.Rational {
		s := sam(t)
		m := s.Add(cyclePos(t).Mul(r))
		return rational.Min(m, s.Add(rational.One))
	}
	inner := splitQueries(newPattern(p.NumSteps(), p.Weight(), func(arc TimeSpan, ctx *QueryContext) []Event {
		b := sam(arc.Begin)
		mb := munge(arc.Begin)
		me := munge(arc.End)
		if mb.Equal(b.Add(rational.One)) {
			return nil
		}
		events := p.Query(span(mb, me), ctx)
		out := make([]Event, len(events))
		back := func(t rational.Rational) rational.Rational {
			return b.Add(t.Sub(b).Div(r))
		}
		for i, e := range events {
			out[i] = e.mapTime(back)
		}
		return out
	}))
	return inner
}

// Late shifts a pattern's onsets forward in time by offset; Early is the
// negative case. Both query the inverse-shifted arc and shift results
// back.
func Late(offset rational.Rational, p Pattern) Pattern {
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		events := p.Query(arc.Shift(offset.Neg()), ctx)
		out := make([]Event, len(events))
		for i, e := range events {
			out[i] = e.shiftTime(offset)
		}
		return out
	}
	return newPattern(p.NumSteps(), p.Weight(), q)
}

func Early(offset rational.Rational, p Pattern) Pattern {
	return Late(offset.Neg(), p)
}

// compressSpan maps p into the sub-interval [b,e) of every cycle,
// repeating every cycle; FastCat stacks one compressSpan per child.
func compressSpan(b, e rational.Rational, p Pattern) Pattern {
	if b.Greater(e) || b.Greater(rational.One) || e.Greater(rational.One) ||
		b.Sign() < 0 || e.Sign() < 0 {
		return Silence()
	}
	d := e.Sub(b)
	if d.IsZero() {
		return Silence()
	}
	return Late(b, fastGap(rational.One.Div(d), p))
}

// FastCat (sequence) splits the cycle into segments proportional to each
// child's Weight and time-scales each child into its segment.
func FastCat(children ...Pattern) Pattern {
	if len(children) == 0 {
		return Silence()
	}
	// Convert each weight to an exact Rational before dividing, rather
	// than dividing as float64 first — weight/total as a float loses the
	// exactness pattern time depends on (1.0/3.0 is not exactly 1/3).
	weights := make([]rational.Rational, len(children))
	total := rational.Zero
	for i, c := range children {
		weights[i] = rational.FromFloat64(c.Weight())
		total = total.Add(weights[i])
	}
	if total.IsZero() {
		return Silence()
	}
	stacked := make([]Pattern, 0, len(children))
	begin := rational.Zero
	for i, c := range children {
		frac := weights[i].Div(total)
		end := rational.Min(begin.Add(frac), rational.One)
		stacked = append(stacked, compressSpan(begin, end, c))
		begin = end
	}
	p := Stack(stacked...)
	return newPattern(total, 1.0, func(arc TimeSpan, ctx *QueryContext) []Event {
		return p.Query(arc, ctx)
	})
}

// SlowCat lets children occupy successive whole cycles in round-robin,
// each child perceiving its own cycle count advance only when it is
// chosen again (matching Tidal's "<a b c>" cat semantics).
func SlowCat(children ...Pattern) Pattern {
	n := int64(len(children))
	if n == 0 {
		return Silence()
	}
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		var out []Event
		for _, cyc := range spanCycles(arc) {
			c := sam(cyc.Begin).FloorInt()
			i := ((c % n) + n) % n
			k := (c - i) / n
			offset := rational.FromInt(c - k)
			shifted := cyc.Shift(offset.Neg())
			for _, e := range children[i].Query(shifted, ctx) {
				out = append(out, e.shiftTime(offset))
			}
		}
		return out
	}
	return newPattern(rational.One, 1.0, q)
}

// Fast queries the child with arc*r and rescales event times by 1/r.
// Negative r is folded to its absolute value: reversal (rev) is not a
// combinator this engine implements.
func Fast(r rational.Rational, p Pattern) Pattern {
	if r.IsZero() {
		return Silence()
	}
	if r.Sign() < 0 {
		r = r.Neg()
	}
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		events := p.Query(arc.Scale(r), ctx)
		out := make([]Event, len(events))
		inv := rational.One.Div(r)
		for i, e := range events {
			out[i] = e.scaleTime(inv)
		}
		return out
	}
	return newPattern(p.NumSteps(), p.Weight(), q)
}

func Slow(r rational.Rational, p Pattern) Pattern {
	return Fast(rational.One.Div(r), p)
}

// Hurry is Fast with the additional tempo-coupled scaling spec.md §4.1
// calls for. Exact semantics of hurry vs fast for non-tempo fields is an
// open question (spec.md §9); this resolves it by scaling Density (the
// nearest tempo-coupled per-event field in this VoiceData schema) by r
// when set, recorded in DESIGN.md.
func Hurry(r rational.Rational, p Pattern) Pattern {
	fast := Fast(r, p)
	rf := r.Float64()
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		events := fast.Query(arc, ctx)
		out := make([]Event, len(events))
		for i, e := range events {
			if e.Data.Density != nil {
				v := *e.Data.Density * rf
				e.Data.Density = &v
			}
			out[i] = e
		}
		return out
	}
	return newPattern(p.NumSteps(), p.Weight(), q)
}
