package pattern

import "github.com/klanglive/klang/internal/rational"

// WithQueryTime transforms the query arc before handing it to p.
func WithQueryTime(f func(rational.Rational) rational.Rational, p Pattern) Pattern {
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		return p.Query(span(f(arc.Begin), f(arc.End)), ctx)
	}
	return newPattern(p.NumSteps(), p.Weight(), q)
}

// WithHapTime transforms every returned event's times.
func WithHapTime(f func(rational.Rational) rational.Rational, p Pattern) Pattern {
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		events := p.Query(arc, ctx)
		out := make([]Event, len(events))
		for i, e := range events {
			out[i] = e.mapTime(f)
		}
		return out
	}
	return newPattern(p.NumSteps(), p.Weight(), q)
}

// Zoom plays back p's [a,b) arc across a full cycle: it composes a
// withQueryTime(t -> a+t(b-a)) with the matching withHapTime(t ->
// (t-a)/(b-a)), the pairing spec.md §8's zoom law requires so neither
// half is ever applied alone.
func Zoom(a, b rational.Rational, p Pattern) Pattern {
	d := b.Sub(a)
	qf := func(t rational.Rational) rational.Rational { return a.Add(t.Mul(d)) }
	hf := func(t rational.Rational) rational.Rational { return t.Sub(a).Div(d) }
	return WithHapTime(hf, WithQueryTime(qf, p))
}
