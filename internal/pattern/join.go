package pattern

import (
	"github.com/klanglive/klang/internal/rational"
	"github.com/klanglive/klang/internal/voicedata"
)

// InnerBind implements structure bind / innerJoin: query the outer
// pattern, and for each outer event query f(event) over the outer
// event's own timespan unchanged, clipping results to whole ∩ query_arc.
func InnerBind(outer Pattern, f func(Event) Pattern) Pattern {
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		var out []Event
		for _, oe := range outer.Query(arc, ctx) {
			bound := oe.Part
			if oe.Whole != nil {
				bound = *oe.Whole
			}
			clipped, ok := bound.ClipTo(arc)
			if !ok {
				continue
			}
			inner := f(oe)
			for _, ie := range inner.Query(clipped, ctx) {
				part, ok := ie.Part.ClipTo(clipped)
				if !ok {
					continue
				}
				out = append(out, ie.withPart(part))
			}
		}
		return out
	}
	return newPattern(outer.NumSteps(), outer.Weight(), q)
}

// SqueezeBind implements squeezeJoin: inner's [0,1) is mapped onto each
// outer event's whole span, querying via t -> (t-b)/d and mapping
// results back via e -> b+e*d.
func SqueezeBind(outer Pattern, f func(Event) Pattern) Pattern {
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		var out []Event
		for _, oe := range outer.Query(arc, ctx) {
			whole := oe.Part
			if oe.Whole != nil {
				whole = *oe.Whole
			}
			d := whole.Duration()
			if d.IsZero() {
				continue
			}
			clipped, ok := whole.ClipTo(arc)
			if !ok {
				continue
			}
			b := whole.Begin
			toInner := func(t rational.Rational) rational.Rational { return t.Sub(b).Div(d) }
			fromInner := func(t rational.Rational) rational.Rational { return b.Add(t.Mul(d)) }
			inner := f(oe)
			for _, ie := range inner.Query(span(toInner(clipped.Begin), toInner(clipped.End)), ctx) {
				out = append(out, ie.mapTime(fromInner))
			}
		}
		return out
	}
	return newPattern(outer.NumSteps(), outer.Weight(), q)
}

// point builds a zero-width arc for sampling a pattern's value at t.
func point(t rational.Rational) TimeSpan { return span(t, t) }

// ApplyControl is the control-application outer join: outer structure is
// preserved, the control pattern is sampled at each outer event's onset
// (a point query), and its data is merged into the outer event's data,
// right wins.
func ApplyControl(outer, control Pattern) Pattern {
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		events := outer.Query(arc, ctx)
		out := make([]Event, len(events))
		for i, oe := range events {
			data := oe.Data
			if ctrl := control.Query(point(oe.Part.Begin), ctx); len(ctrl) > 0 {
				data = voicedata.Merge(data, ctrl[0].Data)
			}
			oe.Data = data
			out[i] = oe
		}
		return out
	}
	return newPattern(outer.NumSteps(), outer.Weight(), q)
}

// LiftNumericField samples a continuous control pattern (sine, saw,
// rand) at each outer onset and writes the sampled value into a named
// VoiceData field via setter, rather than averaging it over the event's
// span.
func LiftNumericField(outer, control Pattern, setter func(voicedata.VoiceData, float64) voicedata.VoiceData) Pattern {
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		events := outer.Query(arc, ctx)
		out := make([]Event, len(events))
		for i, oe := range events {
			if ctrl := control.Query(point(oe.Part.Begin), ctx); len(ctrl) > 0 && ctrl[0].Data.Value != nil {
				oe.Data = setter(oe.Data, *ctrl[0].Data.Value)
			}
			out[i] = oe
		}
		return out
	}
	return newPattern(outer.NumSteps(), outer.Weight(), q)
}

// LiftValue combines two numeric (Value-field) patterns via inner join:
// the left pattern's structure wins, and the right pattern is sampled at
// each left onset, per spec.md's "value lift" for scalar arithmetic.
func LiftValue(a, b Pattern, combine func(x, y float64) float64) Pattern {
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		events := a.Query(arc, ctx)
		out := make([]Event, 0, len(events))
		for _, ae := range events {
			if ae.Data.Value == nil {
				out = append(out, ae)
				continue
			}
			bEvents := b.Query(point(ae.Part.Begin), ctx)
			if len(bEvents) == 0 || bEvents[0].Data.Value == nil {
				out = append(out, ae)
				continue
			}
			v := combine(*ae.Data.Value, *bEvents[0].Data.Value)
			ae.Data.Value = &v
			out = append(out, ae)
		}
		return out
	}
	return newPattern(a.NumSteps(), a.Weight(), q)
}

func Add(a, b Pattern) Pattern {
	return LiftValue(a, b, func(x, y float64) float64 { return x + y })
}

func Mul(a, b Pattern) Pattern {
	return LiftValue(a, b, func(x, y float64) float64 { return x * y })
}
