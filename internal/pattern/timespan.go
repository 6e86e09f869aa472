package pattern

import "github.com/klanglive/klang/internal/rational"

// TimeSpan is a half-open interval of cycle time, [Begin, End). Duration
// is always >= 0; zero-width spans are used for point queries (control
// application sampling an onset).
type TimeSpan struct {
	Begin rational.Rational
	End   rational.Rational
}

func span(b, e rational.Rational) TimeSpan { return TimeSpan{Begin: b, End: e} }

func (t TimeSpan) Duration() rational.Rational { return t.End.Sub(t.Begin) }

// Shift translates both ends by offset.
func (t TimeSpan) Shift(offset rational.Rational) TimeSpan {
	return span(t.Begin.Add(offset), t.End.Add(offset))
}

// Scale multiplies both ends by factor.
func (t TimeSpan) Scale(factor rational.Rational) TimeSpan {
	return span(t.Begin.Mul(factor), t.End.Mul(factor))
}

// ClipTo intersects t with bounds. Returns ok=false if the intersection
// is empty (begin > end), except that a genuinely zero-width span that
// lies within bounds clips to itself.
func (t TimeSpan) ClipTo(bounds TimeSpan) (TimeSpan, bool) {
	b := rational.Max(t.Begin, bounds.Begin)
	e := rational.Min(t.End, bounds.End)
	if b.Greater(e) {
		return TimeSpan{}, false
	}
	return span(b, e), true
}

func sam(t rational.Rational) rational.Rational     { return t.Floor() }
func nextSam(t rational.Rational) rational.Rational  { return t.Floor().Add(rational.One) }
func cyclePos(t rational.Rational) rational.Rational { return t.Sub(t.Floor()) }

// spanCycles splits an arbitrary arc into maximal pieces that each lie
// within a single integer cycle, the same decomposition Tidal's
// splitQueries performs, so every per-cycle combinator (atomic, slow-cat,
// fastGap) can assume its query arc never crosses a cycle boundary.
func spanCycles(arc TimeSpan) []TimeSpan {
	if arc.Begin.Greater(arc.End) {
		return nil
	}
	if arc.Begin.Equal(arc.End) {
		return []TimeSpan{arc}
	}
	var out []TimeSpan
	b := arc.Begin
	for b.Less(arc.End) {
		e := rational.Min(nextSam(b), arc.End)
		out = append(out, span(b, e))
		b = e
	}
	return out
}
