package pattern

import "github.com/klanglive/klang/internal/rational"

// Choice picks one of options per cycle, deterministically seeded from
// the context's RNG and the cycle number, so successive cycles vary but
// a replay of the same seed reproduces the same sequence of choices.
func Choice(options ...Pattern) Pattern {
	n := len(options)
	if n == 0 {
		return Silence()
	}
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		var out []Event
		for _, cyc := range spanCycles(arc) {
			c := sam(cyc.Begin).FloorInt()
			idx := ctx.CycleRand(c).Intn(n)
			out = append(out, options[idx].Query(cyc, ctx)...)
		}
		return out
	}
	return newPattern(rational.One, 1.0, q)
}
