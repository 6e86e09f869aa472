package pattern

import (
	"math"

	"github.com/klanglive/klang/internal/rational"
	"github.com/klanglive/klang/internal/voicedata"
)

// Signal builds a continuous pattern from f(t): it answers any query
// with a single event covering the whole arc (whole == part, onset
// undefined), carrying f(arc.Begin) as Value. Continuous patterns are
// only ever consumed through LiftNumericField/LiftValue, which sample
// them pointwise rather than average them across a span.
func Signal(f func(t float64) float64) Pattern {
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		v := f(arc.Begin.Float64())
		whole := arc
		return []Event{{Part: arc, Whole: &whole, Data: voicedata.VoiceData{}.WithValue(v)}}
	}
	return newPattern(rational.One, 1.0, q)
}

// Sine oscillates 0..1 once per cycle.
func Sine() Pattern {
	return Signal(func(t float64) float64 { return (math.Sin(t*2*math.Pi) + 1) / 2 })
}

// Saw ramps 0..1 once per cycle.
func Saw() Pattern {
	return Signal(func(t float64) float64 { return t - math.Floor(t) })
}

// TimeSignal exposes absolute cycle time as a continuous value.
func TimeSignal() Pattern {
	return Signal(func(t float64) float64 { return t })
}

// Rand produces a new pseudo-random value [0,1) each cycle, deterministic
// from the context's seed and the cycle number.
func Rand() Pattern {
	q := func(arc TimeSpan, ctx *QueryContext) []Event {
		c := sam(arc.Begin).FloorInt()
		v := ctx.CycleRand(c).Float64()
		whole := arc
		return []Event{{Part: arc, Whole: &whole, Data: voicedata.VoiceData{}.WithValue(v)}}
	}
	return newPattern(rational.One, 1.0, q)
}
