package render

import (
	"math"

	"github.com/klanglive/klang/internal/voicedata"
)

// filterStage is a Chamberlin state-variable filter: two integrators in a
// feedback loop produce low, band, and high outputs simultaneously from a
// single pass, the LP/HP/BP stage spec.md §4.6 step 4 calls for. A true
// biquad was never implemented anywhere in the retrieved pack, so this is
// a hand-rolled two-pole design, not a reuse of the teacher's EQ stages,
// which internal/effects does not carry (those split fixed crossover bands at a stereo mix-bus rate;
// this filters one mono voice with a per-stage resonance parameter the EQ
// design has no room for).
type filterStage struct {
	kind       voicedata.FilterKind
	f          float64 // frequency coefficient, 2*sin(pi*cutoff/sampleRate)
	q          float64 // damping, inversely related to resonance
	cutoff     float64
	resonance  float64
	sampleRate float64
	low        float64
	band       float64
}

func newFilterStage(def voicedata.FilterDef, sampleRate float64) *filterStage {
	f := &filterStage{kind: def.Kind, sampleRate: sampleRate}
	f.setResonance(def.Resonance)
	f.setCutoff(def.Cutoff)
	return f
}

func (f *filterStage) setResonance(resonance float64) {
	if resonance < 0 {
		resonance = 0
	}
	if resonance > 4 {
		resonance = 4
	}
	f.resonance = resonance
	f.q = 1.0 / (1.0 + resonance)
}

func (f *filterStage) setCutoff(cutoff float64) {
	if cutoff <= 0 {
		cutoff = 20000
	}
	nyq := f.sampleRate / 2
	if cutoff > nyq*0.98 {
		cutoff = nyq * 0.98 // keep the loop coefficient below the SVF's stability limit
	}
	f.cutoff = cutoff
	f.f = 2 * math.Sin(math.Pi*cutoff/f.sampleRate)
}

// process runs one mono sample through the stage. high/band/low are all
// derived from the same two-integrator loop each call, so switching kind
// mid-stream never needs to reset state.
func (f *filterStage) process(in float64) float64 {
	high := in - f.low - f.q*f.band
	f.band += f.f * high
	f.low += f.f * f.band
	switch f.kind {
	case voicedata.FilterHighpass:
		return high
	case voicedata.FilterBandpass:
		return f.band
	default: // Lowpass
		return f.low
	}
}

// filterChain runs an ordered list of filterStages, the per-voice "main
// filter" of spec.md §4.6 step 4 (zero or more FilterDef stages).
type filterChain struct {
	stages []*filterStage
}

func newFilterChain(defs []voicedata.FilterDef, sampleRate float64) *filterChain {
	fc := &filterChain{stages: make([]*filterStage, len(defs))}
	for i, d := range defs {
		fc.stages[i] = newFilterStage(d, sampleRate)
	}
	return fc
}

func (fc *filterChain) process(in float64) float64 {
	for _, s := range fc.stages {
		in = s.process(in)
	}
	return in
}

// bitcrush quantizes amplitude to 2^bits levels, spec.md §4.6 step 3's
// pre-filter bit-crush stage.
type bitcrush struct {
	levels float64
}

func newBitcrush(amount float64) *bitcrush {
	if amount <= 0 {
		return nil
	}
	bits := 16 - amount*14 // amount in [0,1]: 0 = 16-bit (no-op), 1 = ~2-bit
	if bits < 1 {
		bits = 1
	}
	return &bitcrush{levels: math.Pow(2, bits)}
}

func (b *bitcrush) process(in float64) float64 {
	if b == nil {
		return in
	}
	return math.Round(in*b.levels) / b.levels
}

// sampleHold reduces effective sample rate by holding the last sample for
// N frames, spec.md §4.6 step 3's sample-rate reducer.
type sampleHold struct {
	holdFrames int
	counter    int
	held       float64
}

func newSampleHold(coarse float64) *sampleHold {
	n := int(coarse)
	if n < 1 {
		return nil
	}
	return &sampleHold{holdFrames: n}
}

func (s *sampleHold) process(in float64) float64 {
	if s == nil {
		return in
	}
	if s.counter == 0 {
		s.held = in
	}
	s.counter++
	if s.counter >= s.holdFrames {
		s.counter = 0
	}
	return s.held
}

