// Package mixer implements the orbit mixer (spec component K): one mix
// bus per orbit with delay/reverb sends, a per-orbit ducking processor,
// and round-robin silence GC, mixed down to the master stereo buffer.
//
// Orbit routing/mixing is adapted from internal/sequencer/multi_engine.go
// (map[int]VoiceEngine keyed registration, RenderFrame-style per-block
// mixing), generalized from "one VoiceEngine per module" to "one mix bus
// per orbit", per SPEC_FULL.md §2.2/§4.7.
package mixer

import (
	"math"

	"github.com/klanglive/klang/internal/effects"
)

// DefaultMaxOrbits and HardCapOrbits match spec.md §4.7.
const (
	DefaultMaxOrbits = 16
	HardCapOrbits    = 32
)

// OrbitStatus is the per-orbit activity the Diagnostics feedback message
// reports (spec.md §6).
type OrbitStatus struct {
	ID     int
	Active bool
}

// Orbit is a numbered mixing bus: its own stereo buffer, delay line,
// reverb tail and optional ducking configuration. It is allocated on
// first use and reclaimed (marked inactive) by the round-robin silence
// GC, but retains its configuration while inactive.
type Orbit struct {
	id     int
	active bool
	buf    []float64 // stereo interleaved, len == blockFrames*2

	delay  *effects.Delay
	reverb *effects.Reverb

	delayAmt  float64
	reverbAmt float64

	DuckOrbit  *int
	DuckAttack float64
	DuckDepth  float64
	duckGain   float64 // smoothed current gain, starts at unity
}

func newOrbit(id int, sampleRate, blockFrames int) *Orbit {
	return &Orbit{
		id:       id,
		buf:      make([]float64, blockFrames*2),
		delay:    effects.NewDelay(sampleRate, 375, 0.4, 0.2, 1.0),
		reverb:   effects.NewReverb(sampleRate, 0.5, 0.7, 1.0),
		duckGain: 1,
	}
}

// reset zeros the orbit's mix buffer ahead of a new block; voices
// accumulate their contribution directly into the slice Buffer() hands
// back, so no separate Add method is needed.
func (o *Orbit) reset() {
	for i := range o.buf {
		o.buf[i] = 0
	}
}

// Mixer owns every orbit, allocated lazily, up to HardCapOrbits.
type Mixer struct {
	orbits       map[int]*Orbit
	order        []int // allocation order, for stable iteration/GC
	sampleRate   int
	blockFrames  int
	maxOrbits    int
	cleanupIndex int

	master []float64 // scratch stereo accumulation buffer
}

func New(sampleRate, blockFrames int) *Mixer {
	return &Mixer{
		orbits:      make(map[int]*Orbit),
		sampleRate:  sampleRate,
		blockFrames: blockFrames,
		maxOrbits:   DefaultMaxOrbits,
		master:      make([]float64, blockFrames*2),
	}
}

// SetMaxOrbits overrides the soft cap, clamped to spec.md's hard cap 32.
func (m *Mixer) SetMaxOrbits(n int) {
	if n < 1 {
		n = 1
	}
	if n > HardCapOrbits {
		n = HardCapOrbits
	}
	m.maxOrbits = n
}

// Ensure allocates orbit id on first use and returns it, reactivating an
// inactive orbit. It never returns nil: once the table holds maxOrbits
// orbits, an id not already in it is routed to orbit 0 (allocating orbit
// 0 if absent). While the table has room, any id is allocated as given.
func (m *Mixer) Ensure(id int) *Orbit {
	if o, ok := m.orbits[id]; ok {
		o.active = true
		return o
	}
	if len(m.orbits) >= m.maxOrbits {
		if o, ok := m.orbits[0]; ok {
			o.active = true
			return o
		}
		id = 0
	}
	o := newOrbit(id, m.sampleRate, m.blockFrames)
	o.active = true
	m.orbits[id] = o
	m.order = append(m.order, id)
	return o
}

// Buffer returns the orbit's scratch buffer for the current block,
// zeroed, ready for voices to accumulate into.
func (m *Mixer) Buffer(id int) []float64 {
	o := m.Ensure(id)
	return o.buf
}

// ConfigureSends sets an orbit's delay/reverb send amounts and ducking
// parameters; called once per scheduled voice from the voice
// construction path so a later-arriving voice can retune an already
// warm orbit (sends are a bus property, not a per-voice one, matching
// spec.md §3's data model: delay/room live on VoiceData but apply to the
// orbit as a whole once routed).
func (m *Mixer) ConfigureSends(id int, delayAmt, reverbAmt float64, duckOrbit *int, duckAttack, duckDepth float64) {
	o := m.Ensure(id)
	o.delayAmt = delayAmt
	o.reverbAmt = reverbAmt
	o.DuckOrbit = duckOrbit
	o.DuckAttack = duckAttack
	o.DuckDepth = duckDepth
}

// BeginBlock zeros every allocated orbit's buffer ahead of voice
// rendering for this block.
func (m *Mixer) BeginBlock() {
	for _, id := range m.order {
		m.orbits[id].reset()
	}
	for i := range m.master {
		m.master[i] = 0
	}
}

// ProcessAndMix runs spec.md §4.7's per-block pipeline (effect inserts,
// ducking, master mix, silence GC) and writes interleaved float32 stereo
// into out (len must be blockFrames*2).
func (m *Mixer) ProcessAndMix(out []float32) {
	for _, id := range m.order {
		o := m.orbits[id]
		if !o.active {
			continue
		}
		m.applySends(o)
	}
	m.applyDucking()
	for _, id := range m.order {
		o := m.orbits[id]
		if !o.active {
			continue
		}
		for i := range m.master {
			m.master[i] += o.buf[i]
		}
	}
	for i := range out {
		out[i] = float32(softClip(m.master[i]))
	}
	m.silenceGC()
}

// applySends runs the delay/reverb send+return per spec.md §4.7 step 1.
func (m *Mixer) applySends(o *Orbit) {
	if o.delayAmt <= 0 && o.reverbAmt <= 0 {
		return
	}
	for i := 0; i+1 < len(o.buf); i += 2 {
		l, r := float32(o.buf[i]), float32(o.buf[i+1])
		if o.delayAmt > 0 {
			dl, dr := o.delay.Process(l, r)
			o.buf[i] += float64(dl) * o.delayAmt
			o.buf[i+1] += float64(dr) * o.delayAmt
		}
		if o.reverbAmt > 0 {
			rl, rr := o.reverb.Process(l, r)
			o.buf[i] += float64(rl) * o.reverbAmt
			o.buf[i+1] += float64(rr) * o.reverbAmt
		}
	}
}

// applyDucking runs the cross-orbit sidechain per spec.md §4.7 step 2:
// instant-attack, configurable-release envelope follower on the source
// orbit, gain = 1 - depth*min(1, 2*|sidechain|), smoothed back to unity.
// Runs after effect inserts and before master mix so the sidechain
// signal includes the source orbit's tails, per spec.md's explicit
// ordering note.
func (m *Mixer) applyDucking() {
	for _, id := range m.order {
		o := m.orbits[id]
		if !o.active || o.DuckOrbit == nil || o.DuckDepth <= 0 {
			continue
		}
		src, ok := m.orbits[*o.DuckOrbit]
		if !ok || !src.active {
			continue
		}
		releaseCoeff := 1.0
		if o.DuckAttack > 0 {
			releaseCoeff = 1.0 / (o.DuckAttack * float64(m.sampleRate))
		}
		for i := 0; i+1 < len(o.buf); i += 2 {
			side := math.Max(math.Abs(src.buf[i]), math.Abs(src.buf[i+1]))
			target := 1 - o.DuckDepth*math.Min(1, 2*side)
			if target < o.duckGain {
				o.duckGain = target // instant attack
			} else {
				o.duckGain += releaseCoeff * (target - o.duckGain)
			}
			o.buf[i] *= o.duckGain
			o.buf[i+1] *= o.duckGain
		}
	}
}

// silenceGC picks one orbit per block round-robin and deactivates it if
// every sample in its buffer is below -80 dBFS, per spec.md §4.7 step 4.
// An inactive orbit retains its configuration but is skipped in all
// per-block work until a new voice addresses it again via Ensure.
func (m *Mixer) silenceGC() {
	if len(m.order) == 0 {
		return
	}
	m.cleanupIndex = (m.cleanupIndex + 1) % len(m.order)
	id := m.order[m.cleanupIndex]
	o := m.orbits[id]
	if !o.active {
		return
	}
	silent := true
	for _, s := range o.buf {
		if math.Abs(s) >= 1e-4 {
			silent = false
			break
		}
	}
	if silent {
		o.active = false
	}
}

// AllocatedIDs returns every orbit id ever allocated, for diagnostics.
func (m *Mixer) AllocatedIDs() []int {
	out := make([]int, len(m.order))
	copy(out, m.order)
	return out
}

// Statuses returns per-orbit activity for the Diagnostics feedback
// message (spec.md §6).
func (m *Mixer) Statuses() []OrbitStatus {
	out := make([]OrbitStatus, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, OrbitStatus{ID: id, Active: m.orbits[id].active})
	}
	return out
}

// OrbitConfig is the persistable subset of an orbit's send/ducking
// configuration — everything ConfigureSends sets — used by
// internal/session to round-trip a mixer's routing through JSON.
type OrbitConfig struct {
	ID         int
	DelayAmt   float64
	ReverbAmt  float64
	DuckOrbit  *int
	DuckAttack float64
	DuckDepth  float64
}

// Configs snapshots every allocated orbit's send/ducking configuration,
// in allocation order.
func (m *Mixer) Configs() []OrbitConfig {
	out := make([]OrbitConfig, 0, len(m.order))
	for _, id := range m.order {
		o := m.orbits[id]
		out = append(out, OrbitConfig{
			ID:         o.id,
			DelayAmt:   o.delayAmt,
			ReverbAmt:  o.reverbAmt,
			DuckOrbit:  o.DuckOrbit,
			DuckAttack: o.DuckAttack,
			DuckDepth:  o.DuckDepth,
		})
	}
	return out
}

// ApplyConfigs restores a previously captured set of orbit
// configurations, allocating any orbit id not already present.
func (m *Mixer) ApplyConfigs(configs []OrbitConfig) {
	for _, c := range configs {
		m.ConfigureSends(c.ID, c.DelayAmt, c.ReverbAmt, c.DuckOrbit, c.DuckAttack, c.DuckDepth)
	}
}

// softClip matches spec.md §4.6's numerics note: output conversion uses
// tanh soft-clipping rather than hard clamping, suppressing overs
// gracefully instead of producing audible distortion at the ceiling.
func softClip(x float64) float64 {
	return math.Tanh(x)
}
