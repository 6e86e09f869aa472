package render

import (
	"math"

	"github.com/klanglive/klang/internal/effects"
	"github.com/klanglive/klang/internal/lfo"
	"github.com/klanglive/klang/internal/sample"
	"github.com/klanglive/klang/internal/voicedata"
)

// Kind distinguishes the two voice variants spec.md §4.6 describes.
type Kind int

const (
	KindSynth Kind = iota
	KindSample
)

// Voice is one realized sound-producing object for a single onset event,
// owning every stage of the per-voice pipeline: source generation,
// modulation, filters, VCA envelope, and post effects. It is rendered
// block-by-block by the voice scheduler (component I) and never touched
// outside the audio thread.
type Voice struct {
	PlaybackID     string
	Orbit          int
	StartFrame     int64
	GateEndFrame   int64
	EndFrame       int64
	Seq            int64 // insertion-order tiebreak, set by the scheduler

	kind       Kind
	sampleRate float64

	// synth source
	osc          Oscillator
	oscSide      *float64 // non-nil for oscillators with a stereo width signal (supersaw)
	phase        float64
	baseFreq     float64
	phaseIncBase float64

	// FM (collapsed single carrier+modulator pair per spec.md §4.2's
	// widened oscillator bank; fmH is the modulator:carrier ratio, fmEnv
	// is the envelope amount applied to the modulation index)
	fmEnabled  bool
	fmRatio    float64
	fmEnvAmt   float64
	fmPhase    float64
	fmEnv      *Envelope

	// sample source
	pcm      sample.PCM
	playhead float64
	rate     float64
	loop     bool

	// vibrato: a per-voice LFO instance, depth in semitones (VibratoMod/12)
	vibrato      *lfo.LFO
	vibratoDepth float64 // not set; the vibrato LFO's depth carries the semitone amount

	// tremolo: a second per-voice LFO instance modulating output amplitude
	tremolo *lfo.LFO

	// frames rendered so far and the voice's total length in frames; no
	// pipeline stage reads them
	frameIndex int64
	lifeFrames float64

	pre struct {
		crush  *bitcrush
		reduce *sampleHold
	}

	filters *filterChain

	vca *Envelope

	post struct {
		distort *effects.Distortion
		phaser  *effects.Chorus
	}

	gain float64
	pan  float64

	delaySend   float64
	reverbSend  float64

	dead bool
}

// tremoloRateHz is the fixed amplitude-LFO rate for the tremolo post-filter
// stage (spec.md §4.6 step 6); only depth is pattern-controlled via
// VoiceData.Tremolo.
const tremoloRateHz = 5.0

// midiToFreq converts a note number (spec.md's `note` field, MIDI-style
// semitone units) to Hz.
func midiToFreq(note float64) float64 {
	return 440 * math.Pow(2, (note-69)/12)
}

// NewSynthVoice builds a synth-variant voice: an oscillator chosen by
// data.Sound, pitched from data.Note.
func NewSynthVoice(playbackID string, data voicedata.VoiceData, sampleRate float64, startFrame, gateEndFrame, endFrame int64) *Voice {
	note := 60.0
	if data.Note != nil {
		note = *data.Note
	}
	name := "sine"
	if data.Sound != nil {
		name = *data.Sound
	}
	unison := 1
	if data.Unison != nil {
		unison = *data.Unison
	}
	detune, spread, density := 0.2, 0.0, 8.0
	if data.Detune != nil {
		detune = *data.Detune
	}
	if data.Spread != nil {
		spread = *data.Spread
	}
	if data.Density != nil {
		density = *data.Density
	}

	osc, oscSide := OscillatorFor(name, unison, detune, spread, density)
	v := &Voice{
		PlaybackID:   playbackID,
		kind:         KindSynth,
		sampleRate:   sampleRate,
		osc:          osc,
		oscSide:      oscSide,
		baseFreq:     midiToFreq(note),
		StartFrame:   startFrame,
		GateEndFrame: gateEndFrame,
		EndFrame:     endFrame,
	}
	v.phaseIncBase = twoPi * v.baseFreq / sampleRate
	v.configureCommon(data, startFrame, gateEndFrame, endFrame)

	if data.FMH != nil {
		v.fmEnabled = true
		v.fmRatio = *data.FMH
		if data.FMEnv != nil {
			v.fmEnvAmt = *data.FMEnv
		}
		attack := 0.002 * sampleRate
		decay := 0.3 * sampleRate
		v.fmEnv = NewEnvelope(attack, decay, 0, decay)
	}
	return v
}

// NewSampleVoice builds a sample-playback voice from resolved PCM. Pitch
// ratio is clamped to [0.125, 8.0] per spec.md §4.6; the caller is
// expected to have already rejected NotFound/not-yet-resolved requests
// (spec.md's "a voice whose sample has not yet loaded at promotion time
// is skipped" failure mode).
func NewSampleVoice(playbackID string, data voicedata.VoiceData, pcm sample.PCM, basePitchHz float64, sampleRate float64, startFrame, gateEndFrame, endFrame int64) *Voice {
	note := 60.0
	if data.Note != nil {
		note = *data.Note
	}
	targetHz := midiToFreq(note)
	ratio := 1.0
	if basePitchHz > 0 {
		ratio = targetHz / basePitchHz
	}
	if ratio < 0.125 {
		ratio = 0.125
	}
	if ratio > 8.0 {
		ratio = 8.0
	}
	v := &Voice{
		PlaybackID:   playbackID,
		kind:         KindSample,
		sampleRate:   sampleRate,
		pcm:          pcm,
		rate:         (float64(pcm.SampleRate) / sampleRate) * ratio,
		StartFrame:   startFrame,
		GateEndFrame: gateEndFrame,
		EndFrame:     endFrame,
	}
	v.configureCommon(data, startFrame, gateEndFrame, endFrame)
	return v
}

func (v *Voice) configureCommon(data voicedata.VoiceData, startFrame, gateEndFrame, endFrame int64) {
	v.gain = 1
	if data.Gain != nil {
		v.gain = *data.Gain
	}
	if data.Pan != nil {
		v.pan = *data.Pan
	}
	if data.Orbit != nil {
		v.Orbit = *data.Orbit
	}
	if data.Delay != nil {
		v.delaySend = *data.Delay
	}
	if data.Room != nil {
		v.reverbSend = *data.Room
	}

	attackSec, decaySec, sustainLvl, releaseSec := 0.01, 0.05, 0.8, 0.1
	if data.Attack != nil {
		attackSec = *data.Attack
	}
	if data.Decay != nil {
		decaySec = *data.Decay
	}
	if data.Sustain != nil {
		sustainLvl = *data.Sustain
	}
	if data.Release != nil {
		releaseSec = *data.Release
	}
	releaseFrames := float64(endFrame - gateEndFrame)
	if releaseFrames < 1 {
		releaseFrames = releaseSec * v.sampleRate
	}
	v.vca = NewEnvelope(attackSec*v.sampleRate, decaySec*v.sampleRate, sustainLvl, releaseFrames)
	v.lifeFrames = float64(endFrame - startFrame)

	if data.Vibrato != nil && *data.Vibrato > 0 {
		depthSemitones := 0.5
		if data.VibratoMod != nil {
			depthSemitones = *data.VibratoMod / 12
		}
		v.vibrato = &lfo.LFO{}
		v.vibrato.Set(depthSemitones, *data.Vibrato, lfo.WaveTriangle)
	}

	if len(data.Filters) > 0 {
		v.filters = newFilterChain(data.Filters, v.sampleRate)
	} else if data.Cutoff != nil || data.HCutoff != nil || data.Resonance != nil {
		var resonance float64
		if data.Resonance != nil {
			resonance = *data.Resonance
		}
		var defs []voicedata.FilterDef
		if data.Cutoff != nil {
			defs = append(defs, voicedata.FilterDef{Kind: voicedata.FilterLowpass, Cutoff: *data.Cutoff, Resonance: resonance})
		}
		if data.HCutoff != nil {
			defs = append(defs, voicedata.FilterDef{Kind: voicedata.FilterHighpass, Cutoff: *data.HCutoff, Resonance: resonance})
		}
		if len(defs) == 0 {
			defs = append(defs, voicedata.FilterDef{Kind: voicedata.FilterLowpass, Cutoff: 20000, Resonance: resonance})
		}
		v.filters = newFilterChain(defs, v.sampleRate)
	}

	if data.Crush != nil {
		v.pre.crush = newBitcrush(*data.Crush)
	}
	if data.Coarse != nil {
		v.pre.reduce = newSampleHold(*data.Coarse)
	}
	if data.Distort != nil && *data.Distort > 0 {
		// preGain scaled 1..4 by amount, postGain/lpfCutoff fixed at the
		// teacher's createEffect("dist") defaults.
		preGain := float32(1 + 3*(*data.Distort))
		v.post.distort = effects.NewDistortion(int(v.sampleRate), preGain, 0.5, 8000)
	}
	if data.Phaser != nil && *data.Phaser > 0 {
		v.post.phaser = effects.NewChorus(int(v.sampleRate), 15, 0.3, 3, 1.5, float32(*data.Phaser))
	}
	if data.Tremolo != nil && *data.Tremolo > 0 {
		v.tremolo = &lfo.LFO{}
		v.tremolo.Set(*data.Tremolo, tremoloRateHz, lfo.WaveTriangle)
	}
}

// Alive reports whether the voice still has work to do. It turns false
// once the VCA envelope has finished its release and either EndFrame has
// been reached or a whole block rendered silent (or, for a sample voice,
// once playback runs past the end of its PCM), per spec.md §4.6's Dead
// detection.
func (v *Voice) Alive() bool { return !v.dead }

// Render adds one voice's contribution into dst (stereo interleaved,
// numFrames frames) for the block starting at cursorFrame, running the
// full per-voice pipeline in spec.md §4.6's order. It applies the gate
// (release trigger) at GateEndFrame and marks the voice dead once the
// envelope has released and output has gone silent for a full block, per
// the Attack->Decay->Sustain->Release->Dead state machine.
func (v *Voice) Render(dst []float64, cursorFrame int64, numFrames int) {
	if v.dead {
		return
	}
	blockSilent := true
	for i := 0; i < numFrames; i++ {
		frame := cursorFrame + int64(i)
		if frame < v.StartFrame {
			continue
		}
		if frame >= v.GateEndFrame && v.vca.Stage() != stageRelease && v.vca.Stage() != stageOff {
			v.vca.Gate()
		}

		var modOffset float64
		if v.vibrato != nil {
			ratio := math.Pow(2, v.vibrato.Sample(v.sampleRate)/12)
			modOffset = v.phaseIncBase * (ratio - 1)
		}
		if v.fmEnabled {
			fmEnvVal := v.fmEnv.Advance()
			modPhase := v.fmPhase
			v.fmPhase += v.phaseIncBase * v.fmRatio
			if v.fmPhase > twoPi {
				v.fmPhase -= twoPi
			}
			modOffset += math.Sin(modPhase) * v.fmRatio * (1 + v.fmEnvAmt*fmEnvVal)
		}

		var raw, oscSide float64
		switch v.kind {
		case KindSynth:
			s, newPhase := v.osc(v.phase+v.phaseIncBase, modOffset)
			v.phase = newPhase
			raw = s
			if v.oscSide != nil {
				oscSide = *v.oscSide
			}
		case KindSample:
			raw = v.sampleFrame(modOffset)
		}

		raw = v.pre.reduce.process(v.pre.crush.process(raw))
		if v.filters != nil {
			raw = v.filters.process(raw)
		}

		vcaLevel := v.vca.Advance()
		out := raw * vcaLevel * v.gain
		// sideOut tracks the unison stack's stereo-width signal through the
		// same envelope/gain stage the main signal goes through, so a
		// supersaw's Spread widens the voice without bypassing its VCA.
		sideOut := oscSide * vcaLevel * v.gain

		if v.post.distort != nil {
			dl, _ := v.post.distort.Process(float32(out), float32(out))
			out = float64(dl)
		}
		if v.post.phaser != nil {
			pl, _ := v.post.phaser.Process(float32(out), float32(out))
			out = float64(pl)
		}
		if v.tremolo != nil {
			out *= 1 + v.tremolo.Sample(v.sampleRate)
		}

		if math.Abs(out) > 1e-4 {
			blockSilent = false
		}

		l, r := equalPowerPan(out, v.pan)
		l += sideOut
		r -= sideOut
		dst[i*2] += l
		dst[i*2+1] += r

		v.frameIndex++
		if v.vca.Done() && v.EndFrame > 0 && frame >= v.EndFrame {
			v.dead = true
			return
		}
	}
	if v.vca.Done() && blockSilent {
		v.dead = true
	}
}

func (v *Voice) sampleFrame(modOffset float64) float64 {
	if len(v.pcm.Frames) == 0 {
		v.dead = true
		return 0
	}
	frames := v.pcm.Frames[0]
	n := len(frames)
	if n == 0 {
		v.dead = true
		return 0
	}
	idx := int(v.playhead)
	if idx >= n-1 {
		if v.loop {
			v.playhead = 0
			idx = 0
		} else {
			v.dead = true
			return 0
		}
	}
	frac := v.playhead - float64(idx)
	a := float64(frames[idx])
	b := a
	if idx+1 < n {
		b = float64(frames[idx+1])
	}
	sample := a + (b-a)*frac
	v.playhead += v.rate * (1 + modOffset*0.01)
	return sample
}

// equalPowerPan spreads a mono sample across stereo with constant
// perceived loudness across the pan range, the standard equal-power law
// spec.md §4.6 step 7 names. The right gain is computed as cos(pi/2-angle)
// so a centred pan gives both channels exactly the same value.
func equalPowerPan(sample, pan float64) (l, r float64) {
	if pan < -1 {
		pan = -1
	}
	if pan > 1 {
		pan = 1
	}
	angle := (pan + 1) * math.Pi / 4
	return sample * math.Cos(angle), sample * math.Cos(math.Pi/2-angle)
}
