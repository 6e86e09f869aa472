package render

// envStage is the envelope state machine: Attack -> Decay ->
// Sustain -> Release -> Dead, adapted directly from fm/engine.go's
// envState/advanceOpEnv (attack ramp to 1, decay to sustain level,
// release to zero, all frame-rate-relative steps) but decoupled from
// per-operator FM level into the single per-voice VCA envelope spec.md
// §4.6 describes, plus a second instance that voice.go uses as the FM
// modulation-index envelope (fmEnv). No pitch envelope is built from it.
type envStage int

const (
	stageAttack envStage = iota
	stageDecay
	stageSustain
	stageRelease
	stageOff
)

// Envelope is a linear ADSR driven by frame counts rather than
// durations, so the caller can derive release length from
// endFrame-gateEndFrame per spec.md §4.6 ("releaseFrames = endFrame -
// gateEndFrame").
type Envelope struct {
	stage        envStage
	level        float64
	attackFrames float64
	decayFrames  float64
	sustainLevel float64
	releaseFrames float64
	releaseStep   float64 // per-frame decrement, set by Gate
}

func NewEnvelope(attackFrames, decayFrames, sustainLevel, releaseFrames float64) *Envelope {
	if attackFrames < 1 {
		attackFrames = 1
	}
	if decayFrames < 1 {
		decayFrames = 1
	}
	if releaseFrames < 1 {
		releaseFrames = 1
	}
	if sustainLevel < 0 {
		sustainLevel = 0
	}
	if sustainLevel > 1 {
		sustainLevel = 1
	}
	return &Envelope{
		stage:         stageAttack,
		attackFrames:  attackFrames,
		decayFrames:   decayFrames,
		sustainLevel:  sustainLevel,
		releaseFrames: releaseFrames,
	}
}

// Gate transitions the envelope into Release immediately, used when the
// scheduler reaches gateEndFrame regardless of which stage the envelope
// is currently in. The release ramps linearly from the level held at gate
// time down to zero over releaseFrames.
func (e *Envelope) Gate() {
	if e.stage != stageRelease && e.stage != stageOff {
		e.stage = stageRelease
		e.releaseStep = e.level / e.releaseFrames
	}
}

// Advance steps the envelope by one frame and returns the current level.
func (e *Envelope) Advance() float64 {
	switch e.stage {
	case stageAttack:
		e.level += 1.0 / e.attackFrames
		if e.level >= 1 {
			e.level = 1
			e.stage = stageDecay
		}
	case stageDecay:
		e.level -= (1 - e.sustainLevel) / e.decayFrames
		if e.level <= e.sustainLevel {
			e.level = e.sustainLevel
			e.stage = stageSustain
		}
	case stageSustain:
		e.level = e.sustainLevel
	case stageRelease:
		e.level -= e.releaseStep
		if e.level <= 0.0001 {
			e.level = 0
			e.stage = stageOff
		}
	case stageOff:
		e.level = 0
	}
	return e.level
}

// Done reports whether the envelope has fully released.
func (e *Envelope) Done() bool { return e.stage == stageOff }

// Stage exposes the current stage for the voice state machine exposed
// to diagnostics.
func (e *Envelope) Stage() envStage { return e.stage }
