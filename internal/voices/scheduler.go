// Package voices implements the voice scheduler (spec component I): a
// min-heap of not-yet-promoted voices ordered by start frame, an active
// list of rendering voices, and the per-block drain/promote/render/
// diagnostics cycle the audio thread drives once per block.
//
// The heap+active-list shape and the stable-for-equal-times promotion
// order are a stdlib container/heap data-structure choice (no repo in
// the retrieved pack implements a scheduling heap to ground it on), per
// SPEC_FULL.md §4.5.
package voices

import (
	"container/heap"
	"time"

	"github.com/klanglive/klang/internal/link"
	"github.com/klanglive/klang/internal/mixer"
	"github.com/klanglive/klang/internal/render"
	"github.com/klanglive/klang/internal/sample"
	"github.com/klanglive/klang/internal/voicedata"
)

// diagIntervalMs is the ~20 Hz Diagnostics cadence spec.md §6 specifies.
const diagIntervalMs = 50

type pending struct {
	startFrame   int64
	gateEndFrame int64
	endFrame     int64
	seq          int64
	playbackID   string
	data         voicedata.VoiceData
}

type pendingHeap []*pending

func (h pendingHeap) Len() int { return len(h) }
func (h pendingHeap) Less(i, j int) bool {
	if h[i].startFrame != h[j].startFrame {
		return h[i].startFrame < h[j].startFrame
	}
	return h[i].seq < h[j].seq
}
func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x any)   { *h = append(*h, x.(*pending)) }
func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler is component I. It owns the scheduled heap, the active
// voice list, and per-playback epoch bookkeeping; it is driven
// exclusively from the audio thread (internal/audiobackend's driver).
type Scheduler struct {
	link       *link.Link
	registry   *render.Registry
	mixer      *mixer.Mixer
	sampleRate float64

	scheduled pendingHeap
	active    []*render.Voice
	nextSeq   int64

	epochs      map[string]float64 // playbackID -> epoch seconds (backend frame-time)
	latencySent map[string]bool

	lastProcessedFrame int64

	headroomMin     float64
	lastDiagFrame   int64
	diagIntervalFrm int64
	diag            Diagnostics
}

// Diagnostics accumulates the counters surfaced via Feedback.Diagnostics.
type Diagnostics struct {
	ActiveVoiceCount int
	RenderHeadroom   float64
}

func New(l *link.Link, registry *render.Registry, mx *mixer.Mixer, sampleRate int) *Scheduler {
	s := &Scheduler{
		link:            l,
		registry:        registry,
		mixer:           mx,
		sampleRate:      float64(sampleRate),
		epochs:          make(map[string]float64),
		latencySent:     make(map[string]bool),
		headroomMin:     1,
		diagIntervalFrm: int64(diagIntervalMs * float64(sampleRate) / 1000),
	}
	return s
}

// Process runs one block's worth of work at cursorFrame, per spec.md
// §4.5: drain commands, promote due entries, render active voices, and
// emit diagnostics on the ~20 Hz cadence.
func (s *Scheduler) Process(cursorFrame int64, blockFrames int) {
	start := time.Now()

	s.drainCommands(cursorFrame)
	s.promote(cursorFrame, int64(blockFrames))
	s.renderActive(cursorFrame, blockFrames)

	elapsed := time.Since(start)
	blockDur := time.Duration(float64(blockFrames) / s.sampleRate * float64(time.Second))
	headroom := 1.0
	if blockDur > 0 {
		headroom = 1 - float64(elapsed)/float64(blockDur)
	}
	if headroom < s.headroomMin {
		s.headroomMin = headroom
	}

	s.lastProcessedFrame = cursorFrame + int64(blockFrames)
	if s.lastProcessedFrame-s.lastDiagFrame >= s.diagIntervalFrm {
		s.emitDiagnostics()
		s.lastDiagFrame = s.lastProcessedFrame
		s.headroomMin = 1
	}
}

func (s *Scheduler) drainCommands(cursorFrame int64) {
	for {
		select {
		case cmd, ok := <-s.link.Control():
			if !ok {
				return
			}
			s.handleCommand(cmd, cursorFrame)
		default:
			return
		}
	}
}

func (s *Scheduler) handleCommand(cmd link.Command, cursorFrame int64) {
	switch cmd.Kind {
	case link.CmdScheduleVoice:
		s.scheduleOne(cmd.PlaybackID, cmd.Voice, cursorFrame)
	case link.CmdReplaceVoices:
		s.replaceVoices(cmd, cursorFrame)
	case link.CmdSampleComplete:
		s.registry.Complete(cmd.Request, cmd.PitchHz, cmd.PCM)
	case link.CmdSampleNotFound:
		s.registry.NotFound(cmd.Request)
	case link.CmdCleanup:
		s.cleanup(cmd.PlaybackID)
	}
}

func (s *Scheduler) epochFor(playbackID string, cursorFrame int64) float64 {
	if e, ok := s.epochs[playbackID]; ok {
		return e
	}
	e := float64(cursorFrame) / s.sampleRate
	s.epochs[playbackID] = e
	if !s.latencySent[playbackID] {
		s.latencySent[playbackID] = true
		s.link.SendFeedback(link.Feedback{
			Kind:               link.FbPlaybackLatency,
			PlaybackID:         playbackID,
			BackendTimestampMs: float64(time.Now().UnixNano()) / 1e6,
		})
	}
	return e
}

func (s *Scheduler) scheduleOne(playbackID string, v link.ScheduledVoice, cursorFrame int64) {
	epoch := s.epochFor(playbackID, cursorFrame)
	startFrame := int64((epoch + v.StartTimeSec) * s.sampleRate)
	gateEndFrame := int64((epoch + v.GateEndTimeSec) * s.sampleRate)
	endFrame := gateEndFrame
	if v.Data.Release != nil {
		endFrame += int64(*v.Data.Release * s.sampleRate)
	} else {
		endFrame += int64(0.1 * s.sampleRate)
	}
	s.nextSeq++
	heap.Push(&s.scheduled, &pending{
		startFrame:   startFrame,
		gateEndFrame: gateEndFrame,
		endFrame:     endFrame,
		seq:          s.nextSeq,
		playbackID:   playbackID,
		data:         v.Data,
	})
}

// replaceVoices applies spec.md §4.5's ReplaceVoices rule: remove all
// scheduled (not-yet-promoted) entries for the playback whose startFrame
// is >= cursorFrame, leave active voices untouched, then insert the
// replacement set. Running entirely within one Process() call makes this
// a single critical section between block renders, per spec.md §5.
func (s *Scheduler) replaceVoices(cmd link.Command, cursorFrame int64) {
	kept := s.scheduled[:0]
	for _, p := range s.scheduled {
		if p.playbackID == cmd.PlaybackID && p.startFrame >= cursorFrame {
			continue
		}
		kept = append(kept, p)
	}
	s.scheduled = kept
	heap.Init(&s.scheduled)
	for _, v := range cmd.Voices {
		s.scheduleOne(cmd.PlaybackID, v, cursorFrame)
	}
}

func (s *Scheduler) cleanup(playbackID string) {
	delete(s.epochs, playbackID)
	delete(s.latencySent, playbackID)
	kept := s.scheduled[:0]
	for _, p := range s.scheduled {
		if p.playbackID != playbackID {
			kept = append(kept, p)
		}
	}
	s.scheduled = kept
	heap.Init(&s.scheduled)
}

// promote pops every scheduled entry due within this block, discarding
// late ones (endFrame <= cursorFrame, spec.md's LateVoice error mode)
// and ones whose sample hasn't resolved or resolved NotFound
// (SampleNotFound/InvalidVoice), then constructs the surviving voices.
func (s *Scheduler) promote(cursorFrame, blockFrames int64) {
	horizon := cursorFrame + blockFrames
	for len(s.scheduled) > 0 && s.scheduled[0].startFrame < horizon {
		p := heap.Pop(&s.scheduled).(*pending)
		if p.endFrame <= cursorFrame {
			continue // LateVoice
		}
		v := s.construct(p)
		if v == nil {
			continue
		}
		s.active = append(s.active, v)
	}
}

// construct builds a render.Voice from a pending entry, routing to the
// orbit mixer and resolving a sample source if the voice names a bank,
// per spec.md §4.6's failure mode: a voice whose sample hasn't loaded
// is skipped, not rendered with a placeholder.
func (s *Scheduler) construct(p *pending) *render.Voice {
	orbit := 0
	if p.data.Orbit != nil {
		orbit = *p.data.Orbit
	}
	s.configureOrbit(orbit, p.data)

	if p.data.Bank != nil {
		req := sampleRequestFor(p.data)
		pcm, pitchHz, found, resolved := s.registry.Lookup(req)
		if !resolved || !found {
			return nil
		}
		return render.NewSampleVoice(p.playbackID, p.data, pcm, pitchHz, s.sampleRate, p.startFrame, p.gateEndFrame, p.endFrame)
	}
	return render.NewSynthVoice(p.playbackID, p.data, s.sampleRate, p.startFrame, p.gateEndFrame, p.endFrame)
}

func (s *Scheduler) configureOrbit(orbit int, data voicedata.VoiceData) {
	var delayAmt, reverbAmt float64
	if data.Delay != nil {
		delayAmt = *data.Delay
	}
	if data.Room != nil {
		reverbAmt = *data.Room
	}
	s.mixer.ConfigureSends(orbit, delayAmt, reverbAmt, data.DuckOrbit, deref(data.DuckAttack, 0.1), deref(data.DuckDepth, 0))
}

func deref(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func sampleRequestFor(d voicedata.VoiceData) sample.SampleRequest {
	return sample.SampleRequest{Bank: d.Bank, Sound: d.Sound, Index: d.SoundIndex, Note: d.Note}
}

// renderActive renders every active voice into its orbit's buffer and
// removes voices that have gone dead, keeping the survivors in order.
func (s *Scheduler) renderActive(cursorFrame int64, blockFrames int) {
	write := 0
	for _, v := range s.active {
		buf := s.mixer.Buffer(v.Orbit)
		v.Render(buf, cursorFrame, blockFrames)
		if v.Alive() {
			s.active[write] = v
			write++
		}
	}
	s.active = s.active[:write]
}

func (s *Scheduler) emitDiagnostics() {
	s.diag.ActiveVoiceCount = len(s.active)
	s.diag.RenderHeadroom = s.headroomMin
	orbitStatuses := s.mixer.Statuses()
	fbOrbits := make([]link.OrbitStatus, len(orbitStatuses))
	for i, o := range orbitStatuses {
		fbOrbits[i] = link.OrbitStatus{ID: o.ID, Active: o.Active}
	}
	s.link.SendFeedback(link.Feedback{
		Kind:             link.FbDiagnostics,
		PlaybackID:       "global",
		RenderHeadroom:   s.diag.RenderHeadroom,
		ActiveVoiceCount: uint32(s.diag.ActiveVoiceCount),
		Orbits:           fbOrbits,
	})
}

// ActiveVoiceCount exposes the current active-list length for tests and
// for the audio backend's OneShot idle check.
func (s *Scheduler) ActiveVoiceCount() int { return len(s.active) }

// ScheduledCount exposes the current heap length for tests.
func (s *Scheduler) ScheduledCount() int { return len(s.scheduled) }
