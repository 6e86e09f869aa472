// Package controller implements the playback controller (spec component
// G): the front-end side of one live playback, owning the current
// pattern, tempo, and scheduling cursor, and driving the ~60 Hz
// scheduling loop that turns pattern queries into ScheduleVoice commands
// sent across the communication link.
//
// The drain-commands -> advance-position -> render/signal -> repeat loop
// shape is grounded on the teacher's sequencer.Process/dispatchTick tick
// loop, retimed from sample-driven to wall-clock-driven per
// SPEC_FULL.md §4.3, and split across the front-end/back-end process
// boundary the concurrency model requires.
package controller

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/klanglive/klang/internal/link"
	"github.com/klanglive/klang/internal/pattern"
	"github.com/klanglive/klang/internal/rational"
	"github.com/klanglive/klang/internal/sample"
	"github.com/klanglive/klang/internal/signalbus"
	"github.com/klanglive/klang/internal/voicedata"
)

type state int32

const (
	stateStopped state = iota
	stateStarting
	stateRunning
)

const (
	schedulingTick     = 16 * time.Millisecond // ~60 Hz per spec.md §4.3
	defaultLookaheadSec = 0.2
	preloadWindowCycles = 2 // query arc [0, 2) during preload, spec.md §4.3 step 2
)

// Options configures a Controller at construction time.
type Options struct {
	CPS          float64
	LookaheadSec float64 // defaults to defaultLookaheadSec if zero

	// CyclesToPlay switches the controller into OneShot mode (spec.md
	// §4.3's "OneShot mode"): lookahead and prefetch are clamped to the
	// target cycle count and the controller stops itself once the last
	// cycle completes.
	CyclesToPlay *float64
}

// Controller owns one live playback's scheduling state. It is driven by
// its own goroutine (the "front-end scheduler task" of spec.md §5); all
// field access happens under mu except for the fields the scheduling
// goroutine alone touches after Start.
type Controller struct {
	playbackID string
	link       *link.Link
	preloader  *sample.Preloader
	bus        *signalbus.Bus

	mu      sync.Mutex
	state   state
	pattern pattern.Pattern
	cps     float64

	lookaheadSec  float64
	oneShotCycles *float64

	queryCursorCycles      rational.Rational
	sampleLookaheadPointer rational.Rational
	lastEmittedCycle       int64
	backendLatencyMs       float64

	startTime time.Time

	stopCh chan struct{}
}

// New constructs a controller for playbackID, not yet started.
func New(playbackID string, p pattern.Pattern, l *link.Link, pre *sample.Preloader, bus *signalbus.Bus, opts Options) *Controller {
	if opts.LookaheadSec <= 0 {
		opts.LookaheadSec = defaultLookaheadSec
	}
	cps := opts.CPS
	if cps <= 0 {
		cps = 0.5
	}
	lookahead := opts.LookaheadSec
	if opts.CyclesToPlay != nil {
		// lookahead is tracked in seconds but the scheduling horizon it
		// produces is lookaheadSec*cps cycles ahead; clamp in that unit so
		// a fast cps never overruns the OneShot target.
		if maxCycles := 0.9 * *opts.CyclesToPlay; lookahead*cps > maxCycles {
			lookahead = maxCycles / cps
		}
	}
	return &Controller{
		playbackID:    playbackID,
		link:          l,
		preloader:     pre,
		bus:           bus,
		pattern:       p,
		cps:           cps,
		lookaheadSec:  lookahead,
		oneShotCycles: opts.CyclesToPlay,
	}
}

// Start transitions stopped->running, rejecting a double-start. Preload
// runs synchronously up to ctx's deadline (spec.md §7 BackpressureOnStart):
// if preload finishes before ctx is done, Start returns after the
// scheduling loop is running; otherwise Start returns nil immediately,
// leaving the playback in a starting (not error, not running) state
// while preload continues in the background and the loop starts as soon
// as it resolves.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateStopped {
		c.mu.Unlock()
		return fmt.Errorf("controller: playback %q already started", c.playbackID)
	}
	c.state = stateStarting
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	ready := make(chan struct{})
	go c.run(ready)

	select {
	case <-ready:
	case <-ctx.Done():
	}
	return nil
}

// run is the controller's single goroutine: preload, epoch, then the
// scheduling loop, until stopCh closes. Feedback routing is centralized
// at the player level (multiple controllers share one Link), which calls
// HandleFeedback for messages tagged with this controller's playbackID.
func (c *Controller) run(ready chan struct{}) {
	c.preload()

	c.mu.Lock()
	if c.state != stateStarting {
		c.mu.Unlock() // stopped while preloading
		return
	}
	c.state = stateRunning
	c.startTime = time.Now()
	c.queryCursorCycles = rational.Zero
	c.sampleLookaheadPointer = rational.Zero
	c.lastEmittedCycle = -1
	c.mu.Unlock()

	c.bus.Emit(signalbus.PlaybackStarted, map[string]any{"playbackId": c.playbackID})
	close(ready)

	c.schedulingLoop()
}

// preload queries the pattern's first preloadWindowCycles cycles without
// emitting signals, collects distinct sample requests, and blocks until
// every request this call dispatches resolves (or is marked NotFound),
// per spec.md §4.3 step 2. A request an earlier EnsureLoaded call already
// dispatched is skipped without waiting for its load.
func (c *Controller) preload() {
	c.mu.Lock()
	p := c.pattern
	c.mu.Unlock()

	arc := pattern.TimeSpan{Begin: rational.Zero, End: rational.FromInt(preloadWindowCycles)}
	events := p.Query(arc, pattern.NewQueryContext(c.cps, 0))

	seen := make(map[string]bool)
	var reqs []sample.SampleRequest
	var names []string
	for _, e := range events {
		if !e.HasOnset() || e.Data.Bank == nil {
			continue
		}
		req := sampleRequestFor(e.Data)
		k := req.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		reqs = append(reqs, req)
		if e.Data.Sound != nil {
			names = append(names, *e.Data.Sound)
		}
	}

	if len(reqs) == 0 {
		return
	}

	c.bus.Emit(signalbus.PreloadingSamples, map[string]any{"count": len(reqs), "names": names})
	start := time.Now()
	c.preloader.EnsureLoaded(c.playbackID, reqs, c.forwardResolution, nil)
	c.bus.Emit(signalbus.SamplesPreloaded, map[string]any{"count": len(reqs), "durationMs": float64(time.Since(start).Milliseconds())})
}

// forwardResolution is the preloader's onResolve callback: it forwards
// the resolved (or failed) sample to the back-end exactly once, per
// spec.md §4.4's "side-effect on resolve" contract.
func (c *Controller) forwardResolution(res sample.Resolution) {
	if res.Found {
		c.link.SendControl(link.Command{
			Kind:       link.CmdSampleComplete,
			PlaybackID: res.PlaybackID,
			Request:    res.Request,
			Note:       res.Note,
			PitchHz:    res.PitchHz,
			PCM:        res.PCM,
		})
		return
	}
	c.link.SendControl(link.Command{
		Kind:       link.CmdSampleNotFound,
		PlaybackID: res.PlaybackID,
		Request:    res.Request,
	})
}

// schedulingLoop runs the ~60 Hz cadence of spec.md §4.3 step 5 until
// Stop closes stopCh.
func (c *Controller) schedulingLoop() {
	ticker := time.NewTicker(schedulingTick)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if c.tick() {
				return
			}
		}
	}
}

// tick runs one pass of the scheduling loop body. It returns true if the
// controller stopped itself during this tick (OneShot reaching its
// target cycle).
func (c *Controller) tick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateRunning {
		return true
	}

	elapsed := time.Since(c.startTime).Seconds()
	secPerCycle := 1 / c.cps
	elapsedCyclesF := elapsed / secPerCycle

	target := int64(math.Floor(elapsedCyclesF)) - 1
	for target > c.lastEmittedCycle {
		c.lastEmittedCycle++
		boundary := float64(c.lastEmittedCycle+1) * secPerCycle
		cyc := c.lastEmittedCycle
		c.bus.Emit(signalbus.CycleCompleted, map[string]any{"cycleIndex": cyc, "atTimeSec": boundary})
		if c.oneShotCycles != nil && float64(cyc) >= *c.oneShotCycles-1 {
			c.stopLocked()
			return true
		}
	}

	c.runSampleLookahead(elapsedCyclesF)
	c.scheduleUpTo(elapsedCyclesF)
	return false
}

// runSampleLookahead requests samples one chunk ahead of the query
// cursor, silently (no signals), per spec.md §4.3 step 5.
func (c *Controller) runSampleLookahead(elapsedCyclesF float64) {
	horizon := rational.FromFloat64(elapsedCyclesF + c.lookaheadSec*c.cps + 1)
	if c.oneShotCycles != nil {
		if ceiling := rational.FromFloat64(*c.oneShotCycles); ceiling.Less(horizon) {
			horizon = ceiling
		}
	}
	for c.sampleLookaheadPointer.Less(horizon) {
		ptr := c.sampleLookaheadPointer
		arc := pattern.TimeSpan{Begin: ptr, End: ptr.Add(rational.One)}
		events := c.pattern.Query(arc, pattern.NewQueryContext(c.cps, 0))
		var reqs []sample.SampleRequest
		seen := make(map[string]bool)
		for _, e := range events {
			if !e.HasOnset() || e.Data.Bank == nil {
				continue
			}
			req := sampleRequestFor(e.Data)
			if seen[req.Key()] {
				continue
			}
			seen[req.Key()] = true
			reqs = append(reqs, req)
		}
		if len(reqs) > 0 {
			c.preloader.EnsureLoaded(c.playbackID, reqs, c.forwardResolution, nil)
		}
		c.sampleLookaheadPointer = ptr.Add(rational.One)
	}
}

// scheduleUpTo queries and dispatches cycles until the cursor reaches
// elapsedCycles + lookahead, per spec.md §4.3 step 5.
func (c *Controller) scheduleUpTo(elapsedCyclesF float64) {
	horizon := rational.FromFloat64(elapsedCyclesF + c.lookaheadSec*c.cps)
	if c.oneShotCycles != nil {
		if ceiling := rational.FromFloat64(*c.oneShotCycles); ceiling.Less(horizon) {
			horizon = ceiling
		}
	}
	for c.queryCursorCycles.Less(horizon) {
		cursor := c.queryCursorCycles
		voices, uiVoices := c.collectVoices(cursor, cursor.Add(rational.One))
		if len(voices) > 0 {
			c.bus.Emit(signalbus.VoicesScheduled, map[string]any{"voices": uiVoices})
		}
		for _, v := range voices {
			c.link.SendControl(link.Command{Kind: link.CmdScheduleVoice, PlaybackID: c.playbackID, Voice: v})
		}
		c.queryCursorCycles = cursor.Add(rational.One)
	}
}

// collectVoices queries [from, to), filters onsets, and converts them to
// ScheduledVoice records with relative seconds from the epoch, plus a
// parallel UI-facing representation for the VoicesScheduled signal
// (shifted by backendLatencyMs, informational only).
func (c *Controller) collectVoices(from, to rational.Rational) ([]link.ScheduledVoice, []map[string]any) {
	arc := pattern.TimeSpan{Begin: from, End: to}
	events := c.pattern.Query(arc, pattern.NewQueryContext(c.cps, 0))
	var voices []link.ScheduledVoice
	var ui []map[string]any
	latencyShift := c.backendLatencyMs / 1000
	for _, e := range events {
		if !e.HasOnset() {
			continue
		}
		startSec := e.Whole.Begin.Float64() / c.cps
		endSec := e.Whole.End.Float64() / c.cps
		voices = append(voices, link.ScheduledVoice{
			PlaybackID:           c.playbackID,
			Data:                 e.Data,
			StartTimeSec:         startSec,
			GateEndTimeSec:       endSec,
			PlaybackStartTimeSec: time.Since(c.startTime).Seconds(),
		})
		ui = append(ui, map[string]any{
			"startTime":       startSec + latencyShift,
			"endTime":         endSec + latencyShift,
			"data":            e.Data,
			"sourceLocations": e.Data.SourceLocations,
		})
	}
	return voices, ui
}

// HandleFeedback processes one Feedback message addressed to this
// controller's playback. Feedback is a single queue shared by every live
// playback, so routing by PlaybackID (and the Diagnostics exception,
// which the player handles itself) happens one level up; per spec.md
// §4.3's feedback handling.
func (c *Controller) HandleFeedback(fb link.Feedback) {
	switch fb.Kind {
	case link.FbPlaybackLatency:
		c.mu.Lock()
		backendMs := fb.BackendTimestampMs - float64(c.startTime.UnixNano())/1e6
		if backendMs < 0 {
			backendMs = 0
		}
		if backendMs > 5000 {
			backendMs = 5000
		}
		c.backendLatencyMs = backendMs
		c.mu.Unlock()
	case link.FbRequestSample:
		c.preloader.EnsureLoaded(c.playbackID, []sample.SampleRequest{fb.Request}, c.forwardResolution, nil)
	case link.FbDiagnostics:
		// handled at player level, per spec.md §4.3.
	}
}

// UpdatePattern replaces the live pattern and replays the overlapping
// scheduling window so the back-end picks up the change without a gap,
// per spec.md §4.3 step 6.
func (c *Controller) UpdatePattern(p pattern.Pattern) {
	c.mu.Lock()
	c.pattern = p
	c.mu.Unlock()
	c.replayWindow()
}

// UpdateCyclesPerSecond replaces tempo and replays the overlapping
// window the same way UpdatePattern does.
func (c *Controller) UpdateCyclesPerSecond(cps float64) {
	if cps <= 0 {
		return
	}
	c.mu.Lock()
	c.cps = cps
	c.mu.Unlock()
	c.replayWindow()
}

func (c *Controller) replayWindow() {
	c.mu.Lock()
	if c.state != stateRunning {
		c.mu.Unlock()
		return
	}
	elapsed := time.Since(c.startTime).Seconds()
	nowCycle := rational.FromFloat64(elapsed * c.cps).Floor()
	to := c.queryCursorCycles.Ceil()
	voices, _ := c.collectVoices(nowCycle, to)
	c.sampleLookaheadPointer = nowCycle
	c.mu.Unlock()

	c.link.SendControl(link.Command{
		Kind:       link.CmdReplaceVoices,
		PlaybackID: c.playbackID,
		FromCycle:  nowCycle.FloorInt(),
		ToCycle:    to.FloorInt(),
		Voices:     voices,
	})
}

// Stop transitions running/starting->stopped, cancels the scheduling
// loop, sends Cleanup, and emits PlaybackStopped, per spec.md §4.3 step
// 7. It is safe to call more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopLocked()
	c.mu.Unlock()
}

func (c *Controller) stopLocked() {
	if c.state == stateStopped {
		return
	}
	c.state = stateStopped
	if c.stopCh != nil {
		close(c.stopCh)
	}
	c.link.SendControl(link.Command{Kind: link.CmdCleanup, PlaybackID: c.playbackID})
	c.bus.Emit(signalbus.PlaybackStopped, map[string]any{"playbackId": c.playbackID})
}

// Running reports whether the controller is currently driving a playback.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateRunning
}

// CPS returns the controller's current tempo, for session export.
func (c *Controller) CPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cps
}

// LookaheadSec returns the controller's scheduling lookahead, for
// session export.
func (c *Controller) LookaheadSec() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookaheadSec
}

func sampleRequestFor(d voicedata.VoiceData) sample.SampleRequest {
	return sample.SampleRequest{Bank: d.Bank, Sound: d.Sound, Index: d.SoundIndex, Note: d.Note}
}
