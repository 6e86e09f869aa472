// Package klang assembles the real-time pattern-driven audio engine:
// one sample preloader, one communication link, one voice scheduler,
// one orbit mixer, and one audio backend driver shared by every live
// playback, each owned by its own front-end playback controller. This
// mirrors the teacher's player.go entry point — a single exported Player
// type wiring every subsystem together behind option-function
// configuration — generalized from a single MML track to any number of
// concurrently live pattern playbacks.
package klang

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/klanglive/klang/internal/audio"
	"github.com/klanglive/klang/internal/audiobackend"
	"github.com/klanglive/klang/internal/controller"
	"github.com/klanglive/klang/internal/link"
	"github.com/klanglive/klang/internal/mixer"
	"github.com/klanglive/klang/internal/pattern"
	"github.com/klanglive/klang/internal/render"
	"github.com/klanglive/klang/internal/sample"
	"github.com/klanglive/klang/internal/session"
	"github.com/klanglive/klang/internal/signalbus"
	"github.com/klanglive/klang/internal/voices"
)

const (
	defaultSampleRate  = 48000
	defaultBlockFrames = 512
)

// playerConfig collects PlayerOption settings, the same small struct the
// teacher's player.go builds from its own functional options before
// constructing the Player.
type playerConfig struct {
	sampleRate  int
	blockFrames int
	maxOrbits   int
	loader      sample.Loader
}

// PlayerOption configures a Player at construction time.
type PlayerOption func(*playerConfig)

func WithSampleRate(rate int) PlayerOption {
	return func(c *playerConfig) { c.sampleRate = rate }
}

func WithBlockFrames(n int) PlayerOption {
	return func(c *playerConfig) { c.blockFrames = n }
}

func WithMaxOrbits(n int) PlayerOption {
	return func(c *playerConfig) { c.maxOrbits = n }
}

// WithSampleLoader overrides the sample loader (defaults to a
// sample.FileLoader rooted at "samples").
func WithSampleLoader(loader sample.Loader) PlayerOption {
	return func(c *playerConfig) { c.loader = loader }
}

// WithSampleRoot points the default loader at a sample library directory.
func WithSampleRoot(root string) PlayerOption {
	return func(c *playerConfig) { c.loader = sample.FileLoader{Root: root} }
}

// Player is the top-level handle on the audio engine: it owns the
// shared back-end (scheduler, mixer, backend driver, audio sink) and a
// registry of live playback controllers, one per call to Play.
type Player struct {
	sampleRate  int
	blockFrames int

	link      *link.Link
	registry  *render.Registry
	mixer     *mixer.Mixer
	scheduler *voices.Scheduler
	backend   *audiobackend.Backend
	preloader *sample.Preloader
	bus       *signalbus.Bus
	sink      *audio.Player

	mu          sync.Mutex
	controllers map[string]*controller.Controller
	nextID      int64

	diag atomic.Value // stores link.Feedback, last Diagnostics message

	stopFeedback chan struct{}
}

// NewPlayer constructs and wires every subsystem, then starts the shared
// feedback-dispatch loop and the audio sink.
func NewPlayer(opts ...PlayerOption) (*Player, error) {
	cfg := playerConfig{
		sampleRate:  defaultSampleRate,
		blockFrames: defaultBlockFrames,
		maxOrbits:   mixer.DefaultMaxOrbits,
		loader:      sample.FileLoader{Root: "samples"},
	}
	for _, o := range opts {
		o(&cfg)
	}

	l := link.New()
	registry := render.NewRegistry()
	mx := mixer.New(cfg.sampleRate, cfg.blockFrames)
	mx.SetMaxOrbits(cfg.maxOrbits)
	scheduler := voices.New(l, registry, mx, cfg.sampleRate)
	backend := audiobackend.New(scheduler, mx, cfg.sampleRate, cfg.blockFrames)

	sink, err := audio.NewPlayer(cfg.sampleRate, backend)
	if err != nil {
		return nil, fmt.Errorf("klang: audio sink init: %w", err)
	}

	p := &Player{
		sampleRate:   cfg.sampleRate,
		blockFrames:  cfg.blockFrames,
		link:         l,
		registry:     registry,
		mixer:        mx,
		scheduler:    scheduler,
		backend:      backend,
		preloader:    sample.NewPreloader(cfg.loader),
		bus:          signalbus.New(),
		sink:         sink,
		controllers:  make(map[string]*controller.Controller),
		stopFeedback: make(chan struct{}),
	}

	go p.feedbackLoop()
	sink.Play()
	return p, nil
}

// feedbackLoop is the single reader of the shared Feedback queue: it
// handles Diagnostics itself (spec.md §4.3: "handled at player level")
// and routes everything else to the addressed controller.
func (p *Player) feedbackLoop() {
	for {
		select {
		case <-p.stopFeedback:
			return
		case fb, ok := <-p.link.Feedback():
			if !ok {
				return
			}
			if fb.Kind == link.FbDiagnostics {
				p.diag.Store(fb)
				continue
			}
			p.mu.Lock()
			c := p.controllers[fb.PlaybackID]
			p.mu.Unlock()
			if c != nil {
				c.HandleFeedback(fb)
			}
		}
	}
}

// Diagnostics returns the most recently received Diagnostics feedback
// message, or the zero value if none has arrived yet.
func (p *Player) Diagnostics() link.Feedback {
	fb, _ := p.diag.Load().(link.Feedback)
	return fb
}

// Play starts a new live playback of p at the given tempo, returning its
// playbackID. ctx bounds how long Play waits for sample preload to
// finish before returning (spec.md §7 BackpressureOnStart); a timed-out
// preload does not fail the call, it leaves the playback in a starting
// state that becomes running as soon as samples resolve.
func (p *Player) Play(ctx context.Context, pat pattern.Pattern, opts controller.Options) (string, error) {
	p.mu.Lock()
	p.nextID++
	id := fmt.Sprintf("pb%d", p.nextID)
	ctrl := controller.New(id, pat, p.link, p.preloader, p.bus, opts)
	p.controllers[id] = ctrl
	p.mu.Unlock()

	if err := ctrl.Start(ctx); err != nil {
		p.mu.Lock()
		delete(p.controllers, id)
		p.mu.Unlock()
		return "", err
	}
	log.Printf("[PLAYER] started playback %s", id)
	return id, nil
}

// UpdatePattern replaces the live pattern for playbackID.
func (p *Player) UpdatePattern(playbackID string, pat pattern.Pattern) error {
	c, err := p.controllerFor(playbackID)
	if err != nil {
		return err
	}
	c.UpdatePattern(pat)
	return nil
}

// UpdateCyclesPerSecond replaces the tempo for playbackID.
func (p *Player) UpdateCyclesPerSecond(playbackID string, cps float64) error {
	c, err := p.controllerFor(playbackID)
	if err != nil {
		return err
	}
	c.UpdateCyclesPerSecond(cps)
	return nil
}

// Stop ends playbackID's playback and releases its controller.
func (p *Player) Stop(playbackID string) error {
	c, err := p.controllerFor(playbackID)
	if err != nil {
		return err
	}
	c.Stop()
	p.mu.Lock()
	delete(p.controllers, playbackID)
	p.mu.Unlock()
	log.Printf("[PLAYER] stopped playback %s", playbackID)
	return nil
}

// SaveSession captures playbackID's tempo/lookahead and the shared
// mixer's per-orbit routing, and writes it to path as JSON (see
// internal/session). The mixer's orbit routing is process-wide, not
// per-playback, so any live playback's call captures every orbit
// currently allocated.
func (p *Player) SaveSession(path, playbackID string) error {
	c, err := p.controllerFor(playbackID)
	if err != nil {
		return err
	}
	cfg := session.Config{
		CPS:          c.CPS(),
		LookaheadSec: c.LookaheadSec(),
		Orbits:       p.mixer.Configs(),
	}
	return session.Save(path, cfg)
}

// LoadSession reads a session.Config previously written by SaveSession
// and re-applies its orbit routing to the shared mixer and its tempo to
// playbackID's controller. Use UpdateCyclesPerSecond directly instead if
// only the tempo needs restoring.
func (p *Player) LoadSession(path, playbackID string) error {
	cfg, err := session.Load(path)
	if err != nil {
		return err
	}
	p.mixer.ApplyConfigs(cfg.Orbits)
	if playbackID == "" {
		return nil
	}
	return p.UpdateCyclesPerSecond(playbackID, cfg.CPS)
}

func (p *Player) controllerFor(playbackID string) (*controller.Controller, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.controllers[playbackID]
	if !ok {
		return nil, fmt.Errorf("klang: no such playback %q", playbackID)
	}
	return c, nil
}

// OnSignal subscribes fn to event on the player's shared signal bus
// (spec component H), returning a disposer to unregister it.
func (p *Player) OnSignal(event string, fn func(data any)) signalbus.Disposer {
	return p.bus.On(event, fn)
}

// Snapshot copies the most recently rendered block's stereo samples into
// dst, for a UI-side visualizer tap (spec.md §4.10).
func (p *Player) Snapshot(dst []float32) int {
	return p.backend.Snapshot(dst)
}

// Close stops every live playback and tears down the audio sink.
func (p *Player) Close() error {
	p.mu.Lock()
	ids := make([]string, 0, len(p.controllers))
	for id := range p.controllers {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	for _, id := range ids {
		_ = p.Stop(id)
	}
	close(p.stopFeedback)
	return p.sink.Stop()
}
