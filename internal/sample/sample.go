// Package sample implements the sample preloader (spec component E): a
// content-addressed cache from SampleRequest to decoded PCM, with
// single-flight dedup so concurrent requests for the same sample only
// trigger one load.
package sample

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// SampleRequest identifies a sample by bank/sound/index, optionally
// narrowed to a specific note (for per-note sample zones). All fields
// are optional per spec.md §6's "SampleRequest { bank?, sound?, index?,
// note? }".
type SampleRequest struct {
	Bank  *string
	Sound *string
	Index *int
	Note  *float64
}

// Key returns a canonical string encoding used both as the cache key and
// the singleflight.Group key.
func (r SampleRequest) Key() string {
	bank, sound, index, note := "-", "-", "-", "-"
	if r.Bank != nil {
		bank = *r.Bank
	}
	if r.Sound != nil {
		sound = *r.Sound
	}
	if r.Index != nil {
		index = fmt.Sprintf("%d", *r.Index)
	}
	if r.Note != nil {
		note = fmt.Sprintf("%g", *r.Note)
	}
	return bank + "|" + sound + "|" + index + "|" + note
}

// PCM is decoded sample audio, deinterleaved per channel.
type PCM struct {
	Channels   int
	SampleRate int
	Frames     [][]float32 // Frames[channel][frame]
}

func (p PCM) Len() int {
	if len(p.Frames) == 0 {
		return 0
	}
	return len(p.Frames[0])
}

// Loader resolves a SampleRequest to decoded PCM plus the base pitch of
// the recording (used to compute playback pitch ratio at render time).
type Loader interface {
	Load(req SampleRequest) (pcm PCM, basePitchHz float64, err error)
}

// LoaderFunc adapts a plain function to Loader.
type LoaderFunc func(req SampleRequest) (PCM, float64, error)

func (f LoaderFunc) Load(req SampleRequest) (PCM, float64, error) { return f(req) }

// Resolution is the side effect ensureLoaded produces for a request:
// either Complete with decoded PCM, or NotFound when the loader failed.
// Mirrors spec.md §6's Sample.Complete/Sample.NotFound commands.
type Resolution struct {
	PlaybackID string
	Request    SampleRequest
	Note       *float64
	PitchHz    float64
	PCM        PCM
	Found      bool
}

// Signaler is the minimal interface the preloader needs from the signal
// bus (component H) to emit PreloadingSamples/SamplesPreloaded without
// importing it directly.
type Signaler interface {
	Emit(event string, data any)
}

const (
	SignalPreloadingSamples = "PreloadingSamples"
	SignalSamplesPreloaded  = "SamplesPreloaded"
)

// Preloader is the content-addressed cache. A request is "sent" at most
// once for the lifetime of the preloader: a later EnsureLoaded call skips
// a request as soon as an earlier call has dispatched it, whether or not
// that load has finished, and does not wait for it.
type Preloader struct {
	loader Loader

	mu   sync.Mutex
	sent map[string]bool

	flight singleflight.Group
}

func NewPreloader(loader Loader) *Preloader {
	return &Preloader{loader: loader, sent: make(map[string]bool)}
}

// EnsureLoaded partitions reqs into already-sent (skipped) and
// not-yet-sent (loaded, single-flighted by request key), invoking
// onResolve exactly once per distinct request across the preloader's
// lifetime. If sig is non-nil and at least one request is newly
// dispatched, PreloadingSamples/SamplesPreloaded bracket the load.
func (p *Preloader) EnsureLoaded(playbackID string, reqs []SampleRequest, onResolve func(Resolution), sig Signaler) {
	pending := p.partition(reqs)
	if len(pending) == 0 {
		return
	}
	if sig != nil {
		sig.Emit(SignalPreloadingSamples, map[string]any{"count": len(pending)})
	}

	var wg sync.WaitGroup
	for _, req := range pending {
		wg.Add(1)
		go func(req SampleRequest) {
			defer wg.Done()
			p.resolveOne(playbackID, req, onResolve)
		}(req)
	}
	wg.Wait()

	if sig != nil {
		sig.Emit(SignalSamplesPreloaded, map[string]any{"count": len(pending)})
	}
}

// partition returns the subset of reqs not yet marked sent, marking
// them sent immediately so concurrent EnsureLoaded calls never double
// dispatch the same request (spec.md §8 "preload determinism").
func (p *Preloader) partition(reqs []SampleRequest) []SampleRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	var pending []SampleRequest
	seen := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		k := r.Key()
		if p.sent[k] || seen[k] {
			continue
		}
		seen[k] = true
		p.sent[k] = true
		pending = append(pending, r)
	}
	return pending
}

func (p *Preloader) resolveOne(playbackID string, req SampleRequest, onResolve func(Resolution)) {
	v, err, _ := p.flight.Do(req.Key(), func() (any, error) {
		pcm, pitch, loadErr := p.loader.Load(req)
		if loadErr != nil {
			return Resolution{PlaybackID: playbackID, Request: req, Found: false}, nil
		}
		return Resolution{PlaybackID: playbackID, Request: req, Note: req.Note, PitchHz: pitch, PCM: pcm, Found: true}, nil
	})
	if err != nil {
		onResolve(Resolution{PlaybackID: playbackID, Request: req, Found: false})
		return
	}
	res := v.(Resolution)
	res.PlaybackID = playbackID
	onResolve(res)
}
