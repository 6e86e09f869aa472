package sample

import (
	"sync"
	"sync/atomic"
	"testing"
)

func strp(s string) *string { return &s }

// S5: concurrently calling ensureLoaded({bd, sd}) four times dispatches
// exactly two loader invocations and exactly two resolutions.
func TestEnsureLoadedSingleFlight(t *testing.T) {
	var loadCount int32
	loader := LoaderFunc(func(req SampleRequest) (PCM, float64, error) {
		atomic.AddInt32(&loadCount, 1)
		return PCM{Channels: 1, Frames: [][]float32{{0, 0}}}, 440.0, nil
	})
	p := NewPreloader(loader)

	reqs := []SampleRequest{{Sound: strp("bd")}, {Sound: strp("sd")}}

	var resolveCount int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.EnsureLoaded("pb1", reqs, func(r Resolution) {
				atomic.AddInt32(&resolveCount, 1)
			}, nil)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&loadCount); got != 2 {
		t.Errorf("loader invoked %d times, want 2", got)
	}
	if got := atomic.LoadInt32(&resolveCount); got != 2 {
		t.Errorf("resolved %d times, want 2", got)
	}
}

// Preload determinism: ensureLoaded(S1); ensureLoaded(S2) sends exactly
// one resolution per distinct request across both calls.
func TestEnsureLoadedDeterminismAcrossCalls(t *testing.T) {
	loader := LoaderFunc(func(req SampleRequest) (PCM, float64, error) {
		return PCM{Channels: 1, Frames: [][]float32{{0}}}, 440.0, nil
	})
	p := NewPreloader(loader)

	var resolveCount int32
	onResolve := func(r Resolution) { atomic.AddInt32(&resolveCount, 1) }

	p.EnsureLoaded("pb1", []SampleRequest{{Sound: strp("bd")}, {Sound: strp("sd")}}, onResolve, nil)
	p.EnsureLoaded("pb1", []SampleRequest{{Sound: strp("sd")}, {Sound: strp("cp")}}, onResolve, nil)

	if got := atomic.LoadInt32(&resolveCount); got != 3 {
		t.Errorf("resolved %d times across two calls, want 3 (bd, sd, cp)", got)
	}
}

func TestLoaderErrorBecomesNotFound(t *testing.T) {
	loader := LoaderFunc(func(req SampleRequest) (PCM, float64, error) {
		return PCM{}, 0, assertErr
	})
	p := NewPreloader(loader)

	var got Resolution
	done := make(chan struct{})
	p.EnsureLoaded("pb1", []SampleRequest{{Sound: strp("missing")}}, func(r Resolution) {
		got = r
		close(done)
	}, nil)
	<-done

	if got.Found {
		t.Error("expected Found=false on loader error")
	}
}

var assertErr = sampleErr("boom")

type sampleErr string

func (e sampleErr) Error() string { return string(e) }

type recordingSignaler struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSignaler) Emit(event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestSignalsBracketNewLoads(t *testing.T) {
	loader := LoaderFunc(func(req SampleRequest) (PCM, float64, error) {
		return PCM{Channels: 1, Frames: [][]float32{{0}}}, 440.0, nil
	})
	p := NewPreloader(loader)
	sig := &recordingSignaler{}

	p.EnsureLoaded("pb1", []SampleRequest{{Sound: strp("bd")}}, func(Resolution) {}, sig)

	if len(sig.events) != 2 || sig.events[0] != SignalPreloadingSamples || sig.events[1] != SignalSamplesPreloaded {
		t.Errorf("expected [PreloadingSamples, SamplesPreloaded], got %v", sig.events)
	}
}
