package controller

import (
	"context"
	"testing"
	"time"

	"github.com/klanglive/klang/internal/link"
	"github.com/klanglive/klang/internal/pattern"
	"github.com/klanglive/klang/internal/sample"
	"github.com/klanglive/klang/internal/signalbus"
	"github.com/klanglive/klang/internal/voicedata"
)

func fakeLoader() sample.Loader {
	return sample.LoaderFunc(func(req sample.SampleRequest) (sample.PCM, float64, error) {
		return sample.PCM{Channels: 1, SampleRate: 48000, Frames: [][]float32{make([]float32, 128)}}, 440, nil
	})
}

// TestPreloadResolvesBeforeStartCompletes checks spec.md §4.3 step 2: a
// distinct sample request is collected from the first two cycles,
// bracketed by PreloadingSamples/SamplesPreloaded, and forwarded to the
// back-end as a Sample.Complete command before Start returns.
func TestPreloadResolvesBeforeStartCompletes(t *testing.T) {
	bank := "bd"
	p := pattern.Pure(voicedata.VoiceData{Bank: &bank})
	l := link.New()
	bus := signalbus.New()
	pre := sample.NewPreloader(fakeLoader())

	var preloading, preloaded int
	bus.On(signalbus.PreloadingSamples, func(any) { preloading++ })
	bus.On(signalbus.SamplesPreloaded, func(any) { preloaded++ })

	c := New("p1", p, l, pre, bus, Options{CPS: 4})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if preloading != 1 || preloaded != 1 {
		t.Fatalf("expected exactly one Preloading/Preloaded bracket, got %d/%d", preloading, preloaded)
	}

	select {
	case cmd := <-l.Control():
		if cmd.Kind != link.CmdSampleComplete {
			t.Fatalf("expected CmdSampleComplete, got %v", cmd.Kind)
		}
	default:
		t.Fatalf("expected a Sample.Complete command forwarded to the back-end")
	}
}

// TestStartRejectsDoubleStart checks spec.md §4.3 step 1.
func TestStartRejectsDoubleStart(t *testing.T) {
	p := pattern.Pure(voicedata.VoiceData{}.WithSound("bd"))
	l := link.New()
	bus := signalbus.New()
	pre := sample.NewPreloader(fakeLoader())

	c := New("p1", p, l, pre, bus, Options{CPS: 4})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer c.Stop()
	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("expected second Start to be rejected")
	}
}

// TestStopEmitsCleanupAndSignal checks spec.md §4.3 step 7.
func TestStopEmitsCleanupAndSignal(t *testing.T) {
	p := pattern.Pure(voicedata.VoiceData{}.WithSound("bd"))
	l := link.New()
	bus := signalbus.New()
	pre := sample.NewPreloader(fakeLoader())

	var stopped int
	bus.On(signalbus.PlaybackStopped, func(any) { stopped++ })

	c := New("p1", p, l, pre, bus, Options{CPS: 4})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c.Stop()

	if stopped != 1 {
		t.Fatalf("expected exactly one PlaybackStopped emission, got %d", stopped)
	}
	if c.Running() {
		t.Fatalf("expected controller to report not running after Stop")
	}

	found := false
	for {
		select {
		case cmd := <-l.Control():
			if cmd.Kind == link.CmdCleanup && cmd.PlaybackID == "p1" {
				found = true
			}
		default:
			goto checked
		}
	}
checked:
	if !found {
		t.Fatalf("expected a Cleanup command for playback p1")
	}

	// Stop must be idempotent.
	c.Stop()
}

// TestOneShotStopsAfterTargetCycles exercises spec.md §8 invariant 8: once
// cyclesToPlay cycles have completed, a OneShot controller stops itself
// and never schedules further voices.
func TestOneShotStopsAfterTargetCycles(t *testing.T) {
	p := pattern.Pure(voicedata.VoiceData{}.WithSound("bd"))
	l := link.New()
	bus := signalbus.New()
	pre := sample.NewPreloader(fakeLoader())

	cycles := 2.0
	c := New("p1", p, l, pre, bus, Options{CPS: 50, CyclesToPlay: &cycles})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for c.Running() {
		select {
		case <-deadline:
			t.Fatalf("OneShot controller never stopped itself")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Drain whatever ScheduleVoice commands already landed, then confirm
	// no further ones arrive after the controller has stopped.
	drainControl(l)
	select {
	case cmd := <-l.Control():
		if cmd.Kind == link.CmdScheduleVoice {
			t.Fatalf("expected no further ScheduleVoice after OneShot stop")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

// TestStallSafeCycleCompletion exercises spec.md §8 invariant 7 directly
// by simulating a stall: startTime is set far enough in the past that a
// single tick() call must catch up through more than one cycle boundary,
// emitting CycleCompleted for each one, in order, without duplicates.
func TestStallSafeCycleCompletion(t *testing.T) {
	p := pattern.Pure(voicedata.VoiceData{}.WithSound("bd"))
	l := link.New()
	bus := signalbus.New()
	pre := sample.NewPreloader(fakeLoader())

	c := New("p1", p, l, pre, bus, Options{CPS: 2}) // secPerCycle = 0.5s

	var cycles []int64
	bus.On(signalbus.CycleCompleted, func(data any) {
		m := data.(map[string]any)
		cycles = append(cycles, m["cycleIndex"].(int64))
	})

	c.mu.Lock()
	c.state = stateRunning
	c.startTime = time.Now().Add(-1300 * time.Millisecond) // simulate a stall
	c.lastEmittedCycle = -1
	c.mu.Unlock()

	c.tick()

	if len(cycles) < 2 {
		t.Fatalf("expected at least 2 CycleCompleted emissions after a stall, got %d", len(cycles))
	}
	for i := 1; i < len(cycles); i++ {
		if cycles[i] != cycles[i-1]+1 {
			t.Fatalf("expected contiguous cycle indices, got %v", cycles)
		}
	}
}

func drainControl(l *link.Link) {
	for {
		select {
		case <-l.Control():
		default:
			return
		}
	}
}
