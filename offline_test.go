package klang

import (
	"math"
	"testing"

	"github.com/klanglive/klang/internal/pattern"
	"github.com/klanglive/klang/internal/sample"
	"github.com/klanglive/klang/internal/voicedata"
)

func noopLoader() sample.Loader {
	return sample.LoaderFunc(func(req sample.SampleRequest) (sample.PCM, float64, error) {
		return sample.PCM{}, 0, nil
	})
}

// TestRenderOfflineProducesNonSilentOutput checks a basic synth pattern
// renders audible, finite samples over a fixed window.
func TestRenderOfflineProducesNonSilentOutput(t *testing.T) {
	p := pattern.FastCat(
		pattern.Pure(voicedata.VoiceData{}.WithSound("sine").WithNote(60)),
		pattern.Pure(voicedata.VoiceData{}.WithSound("saw").WithNote(64)),
	)
	out, err := RenderOffline(p, 2.0, 2.0, 48000, 256, noopLoader())
	if err != nil {
		t.Fatalf("RenderOffline: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected non-empty output")
	}
	loud := false
	for _, s := range out {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			t.Fatalf("output contains non-finite sample: %v", s)
		}
		if math.Abs(float64(s)) > 1e-3 {
			loud = true
		}
	}
	if !loud {
		t.Fatalf("expected at least some audible output")
	}
}

// TestRenderOfflineDeterministic checks spec.md §8 invariant 3
// (determinism): identical inputs always produce byte-identical output,
// since RenderOffline always starts the playback epoch at frame zero.
func TestRenderOfflineDeterministic(t *testing.T) {
	newPattern := func() pattern.Pattern {
		return pattern.FastCat(
			pattern.Pure(voicedata.VoiceData{}.WithSound("square").WithNote(57)),
			pattern.Pure(voicedata.VoiceData{}.WithSound("triangle").WithNote(60)),
			pattern.Pure(voicedata.VoiceData{}.WithSound("noise")),
		)
	}
	out1, err := RenderOffline(newPattern(), 3.0, 1.0, 48000, 128, noopLoader())
	if err != nil {
		t.Fatalf("RenderOffline (1): %v", err)
	}
	out2, err := RenderOffline(newPattern(), 3.0, 1.0, 48000, 128, noopLoader())
	if err != nil {
		t.Fatalf("RenderOffline (2): %v", err)
	}
	if len(out1) != len(out2) {
		t.Fatalf("output length differs: %d vs %d", len(out1), len(out2))
	}
	for i := range out1 {
		if out1[i] != out2[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, out1[i], out2[i])
		}
	}
}

// TestRenderOfflineSilentPatternStaysQuiet checks that an empty pattern
// renders only silence, never panicking (empty-children failure mode,
// spec.md §4.1).
func TestRenderOfflineSilentPatternStaysQuiet(t *testing.T) {
	out, err := RenderOffline(pattern.Silence(), 1.0, 2.0, 48000, 256, noopLoader())
	if err != nil {
		t.Fatalf("RenderOffline: %v", err)
	}
	for _, s := range out {
		if s != 0 {
			t.Fatalf("expected silence from an empty pattern, got %v", s)
		}
	}
}
