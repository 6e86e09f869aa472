package audiobackend

import (
	"testing"

	"github.com/klanglive/klang/internal/link"
	"github.com/klanglive/klang/internal/mixer"
	"github.com/klanglive/klang/internal/render"
	"github.com/klanglive/klang/internal/voices"
)

const testSampleRate = 48000
const testBlockFrames = 64

func newTestBackend() *Backend {
	l := link.New()
	registry := render.NewRegistry()
	mx := mixer.New(testSampleRate, testBlockFrames)
	s := voices.New(l, registry, mx, testSampleRate)
	return New(s, mx, testSampleRate, testBlockFrames)
}

// TestProcessAdvancesFrameCounter checks Process renders internal blocks
// on demand and the authoritative frame counter advances by exactly the
// number of frames consumed.
func TestProcessAdvancesFrameCounter(t *testing.T) {
	b := newTestBackend()
	dst := make([]float32, testBlockFrames*2*3) // 3 blocks worth
	b.Process(dst)
	if b.CurrentFrame() != int64(testBlockFrames*3) {
		t.Fatalf("frame counter = %d, want %d", b.CurrentFrame(), testBlockFrames*3)
	}
}

// TestProcessHandlesUnalignedRequests checks dst need not be a multiple
// of blockFrames; the carry buffer straddles internal block boundaries.
func TestProcessHandlesUnalignedRequests(t *testing.T) {
	b := newTestBackend()
	dst := make([]float32, 37) // not a multiple of blockFrames*2
	b.Process(dst)
	dst2 := make([]float32, 101)
	b.Process(dst2)
	if b.CurrentFrame() <= 0 {
		t.Fatalf("expected frame counter to have advanced, got %d", b.CurrentFrame())
	}
}

// TestOneShotFinishesAfterSilence checks spec.md §4.4's OneShot stop
// condition: once no voices remain scheduled or active and the output
// has been silent for silentBlocksToFinish consecutive blocks, Finished
// reports true.
func TestOneShotFinishesAfterSilence(t *testing.T) {
	b := newTestBackend()
	b.SetOneShot(true)
	if b.Finished() {
		t.Fatalf("expected not finished before any blocks rendered")
	}
	dst := make([]float32, testBlockFrames*2)
	for i := 0; i < silentBlocksToFinish+2; i++ {
		b.Process(dst)
	}
	if !b.Finished() {
		t.Fatalf("expected OneShot backend to finish after sustained silence")
	}
}

// TestNonOneShotNeverFinishes checks Finished always reports false unless
// SetOneShot(true) was called, regardless of silence.
func TestNonOneShotNeverFinishes(t *testing.T) {
	b := newTestBackend()
	dst := make([]float32, testBlockFrames*2)
	for i := 0; i < silentBlocksToFinish+2; i++ {
		b.Process(dst)
	}
	if b.Finished() {
		t.Fatalf("expected non-OneShot backend to never report finished")
	}
}

// TestSnapshotReturnsLastRenderedBlock checks the visualizer tap copies
// without allocating beyond dst and reflects the most recent block.
func TestSnapshotReturnsLastRenderedBlock(t *testing.T) {
	b := newTestBackend()
	dst := make([]float32, testBlockFrames*2)
	b.Process(dst)
	snap := make([]float32, testBlockFrames*2)
	n := b.Snapshot(snap)
	if n != testBlockFrames*2 {
		t.Fatalf("Snapshot copied %d samples, want %d", n, testBlockFrames*2)
	}
}
