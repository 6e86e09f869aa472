package audio

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
)

type fakeSource struct {
	fill     float32
	finished bool
}

func (s *fakeSource) Process(dst []float32) {
	for i := range dst {
		dst[i] = s.fill
	}
}

func (s *fakeSource) Finished() bool { return s.finished }

// TestStreamReaderEncodesLittleEndianFloat32 checks Read packs each
// stereo sample pair as two little-endian float32s, matching what
// ebiten's NewPlayerF32 expects.
func TestStreamReaderEncodesLittleEndianFloat32(t *testing.T) {
	src := &fakeSource{fill: 0.25}
	r := NewStreamReader(src)

	p := make([]byte, 8*4) // 4 stereo frames
	n, err := r.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(p) {
		t.Fatalf("n = %d, want %d", n, len(p))
	}
	for i := 0; i < len(p); i += 4 {
		bits := binary.LittleEndian.Uint32(p[i : i+4])
		got := math.Float32frombits(bits)
		if got != 0.25 {
			t.Fatalf("sample at byte %d = %v, want 0.25", i, got)
		}
	}
}

// TestStreamReaderReturnsEOFWhenSourceFinished checks a FinishingSource
// reporting true causes the next Read to surface io.EOF alongside its
// final bytes, so the ebiten player can stop cleanly.
func TestStreamReaderReturnsEOFWhenSourceFinished(t *testing.T) {
	src := &fakeSource{fill: 0, finished: true}
	r := NewStreamReader(src)

	p := make([]byte, 16)
	_, err := r.Read(p)
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

// TestStreamReaderZeroLengthRequestIsNoop checks a destination buffer
// too small to hold a single stereo frame returns without touching the
// source.
func TestStreamReaderZeroLengthRequestIsNoop(t *testing.T) {
	src := &fakeSource{}
	r := NewStreamReader(src)

	n, err := r.Read(make([]byte, 4))
	if err != nil || n != 0 {
		t.Fatalf("Read with sub-frame buffer = (%d, %v), want (0, nil)", n, err)
	}
}
