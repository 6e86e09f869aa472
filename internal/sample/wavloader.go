package sample

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"
)

// FileLoader resolves a SampleRequest to a WAV file on disk and decodes
// it with go-audio/wav — grounded on schollz-221e's internal/getbpm
// (wav.NewDecoder/IsValidFile/FullPCMBuffer usage), the pack's own WAV
// decoding idiom, repurposed here from BPM probing to full PCM decode.
type FileLoader struct {
	// Root is the sample library directory; files are looked up at
	// Root/bank/sound<index>.wav. The bank directory is left out when
	// Bank is unset, the index when Index is unset, and the name is
	// "sample" when Sound is unset.
	Root string
}

func (f FileLoader) Load(req SampleRequest) (PCM, float64, error) {
	path := f.resolvePath(req)
	fh, err := os.Open(path)
	if err != nil {
		return PCM{}, 0, fmt.Errorf("sample: open %s: %w", path, err)
	}
	defer fh.Close()

	d := wav.NewDecoder(fh)
	if !d.IsValidFile() {
		return PCM{}, 0, fmt.Errorf("sample: invalid wav file %s", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return PCM{}, 0, fmt.Errorf("sample: decode %s: %w", path, err)
	}
	if buf.Format.NumChannels <= 0 {
		return PCM{}, 0, fmt.Errorf("sample: %s has no channels", path)
	}

	pcm := deinterleave(buf.Data, buf.Format.NumChannels, buf.SourceBitDepth)
	pcm.SampleRate = buf.Format.SampleRate

	basePitch := 261.6255653005986 // middle C, the default base pitch
	// for untuned one-shot samples absent per-file tuning metadata.
	return pcm, basePitch, nil
}

func (f FileLoader) resolvePath(req SampleRequest) string {
	parts := []string{f.Root}
	if req.Bank != nil {
		parts = append(parts, *req.Bank)
	}
	name := "sample"
	if req.Sound != nil {
		name = *req.Sound
	}
	if req.Index != nil {
		name = fmt.Sprintf("%s%d", name, *req.Index)
	}
	parts = append(parts, name+".wav")
	return filepath.Join(parts...)
}

func deinterleave(data []int, channels int, bitDepth int) PCM {
	frames := len(data) / channels
	out := PCM{Channels: channels, Frames: make([][]float32, channels)}
	scale := float32(1.0 / math.Pow(2, float64(bitDepth-1)))
	for c := 0; c < channels; c++ {
		out.Frames[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			out.Frames[c][i] = float32(data[i*channels+c]) * scale
		}
	}
	return out
}
