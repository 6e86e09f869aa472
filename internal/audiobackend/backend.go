// Package audiobackend implements the audio backend driver (spec
// component L): the block-cadenced loop that advances the authoritative
// frame counter, drives the voice scheduler and orbit mixer once per
// block, and exposes the result as an internal/audio.SampleSource the
// host's ebiten audio.Player pulls from.
//
// The pull-model shape (Process(dst []float32) fills whatever the host
// asks for, re-rendering internal fixed-size blocks as needed) is
// grounded on internal/audio/stream.go's StreamReader.Read, which already
// does exactly this for a single SampleSource; Backend is the
// SampleSource it was written to drive.
package audiobackend

import (
	"github.com/klanglive/klang/internal/mixer"
	"github.com/klanglive/klang/internal/voices"
)

// silentBlocksToFinish is how many consecutive silent, voice-empty
// blocks a OneShot-mode backend waits out before declaring Finished,
// matching spec.md §4.4's OneShot stop condition (no scheduled or active
// voices remain and the tail has rung out).
const silentBlocksToFinish = 4

// Backend owns the authoritative frame counter and drives one block of
// work (scheduler promote/render, then mixer mixdown) each time its
// internal carry buffer runs dry. It implements audio.SampleSource.
type Backend struct {
	scheduler *voices.Scheduler
	mixer     *mixer.Mixer

	sampleRate  int
	blockFrames int
	frame       int64

	carry    []float32
	carryPos int

	oneShot      bool
	finished     bool
	silentBlocks int

	snapshot []float32 // last rendered block, for the visualizer tap
}

func New(scheduler *voices.Scheduler, mx *mixer.Mixer, sampleRate, blockFrames int) *Backend {
	return &Backend{
		scheduler:   scheduler,
		mixer:       mx,
		sampleRate:  sampleRate,
		blockFrames: blockFrames,
		carry:       make([]float32, blockFrames*2),
		carryPos:    blockFrames * 2, // empty: force a render on first Process
		snapshot:    make([]float32, blockFrames*2),
	}
}

// SetOneShot switches the backend into OneShot playback mode (spec.md
// §4.4): Finished becomes true once every voice has drained and a few
// blocks of silence confirm no send tail remains.
func (b *Backend) SetOneShot(oneShot bool) { b.oneShot = oneShot }

// SampleRate reports the fixed sample rate this backend renders at.
func (b *Backend) SampleRate() int { return b.sampleRate }

// CurrentFrame returns the authoritative frame counter: the frame index
// the next rendered block will start at.
func (b *Backend) CurrentFrame() int64 { return b.frame }

// Process implements audio.SampleSource, filling dst (stereo interleaved
// float32) from the carry buffer, rendering additional internal blocks
// as needed. dst may be any length; it is not required to align with
// blockFrames.
func (b *Backend) Process(dst []float32) {
	i := 0
	for i < len(dst) {
		if b.carryPos >= len(b.carry) {
			b.renderBlock()
		}
		n := copy(dst[i:], b.carry[b.carryPos:])
		b.carryPos += n
		i += n
	}
}

// Finished implements audio.FinishingSource for OneShot mode.
func (b *Backend) Finished() bool { return b.oneShot && b.finished }

// Snapshot copies the most recently rendered block's stereo samples into
// dst (up to len(dst)), allocation-free, for a UI-side waveform view
// (spec.md §9's optional visualizer tap). It copies the final master
// block, after the master mix and soft clip, exactly as sent to the
// host; no pre-master signal and no spectrum are exposed.
func (b *Backend) Snapshot(dst []float32) int {
	return copy(dst, b.snapshot)
}

func (b *Backend) renderBlock() {
	b.mixer.BeginBlock()
	b.scheduler.Process(b.frame, b.blockFrames)
	b.mixer.ProcessAndMix(b.carry)
	copy(b.snapshot, b.carry)
	b.frame += int64(b.blockFrames)
	b.carryPos = 0

	if b.oneShot {
		b.trackSilence()
	}
}

func (b *Backend) trackSilence() {
	silent := true
	for _, s := range b.carry {
		if s != 0 {
			silent = false
			break
		}
	}
	idle := b.scheduler.ActiveVoiceCount() == 0 && b.scheduler.ScheduledCount() == 0
	if silent && idle {
		b.silentBlocks++
	} else {
		b.silentBlocks = 0
	}
	if b.silentBlocks >= silentBlocksToFinish {
		b.finished = true
	}
}
