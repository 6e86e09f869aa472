// Package link implements the communication link (spec component F):
// bounded, non-blocking channels carrying Control commands front-end to
// back-end and Feedback messages back-end to front-end. The send side
// never blocks — a full channel drops the message and records it in
// diagnostics, the same select/default drop-on-full idiom
// the teacher's player.go sendEvent uses for its PlaybackEvent channel.
package link

import (
	"sync/atomic"

	"github.com/klanglive/klang/internal/sample"
	"github.com/klanglive/klang/internal/voicedata"
)

// DefaultCapacity sizes both queues for >=1s of scheduling ahead at
// realistic event densities, per spec.md §4.8.
const DefaultCapacity = 4096

// CommandKind tags the Control union, matching the teacher's PlaybackEvent
// Kind-int tagging idiom rather than a Go type-switch interface.
type CommandKind int

const (
	CmdScheduleVoice CommandKind = iota
	CmdReplaceVoices
	CmdSampleComplete
	CmdSampleNotFound
	CmdCleanup
)

// ScheduledVoice is spec.md §3's ScheduledVoice: relative seconds from
// the playback's epoch, immutable once created.
type ScheduledVoice struct {
	PlaybackID         string
	Data               voicedata.VoiceData
	StartTimeSec       float64
	GateEndTimeSec     float64
	PlaybackStartTimeSec float64
}

// Command is the front->back Control union.
type Command struct {
	Kind CommandKind

	PlaybackID string // ScheduleVoice, ReplaceVoices, Sample.*, Cleanup

	// ScheduleVoice
	Voice ScheduledVoice

	// ReplaceVoices
	FromCycle int64
	ToCycle   int64
	Voices    []ScheduledVoice

	// Sample.Complete / Sample.NotFound
	Request sample.SampleRequest
	Note    *float64
	PitchHz float64
	PCM     sample.PCM
}

// FeedbackKind tags the Feedback union.
type FeedbackKind int

const (
	FbRequestSample FeedbackKind = iota
	FbDiagnostics
	FbPlaybackLatency
)

type OrbitStatus struct {
	ID     int
	Active bool
}

// Feedback is the back->front Feedback union.
type Feedback struct {
	Kind FeedbackKind

	PlaybackID string

	// RequestSample
	Request sample.SampleRequest

	// Diagnostics (playbackId is always "global")
	RenderHeadroom   float64
	ActiveVoiceCount uint32
	Orbits           []OrbitStatus

	// PlaybackLatency
	BackendTimestampMs float64
}

// Diagnostics counts drops on each channel, since a full channel's
// sender (never the audio thread) must drop silently rather than block.
type Diagnostics struct {
	ControlDropped  int64
	FeedbackDropped int64
}

func (d *Diagnostics) recordControlDrop()  { atomic.AddInt64(&d.ControlDropped, 1) }
func (d *Diagnostics) recordFeedbackDrop() { atomic.AddInt64(&d.FeedbackDropped, 1) }

// Link owns the two bounded SPSC-style channels (modeled as buffered Go
// channels: single producer per direction by construction) plus their
// drop diagnostics.
type Link struct {
	control  chan Command
	feedback chan Feedback

	Diag Diagnostics
}

func New() *Link {
	return NewWithCapacity(DefaultCapacity)
}

func NewWithCapacity(capacity int) *Link {
	return &Link{
		control:  make(chan Command, capacity),
		feedback: make(chan Feedback, capacity),
	}
}

// SendControl is called from the front-end scheduler; never blocks.
func (l *Link) SendControl(cmd Command) {
	select {
	case l.control <- cmd:
	default:
		l.Diag.recordControlDrop()
	}
}

// Control exposes the receive side for the back-end voice scheduler.
func (l *Link) Control() <-chan Command { return l.control }

// SendFeedback is called from the back-end voice scheduler (audio
// thread); never blocks, never allocates beyond the struct copy.
func (l *Link) SendFeedback(fb Feedback) {
	select {
	case l.feedback <- fb:
	default:
		l.Diag.recordFeedbackDrop()
	}
}

// Feedback exposes the receive side for the front-end.
func (l *Link) Feedback() <-chan Feedback { return l.feedback }
