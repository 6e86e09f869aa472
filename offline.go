package klang

import (
	"github.com/klanglive/klang/internal/link"
	"github.com/klanglive/klang/internal/mixer"
	"github.com/klanglive/klang/internal/pattern"
	"github.com/klanglive/klang/internal/rational"
	"github.com/klanglive/klang/internal/render"
	"github.com/klanglive/klang/internal/sample"
	"github.com/klanglive/klang/internal/voicedata"
	"github.com/klanglive/klang/internal/voices"
)

// RenderOffline renders cycles of pat at the given tempo into an
// interleaved stereo float32 buffer without touching real wall-clock
// time or the audio sink — a deterministic, test-friendly substitute for
// the live controller/backend path, useful for asserting exact output
// against a fixed pattern and seed. All voices for the full render window
// are queried and scheduled up front, so playback epoch is always frame
// zero: identical inputs always produce byte-identical output.
func RenderOffline(pat pattern.Pattern, cps float64, cycles float64, sampleRate, blockFrames int, loader sample.Loader) ([]float32, error) {
	const playbackID = "offline"

	l := link.New()
	registry := render.NewRegistry()
	mx := mixer.New(sampleRate, blockFrames)
	scheduler := voices.New(l, registry, mx, sampleRate)
	preloader := sample.NewPreloader(loader)

	arc := pattern.TimeSpan{Begin: rational.Zero, End: rational.FromFloat64(cycles)}
	events := pat.Query(arc, pattern.NewQueryContext(cps, 0))

	preloadOffline(preloader, l, playbackID, events)
	scheduleOffline(l, playbackID, events, cps)

	totalFrames := int64(cycles / cps * float64(sampleRate))
	out := make([]float32, 0, totalFrames*2)
	scratch := make([]float32, blockFrames*2)
	for frame := int64(0); frame < totalFrames; frame += int64(blockFrames) {
		mx.BeginBlock()
		scheduler.Process(frame, blockFrames)
		mx.ProcessAndMix(scratch)
		out = append(out, scratch...)
	}
	if want := totalFrames * 2; int64(len(out)) > want {
		out = out[:want]
	}
	return out, nil
}

func preloadOffline(preloader *sample.Preloader, l *link.Link, playbackID string, events []pattern.Event) {
	seen := make(map[string]bool)
	var reqs []sample.SampleRequest
	for _, e := range events {
		if !e.HasOnset() || e.Data.Bank == nil {
			continue
		}
		req := offlineSampleRequest(e.Data)
		if seen[req.Key()] {
			continue
		}
		seen[req.Key()] = true
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return
	}
	preloader.EnsureLoaded(playbackID, reqs, func(res sample.Resolution) {
		if res.Found {
			l.SendControl(link.Command{
				Kind: link.CmdSampleComplete, PlaybackID: playbackID,
				Request: res.Request, Note: res.Note, PitchHz: res.PitchHz, PCM: res.PCM,
			})
			return
		}
		l.SendControl(link.Command{Kind: link.CmdSampleNotFound, PlaybackID: playbackID, Request: res.Request})
	}, nil)
}

func scheduleOffline(l *link.Link, playbackID string, events []pattern.Event, cps float64) {
	for _, e := range events {
		if !e.HasOnset() {
			continue
		}
		l.SendControl(link.Command{
			Kind:       link.CmdScheduleVoice,
			PlaybackID: playbackID,
			Voice: link.ScheduledVoice{
				PlaybackID:     playbackID,
				Data:           e.Data,
				StartTimeSec:   e.Whole.Begin.Float64() / cps,
				GateEndTimeSec: e.Whole.End.Float64() / cps,
			},
		})
	}
}

func offlineSampleRequest(d voicedata.VoiceData) sample.SampleRequest {
	return sample.SampleRequest{Bank: d.Bank, Sound: d.Sound, Index: d.SoundIndex, Note: d.Note}
}
