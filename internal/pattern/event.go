package pattern

import (
	"github.com/klanglive/klang/internal/rational"
	"github.com/klanglive/klang/internal/voicedata"
)

// Event is StrudelPatternEvent: a fragment of a pattern's output. A nil
// Whole marks an event with no onset (HasOnset is false); the continuous
// patterns in this package (sine, saw, time, rand) set Whole to the same
// span as Part. Part is always set and always lies within the query arc.
type Event struct {
	Part  TimeSpan
	Whole *TimeSpan
	Data  voicedata.VoiceData
}

// HasOnset reports whether this event's part begins where its whole
// begins — the downstream onset filter every voice-producing consumer
// applies before scheduling a voice.
func (e Event) HasOnset() bool {
	return e.Whole != nil && e.Whole.Begin.Equal(e.Part.Begin)
}

func (e Event) shiftTime(offset rational.Rational) Event {
	e.Part = e.Part.Shift(offset)
	if e.Whole != nil {
		w := e.Whole.Shift(offset)
		e.Whole = &w
	}
	return e
}

func (e Event) scaleTime(factor rational.Rational) Event {
	e.Part = e.Part.Scale(factor)
	if e.Whole != nil {
		w := e.Whole.Scale(factor)
		e.Whole = &w
	}
	return e
}

func (e Event) mapTime(f func(rational.Rational) rational.Rational) Event {
	e.Part = span(f(e.Part.Begin), f(e.Part.End))
	if e.Whole != nil {
		w := span(f(e.Whole.Begin), f(e.Whole.End))
		e.Whole = &w
	}
	return e
}

func (e Event) withPart(p TimeSpan) Event { e.Part = p; return e }
