package signalbus

import "testing"

func TestEmitDispatchesToSubscribers(t *testing.T) {
	b := New()
	var got any
	b.On(CycleCompleted, func(data any) { got = data })

	b.Emit(CycleCompleted, 42)

	if got != 42 {
		t.Errorf("got %v, want 42", got)
	}
}

func TestDisposerUnregisters(t *testing.T) {
	b := New()
	calls := 0
	dispose := b.On(PlaybackStarted, func(any) { calls++ })

	b.Emit(PlaybackStarted, nil)
	dispose()
	b.Emit(PlaybackStarted, nil)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := New()
	a, c := 0, 0
	b.On(PlaybackStopped, func(any) { a++ })
	b.On(PlaybackStopped, func(any) { c++ })

	b.Emit(PlaybackStopped, nil)

	if a != 1 || c != 1 {
		t.Errorf("a=%d c=%d, want both 1", a, c)
	}
}

func TestClearRemovesAllSubscribers(t *testing.T) {
	b := New()
	calls := 0
	b.On(CycleCompleted, func(any) { calls++ })
	b.Clear()
	b.Emit(CycleCompleted, nil)

	if calls != 0 {
		t.Errorf("calls = %d after Clear, want 0", calls)
	}
}
