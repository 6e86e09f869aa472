package render

import "github.com/klanglive/klang/internal/sample"

// Registry is the shared sample PCM table spec.md §5 describes: written
// by the back-end only, when a Sample.Complete control command arrives
// (internal/voices forwards it here), and read only at voice
// construction time (promotion), both exclusively on the audio thread —
// no locking is required because both operations happen on the same
// goroutine.
type Registry struct {
	entries map[string]registryEntry
}

type registryEntry struct {
	pcm     sample.PCM
	pitchHz float64
	found   bool
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Complete records a resolved sample, per spec.md §4.5 step 2's
// Sample.Complete handling.
func (r *Registry) Complete(req sample.SampleRequest, pitchHz float64, pcm sample.PCM) {
	r.entries[req.Key()] = registryEntry{pcm: pcm, pitchHz: pitchHz, found: true}
}

// NotFound records a failed resolution so voice construction can discard
// the voice (spec.md §4.6 failure mode / §7 SampleNotFound) instead of
// retrying indefinitely.
func (r *Registry) NotFound(req sample.SampleRequest) {
	r.entries[req.Key()] = registryEntry{found: false}
}

// Lookup returns the PCM and base pitch for req, and whether it has been
// resolved at all (resolved=false means the load hasn't completed yet,
// as distinct from a resolved-but-NotFound entry).
func (r *Registry) Lookup(req sample.SampleRequest) (pcm sample.PCM, pitchHz float64, found, resolved bool) {
	e, ok := r.entries[req.Key()]
	if !ok {
		return sample.PCM{}, 0, false, false
	}
	return e.pcm, e.pitchHz, e.found, true
}
