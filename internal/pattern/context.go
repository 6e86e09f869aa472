package pattern

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"
)

// QueryContext is the copy-on-write key/value bag threaded down through
// every Query call, carrying cps and the seed choice derives its RNG
// from. Descent-only state means a child never sees its sibling's
// additions — WithValue always returns a fresh context, never mutates
// the receiver, matching spec.md's "copy-on-write map" description.
type QueryContext struct {
	cps        float64
	randomSeed uint64
	values     map[string]any
}

// NewQueryContext builds a root context. cps is cycles-per-second (tempo);
// seed is the root RNG seed choice-style combinators derive from.
func NewQueryContext(cps float64, seed uint64) *QueryContext {
	return &QueryContext{cps: cps, randomSeed: seed}
}

func (c *QueryContext) CPS() float64        { return c.cps }
func (c *QueryContext) RandomSeed() uint64  { return c.randomSeed }

func (c *QueryContext) clone() *QueryContext {
	nc := &QueryContext{cps: c.cps, randomSeed: c.randomSeed}
	if len(c.values) > 0 {
		nc.values = make(map[string]any, len(c.values))
		for k, v := range c.values {
			nc.values[k] = v
		}
	}
	return nc
}

// WithCPS returns a copy of c with cps replaced.
func (c *QueryContext) WithCPS(cps float64) *QueryContext {
	nc := c.clone()
	nc.cps = cps
	return nc
}

// WithValue returns a copy of c with key set to v.
func (c *QueryContext) WithValue(key string, v any) *QueryContext {
	nc := c.clone()
	if nc.values == nil {
		nc.values = make(map[string]any, 1)
	}
	nc.values[key] = v
	return nc
}

// Value looks up a descent-only value set by an ancestor's WithValue.
func (c *QueryContext) Value(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// CycleRand derives a deterministic RNG from (randomSeed, cyc) so that
// choice-style combinators vary from cycle to cycle but reproduce
// identically on replay of the same seed, per spec.md §4.1's "Choice"
// requirement.
func (c *QueryContext) CycleRand(cyc int64) *rand.Rand {
	h := fnv.New64a()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], c.randomSeed)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(cyc))
	h.Write(buf[:])
	return rand.New(rand.NewSource(int64(h.Sum64())))
}
