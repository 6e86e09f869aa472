// Command klang-demo plays a small fixed pattern through the engine for
// a configurable duration, mirroring the teacher's cmd/play_mml/main.go
// flag-based entry point style — no DSL parser is in scope, so the demo
// builds its pattern directly from the pattern-combinator API.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	klang "github.com/klanglive/klang"
	"github.com/klanglive/klang/internal/controller"
	"github.com/klanglive/klang/internal/pattern"
	"github.com/klanglive/klang/internal/rational"
	"github.com/klanglive/klang/internal/signalbus"
	"github.com/klanglive/klang/internal/voicedata"
)

func main() {
	duration := flag.Duration("duration", 8*time.Second, "how long to play")
	cps := flag.Float64("cps", 0.5, "cycles per second")
	sampleRoot := flag.String("samples", "samples", "sample library root directory")
	orbits := flag.Int("max-orbits", 16, "maximum concurrent orbits")
	flag.Parse()

	p, err := klang.NewPlayer(
		klang.WithSampleRoot(*sampleRoot),
		klang.WithMaxOrbits(*orbits),
	)
	if err != nil {
		log.Fatalf("[DEMO] new player: %v", err)
	}
	defer p.Close()

	p.OnSignal(signalbus.VoicesScheduled, func(data any) {
		log.Printf("[DEMO] voices scheduled: %v", data)
	})

	pat := demoPattern()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	id, err := p.Play(ctx, pat, controller.Options{CPS: *cps})
	if err != nil {
		log.Fatalf("[DEMO] play: %v", err)
	}
	log.Printf("[DEMO] playing %s at %.2f cps for %s", id, *cps, *duration)

	time.Sleep(*duration)

	if err := p.Stop(id); err != nil {
		log.Printf("[DEMO] stop: %v", err)
	}
}

// demoPattern builds a kick on the first half of each cycle and a snare
// on the second, with four hi-hats per cycle layered in orbit 1, the way a
// Strudel/Tidal "session starter" pattern looks once expressed as direct
// combinator calls instead of DSL syntax.
func demoPattern() pattern.Pattern {
	bd := voicedata.VoiceData{}.WithSound("bd").WithGain(0.9)
	sn := voicedata.VoiceData{}.WithSound("sn").WithGain(0.8)
	hh := voicedata.VoiceData{}.WithSound("hh").WithGain(0.4).WithOrbit(1)

	kickSnare := pattern.FastCat(pattern.Pure(bd), pattern.Pure(sn))
	hats := pattern.Fast(rational.FromInt(4), pattern.Pure(hh))

	return pattern.Stack(kickSnare, hats)
}
