package session

import (
	"path/filepath"
	"testing"

	"github.com/klanglive/klang/internal/mixer"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	duckSrc := 0
	cfg := Config{
		CPS:          0.5,
		LookaheadSec: 0.2,
		Orbits: []mixer.OrbitConfig{
			{ID: 0, DelayAmt: 0.3, ReverbAmt: 0.5},
			{ID: 1, DelayAmt: 0, ReverbAmt: 0.1, DuckOrbit: &duckSrc, DuckAttack: 0.1, DuckDepth: 0.8},
		},
	}

	path := filepath.Join(t.TempDir(), "session.json")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.CPS != cfg.CPS || got.LookaheadSec != cfg.LookaheadSec {
		t.Fatalf("tempo mismatch: got %+v", got)
	}
	if len(got.Orbits) != 2 {
		t.Fatalf("expected 2 orbits, got %d", len(got.Orbits))
	}
	if got.Orbits[1].DuckOrbit == nil || *got.Orbits[1].DuckOrbit != 0 {
		t.Fatalf("duck orbit not round-tripped: %+v", got.Orbits[1])
	}
	if got.Orbits[1].DuckDepth != 0.8 {
		t.Fatalf("duck depth not round-tripped: %+v", got.Orbits[1])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error loading nonexistent session file")
	}
}
