// Package session persists a live playback's tempo/lookahead and its
// mixer's per-orbit routing configuration to JSON, so a player can be
// reopened with the same tempo and send/ducking setup it was closed
// with. Grounded on schollz-221e's internal/storage/storage.go
// (package-level jsoniter config, plain Marshal/os.WriteFile save,
// os.ReadFile/Unmarshal load, log.Printf progress messages), scoped down
// from that tracker's full UI-state save file to the subset of state
// this engine owns: no editor/UI state is in scope here (spec.md §1).
package session

import (
	"fmt"
	"log"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/klanglive/klang/internal/mixer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the persistable subset of a playback's configuration: its
// tempo/lookahead and the mixer's per-orbit send/ducking routing.
type Config struct {
	CPS          float64             `json:"cps"`
	LookaheadSec float64             `json:"lookaheadSec"`
	CyclesToPlay *float64            `json:"cyclesToPlay,omitempty"`
	Orbits       []mixer.OrbitConfig `json:"orbits"`
}

// Save writes cfg to path as JSON, overwriting any existing file.
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("session: write %s: %w", path, err)
	}
	log.Printf("[SESSION] saved %d orbit(s) to %s", len(cfg.Orbits), path)
	return nil
}

// Load reads and decodes a Config previously written by Save.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("session: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("session: unmarshal %s: %w", path, err)
	}
	log.Printf("[SESSION] loaded %d orbit(s) from %s", len(cfg.Orbits), path)
	return cfg, nil
}
