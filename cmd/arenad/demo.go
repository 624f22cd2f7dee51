package main

import (
	"log"
	"time"

	"arenaview.ai/internal/arena"
	"arenaview.ai/internal/fallback"
	"arenaview.ai/internal/protocol"
)

// demo drives the synthetic arena and applies viewer commands to it.
type demo struct {
	cfg fallback.Config
	gen *fallback.Generator
	log *log.Logger

	paused   bool
	selected string
	resets   int
}

func newDemo(cfg fallback.Config, logger *log.Logger) *demo {
	return &demo{cfg: cfg, gen: fallback.New(cfg), log: logger}
}

// step returns the next frame, or false while paused.
func (d *demo) step(now time.Time) (arena.Snapshot, bool) {
	if d.paused {
		return arena.Snapshot{}, false
	}
	return d.gen.Next(now), true
}

func (d *demo) apply(cmd protocol.Command, now time.Time) {
	switch cmd.Type() {
	case protocol.CmdPauseSimulation:
		d.paused = true
		d.log.Printf("simulation paused")
	case protocol.CmdResumeSimulation:
		d.paused = false
		d.log.Printf("simulation resumed")
	case protocol.CmdResetSimulation:
		// A fresh match id tells viewers to drop their tick ordering.
		cfg := d.cfg
		cfg.MatchID = ""
		if cfg.Seed != 0 {
			cfg.Seed += int64(d.resets + 1)
		}
		d.gen = fallback.New(cfg)
		d.gen.Start(now)
		d.resets++
		d.log.Printf("simulation reset: match=%s", d.gen.MatchID())
	case protocol.CmdSelectAgent:
		id, _ := cmd["agent_id"].(string)
		d.selected = id
		d.log.Printf("agent selected: %q", id)
	default:
		d.log.Printf("ignored command type=%q", cmd.Type())
	}
}
