package main

import (
	"io"
	"log"
	"testing"
	"time"

	"arenaview.ai/internal/fallback"
	"arenaview.ai/internal/protocol"
)

func TestDemo_Commands(t *testing.T) {
	d := newDemo(fallback.Config{Seed: 5, MatchID: "demo-1"}, log.New(io.Discard, "", 0))
	t0 := time.Unix(100, 0)

	s, ok := d.step(t0)
	if !ok || s.MatchID != "demo-1" || s.Tick != 1 || len(s.Agents) != 3 {
		t.Fatalf("first frame: ok=%v %+v", ok, s)
	}

	d.apply(protocol.NewCommand(protocol.CmdPauseSimulation), t0)
	if _, ok := d.step(t0.Add(time.Second)); ok {
		t.Fatalf("paused demo should not produce frames")
	}
	d.apply(protocol.NewCommand(protocol.CmdResumeSimulation), t0)
	if s, ok := d.step(t0.Add(2 * time.Second)); !ok || s.Tick != 2 {
		t.Fatalf("resumed frame: ok=%v tick=%d", ok, s.Tick)
	}

	d.apply(protocol.NewCommand(protocol.CmdResetSimulation), t0.Add(3*time.Second))
	s, ok = d.step(t0.Add(3 * time.Second))
	if !ok || s.Tick != 1 || s.MatchID == "demo-1" || s.MatchTime != 0 {
		t.Fatalf("after reset: %+v", s)
	}

	d.apply(protocol.SelectAgent("agent_2"), t0)
	if d.selected != "agent_2" {
		t.Fatalf("selected=%q", d.selected)
	}
}
