package main

import (
	"strings"
	"testing"

	"arenaview.ai/internal/arena"
	"arenaview.ai/internal/persistence/recorder"
	"arenaview.ai/internal/reconcile"
)

func recordSession(t *testing.T, dataDir string, tamper func(p *reconcile.Pass)) string {
	t.Helper()
	rec := recorder.New(dataDir, recorder.Options{Session: "s"})
	r := reconcile.New(reconcile.Options{})
	rec.ConnectionEstablished()
	for tick, agents := range [][]arena.AgentState{
		{{ID: "a"}, {ID: "b"}},
		{{ID: "b"}, {ID: "c"}, {ID: "b"}},
		{},
	} {
		p, err := r.Apply(arena.Snapshot{MatchID: "m", Tick: uint64(tick + 1), Agents: agents})
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if tamper != nil && tick == 1 {
			tamper(&p)
		}
		rec.StateReconciled(p)
	}
	rec.ConnectionLost()
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return rec.Dir()
}

func TestVerify_RecordedSession(t *testing.T) {
	dir := recordSession(t, t.TempDir(), nil)
	rep, err := verify(dir, 0, 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.Session != "s" || rep.Passes != 3 || rep.Connects != 1 || rep.Losses != 1 {
		t.Fatalf("report: %+v", rep)
	}
	// a,b created; a removed, b updated, c created; b,c removed.
	if rep.Creates != 3 || rep.Updates != 1 || rep.Removes != 3 || rep.Entities != 0 || rep.LastTick != 3 {
		t.Fatalf("totals: %+v", rep)
	}
}

func TestVerify_DetectsMismatch(t *testing.T) {
	// The recorded pass lost its removal; replay still removes "a".
	dir := recordSession(t, t.TempDir(), func(p *reconcile.Pass) {
		for i, in := range p.Instructions {
			if in.Kind == reconcile.KindRemove {
				p.Instructions = append(p.Instructions[:i], p.Instructions[i+1:]...)
				break
			}
		}
	})
	_, err := verify(dir, 0, 0)
	if err == nil || !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestVerify_ReconnectToRestartedMatch(t *testing.T) {
	rec := recorder.New(t.TempDir(), recorder.Options{Session: "r"})
	r := reconcile.New(reconcile.Options{})
	apply := func(tick uint64, ids ...string) {
		var agents []arena.AgentState
		for _, id := range ids {
			agents = append(agents, arena.AgentState{ID: id})
		}
		p, err := r.Apply(arena.Snapshot{MatchID: "m", Tick: tick, Agents: agents})
		if err != nil {
			t.Fatalf("apply tick %d: %v", tick, err)
		}
		rec.StateReconciled(p)
	}
	rec.ConnectionEstablished()
	apply(500, "a1")
	rec.ConnectionLost()
	rec.ConnectionEstablished()
	r.ResetOrdering()
	apply(1, "b1")
	apply(2, "b1", "b2")
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rep, err := verify(rec.Dir(), 0, 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.Passes != 3 || rep.Connects != 2 || rep.Entities != 2 || rep.LastTick != 2 {
		t.Fatalf("report: %+v", rep)
	}
}
