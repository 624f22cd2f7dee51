package main

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"arenaview.ai/internal/arena"
	"arenaview.ai/internal/reconcile"
)

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	c := &consoleSink{log: log.New(&buf, "", 0), verbose: true}
	r := reconcile.New(reconcile.Options{})

	c.ConnectionEstablished()
	p, _ := r.Apply(arena.Snapshot{MatchID: "m", Tick: 1, Agents: []arena.AgentState{{ID: "a1", Name: "Alpha", Health: 80}}})
	c.StateReconciled(p)
	p, _ = r.Apply(arena.Snapshot{MatchID: "m", Tick: 2})
	c.StateReconciled(p)
	c.ConnectionLost()

	out := buf.String()
	for _, want := range []string{
		"connection established",
		"tick=1 t=0.0s creates=1 updates=0 removes=0 entities=1",
		`+ a1 #1 "Alpha"`,
		"tick=2 t=0.0s creates=0 updates=0 removes=1 entities=0",
		"- a1 #1",
		"connection lost",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
