package protocol_test

import (
	"encoding/json"
	"testing"

	"arenaview.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	decode := func(s string) any {
		t.Helper()
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return v
	}

	state := decode(`{
	  "agents":[{"id":"a1","name":"Gladiator Alpha","position":{"x":1,"y":0,"z":2},"health":85,"energy":90,"team":"red","status":"fighting"}],
	  "match_id":"m1",
	  "current_tick":12,
	  "match_time":1.5,
	  "arena_bounds":{"x":50,"y":10,"z":50},
	  "statistics":{"total_agents":1,"active_agents":1,"eliminated_agents":0,"average_health":85,"match_duration":1.5}
	}`)
	if err := protocol.ValidateArenaState(state); err != nil {
		t.Fatalf("validate state: %v", err)
	}

	// Per-agent garbage is tolerated at the envelope level.
	if err := protocol.ValidateArenaState(decode(`{"agents":[42,"x",{"id":"a"}],"extra":true}`)); err != nil {
		t.Fatalf("validate tolerant agents: %v", err)
	}

	bad := []string{
		`[]`,
		`{"match_id":"m1"}`,
		`{"agents":{}}`,
		`{"agents":[],"current_tick":-1}`,
		`{"agents":[],"statistics":"nope"}`,
	}
	for _, s := range bad {
		if err := protocol.ValidateArenaState(decode(s)); err == nil {
			t.Fatalf("expected schema rejection for %s", s)
		}
	}

	if err := protocol.ValidateCommand(decode(`{"type":"select_agent","agent_id":"a1"}`)); err != nil {
		t.Fatalf("validate command: %v", err)
	}
	if err := protocol.ValidateCommand(decode(`"pause"`)); err == nil {
		t.Fatalf("expected non-object command rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	b, err := protocol.DecodeBase([]byte(`{"type":"welcome","message":"hi","version":"0.1.0"}`))
	if err != nil {
		t.Fatalf("DecodeBase: %v", err)
	}
	if b.Type != protocol.TypeWelcome || protocol.IsSnapshotType(b.Type) {
		t.Fatalf("unexpected base: %+v", b)
	}
	if !protocol.IsSnapshotType("") || !protocol.IsSnapshotType(protocol.TypeArenaState) {
		t.Fatalf("snapshot types misclassified")
	}
	if protocol.SelectAgent("a1").Type() != protocol.CmdSelectAgent {
		t.Fatalf("select command type")
	}
}
