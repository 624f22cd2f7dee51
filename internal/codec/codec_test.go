package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"arenaview.ai/internal/arena"
	"arenaview.ai/internal/protocol"
	"arenaview.ai/internal/telemetry"
)

func TestDecode_FullFrame(t *testing.T) {
	c := New(nil)
	snap, err := c.Decode([]byte(`{
	  "agents":[
	    {"id":"a1","name":"Gladiator Alpha","position":{"x":100,"y":0.5,"z":50},"health":85,"energy":90,"team":"red","status":"fighting","extra":1},
	    {"id":"a2","name":"Warrior Beta","position":{"x":-3,"z":4},"health":65,"energy":75,"team":null,"status":"defending"}
	  ],
	  "match_id":"m1",
	  "current_tick":7,
	  "match_time":3.5,
	  "arena_bounds":{"x":50,"y":10,"z":50},
	  "statistics":{"total_agents":2,"active_agents":2,"eliminated_agents":0,"average_health":75,"match_duration":3.5,"kills":9},
	  "unknown_top_level":{"a":1}
	}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if snap.MatchID != "m1" || snap.Tick != 7 || snap.MatchTime != 3.5 {
		t.Fatalf("header mismatch: %+v", snap)
	}
	if snap.ArenaBounds != (arena.Vec3{X: 50, Y: 10, Z: 50}) {
		t.Fatalf("bounds mismatch: %+v", snap.ArenaBounds)
	}
	if len(snap.Agents) != 2 {
		t.Fatalf("agents: got %d want 2", len(snap.Agents))
	}
	a1 := snap.Agents[0]
	if a1.ID != "a1" || a1.Team != arena.TeamRed || a1.Position != (arena.Vec2{X: 100, Z: 50}) || a1.Health != 85 || a1.Energy != 90 || a1.Status != "fighting" {
		t.Fatalf("a1 mismatch: %+v", a1)
	}
	if snap.Agents[1].Team != arena.TeamUnknown {
		t.Fatalf("null team should map to unknown, got %q", snap.Agents[1].Team)
	}
	if snap.Statistics.TotalAgents != 2 || snap.Statistics.AverageHealth != 75 {
		t.Fatalf("stats mismatch: %+v", snap.Statistics)
	}
	if !bytes.Contains(snap.Statistics.Raw, []byte(`"kills":9`)) {
		t.Fatalf("raw statistics should be kept for passthrough: %s", snap.Statistics.Raw)
	}
}

func TestDecode_DefaultsAndClamping(t *testing.T) {
	c := New(nil)
	snap, err := c.Decode([]byte(`{"agents":[{"id":"a1","health":150},{"id":"a2","health":-5,"energy":250,"team":"Orange"},{"id":"a3"}]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := snap.Agents[0].Health; got != 100 {
		t.Fatalf("health should clamp to 100, got %v", got)
	}
	if a := snap.Agents[1]; a.Health != 0 || a.Energy != 100 || a.Team != arena.TeamUnknown {
		t.Fatalf("a2 mismatch: %+v", a)
	}
	a3 := snap.Agents[2]
	if a3.Position != (arena.Vec2{}) || a3.Health != arena.NeutralVital || a3.Energy != arena.NeutralVital || a3.Team != arena.TeamUnknown {
		t.Fatalf("defaults mismatch: %+v", a3)
	}
}

func TestDecode_SkipsBadRecordsOnly(t *testing.T) {
	var logs bytes.Buffer
	m, sink, err := telemetry.NewInmem(time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	c := New(log.New(&logs, "", 0)).WithMetrics(m)
	snap, err := c.Decode([]byte(`{"agents":[{"name":"no id"},42,{"id":"ok"},{"id":"bad","health":"high"},null,{"id":""}]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(snap.Agents) != 1 || snap.Agents[0].ID != "ok" {
		t.Fatalf("expected only the valid record, got %+v", snap.Agents)
	}
	out := logs.String()
	if strings.Count(out, "skipped") != 5 {
		t.Fatalf("expected 5 skip warnings, got:\n%s", out)
	}
	if !strings.Contains(out, protocol.ErrAgentMissingID) || !strings.Contains(out, protocol.ErrAgentMalformed) {
		t.Fatalf("warnings should carry codes:\n%s", out)
	}
	var skipped int
	for _, iv := range sink.Data() {
		iv.RLock()
		if v, ok := iv.Counters["arenaview.records.skipped"]; ok {
			skipped += v.Count
		}
		iv.RUnlock()
	}
	if skipped != 5 {
		t.Fatalf("records.skipped count=%d want 5", skipped)
	}
}

func TestDecode_RejectsBadFrames(t *testing.T) {
	c := New(nil)
	cases := map[string]error{
		`not json`:                        ErrMalformedFrame,
		`[]`:                              ErrMalformedFrame,
		`{"match_id":"m"}`:                ErrMalformedFrame,
		`{"agents":"x"}`:                  ErrMalformedFrame,
		`{"type":"welcome","message":"h"}`: ErrNotSnapshot,
	}
	for in, want := range cases {
		_, err := c.Decode([]byte(in))
		if !errors.Is(err, want) {
			t.Fatalf("Decode(%s): got %v want %v", in, err, want)
		}
		var de *DecodeError
		if !errors.As(err, &de) || !protocol.IsKnownCode(de.Code) {
			t.Fatalf("Decode(%s): expected DecodeError with known code, got %v", in, err)
		}
	}
}

func TestDecode_EmptyAgentsIsValid(t *testing.T) {
	snap, err := New(nil).Decode([]byte(`{"agents":[]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if snap.Agents == nil || len(snap.Agents) != 0 {
		t.Fatalf("expected empty non-nil agents, got %#v", snap.Agents)
	}
}

func TestEncode(t *testing.T) {
	c := New(nil)
	b, err := c.Encode(protocol.SelectAgent("a1"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["type"] != protocol.CmdSelectAgent || m["agent_id"] != "a1" {
		t.Fatalf("unexpected payload: %s", b)
	}

	if _, err := c.Encode(protocol.Command{"bad": make(chan int)}); err == nil {
		t.Fatalf("expected encode error for non-JSON value")
	}
	if _, err := c.Encode(nil); err == nil {
		t.Fatalf("expected encode error for nil command")
	}
}

func TestEncodeSnapshot_DecodesBack(t *testing.T) {
	in := arena.Snapshot{
		MatchID:     "m2",
		Tick:        3,
		MatchTime:   3,
		ArenaBounds: arena.Vec3{X: 50, Y: 10, Z: 50},
		Agents: []arena.AgentState{
			{ID: "agent_1", Name: "Gladiator Alpha", Team: arena.TeamRed, Position: arena.Vec2{X: 1, Z: 2}, Health: 85, Energy: 90, Status: "fighting"},
		},
		Statistics: arena.Statistics{TotalAgents: 1, ActiveAgents: 1, AverageHealth: 85, MatchDuration: 3},
	}
	b, err := EncodeSnapshot(in)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	out, err := New(nil).Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.MatchID != in.MatchID || out.Tick != in.Tick || len(out.Agents) != 1 || out.Agents[0] != in.Agents[0] {
		t.Fatalf("mismatch: %+v", out)
	}
	if out.Statistics.TotalAgents != 1 || out.Statistics.AverageHealth != 85 {
		t.Fatalf("stats mismatch: %+v", out.Statistics)
	}
}
