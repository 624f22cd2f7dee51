package recorder

import (
	"testing"
	"time"

	"arenaview.ai/internal/arena"
	"arenaview.ai/internal/codec"
	"arenaview.ai/internal/reconcile"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestRecorder_WritesAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)}
	rec := New(dir, Options{Session: "s1", Now: clk.now})

	r := reconcile.New(reconcile.Options{})
	p1, _ := r.Apply(arena.Snapshot{MatchID: "m", Tick: 1, Agents: []arena.AgentState{
		{ID: "a1", Health: 85, Team: arena.TeamRed, Position: arena.Vec2{X: 100, Z: 50}},
		{ID: "a2", Health: 40},
	}})
	p2, _ := r.Apply(arena.Snapshot{MatchID: "m", Tick: 2, Agents: []arena.AgentState{{ID: "a2", Health: 41}}})

	rec.ConnectionEstablished()
	rec.StateReconciled(p1)
	rec.StateReconciled(p2)
	rec.ConnectionLost()
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if rec.Failed() != 0 {
		t.Fatalf("failed writes: %d", rec.Failed())
	}

	var got []Entry
	if err := ReadDir(SessionDir(dir, "s1"), func(e Entry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("entries: %d", len(got))
	}
	wantKinds := []string{KindEstablished, KindPass, KindPass, KindLost}
	for i, e := range got {
		if e.Kind != wantKinds[i] || e.Seq != uint64(i+1) || e.Session != "s1" {
			t.Fatalf("entry %d: %+v", i, e)
		}
	}
	if got[1].Creates != 2 || got[1].Entities != 2 {
		t.Fatalf("first pass entry: %+v", got[1])
	}
	if got[2].Removes != 1 || got[2].Updates != 1 || got[2].Entities != 1 {
		t.Fatalf("second pass entry: %+v", got[2])
	}

	snap, err := codec.New(nil).Decode(got[1].Frame)
	if err != nil {
		t.Fatalf("recorded frame should decode: %v", err)
	}
	if len(snap.Agents) != 2 || snap.Agents[0].ID != "a1" || snap.Agents[0].Position.X != 100 || snap.Tick != 1 {
		t.Fatalf("recorded frame: %+v", snap)
	}
}

func TestRecorder_RotatesByPeriod(t *testing.T) {
	dir := t.TempDir()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)}
	rec := New(dir, Options{Session: "s2", Now: clk.now, RotateEvery: time.Hour})
	rec.ConnectionEstablished()
	clk.t = clk.t.Add(2 * time.Minute)
	rec.ConnectionLost()
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, err := ListFiles(rec.Dir())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected two files after crossing the hour, got %v", files)
	}
	var kinds []string
	if err := ReadDir(rec.Dir(), func(e Entry) error {
		kinds = append(kinds, e.Kind)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != KindEstablished || kinds[1] != KindLost {
		t.Fatalf("order across files: %v", kinds)
	}
}

func TestSnapshotOf_DropsRemovals(t *testing.T) {
	p := reconcile.Pass{Tick: 9, Instructions: []reconcile.Instruction{
		{Kind: reconcile.KindRemove, ID: "x"},
		{Kind: reconcile.KindUpdate, ID: "b", State: arena.AgentState{ID: "b"}},
		{Kind: reconcile.KindCreate, ID: "a", State: arena.AgentState{ID: "a"}},
	}}
	s := SnapshotOf(p)
	if len(s.Agents) != 2 || s.Agents[0].ID != "b" || s.Agents[1].ID != "a" || s.Tick != 9 {
		t.Fatalf("snapshot: %+v", s)
	}
}

func TestReadDir_Empty(t *testing.T) {
	if err := ReadDir(t.TempDir(), func(Entry) error { return nil }); err == nil {
		t.Fatalf("expected error for an empty directory")
	}
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	rec := New(t.TempDir(), Options{Session: "s3"})
	if err := rec.Close(); err != nil {
		t.Fatalf("close before any write: %v", err)
	}
	rec.ConnectionEstablished()
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	files, err := ListFiles(rec.Dir())
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
}
