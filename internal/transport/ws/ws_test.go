package ws_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"arenaview.ai/internal/arena"
	"arenaview.ai/internal/codec"
	"arenaview.ai/internal/connmgr"
	"arenaview.ai/internal/engine"
	"arenaview.ai/internal/protocol"
	"arenaview.ai/internal/reconcile"
	"arenaview.ai/internal/transport/ws"
)

func startServer(t *testing.T, logger *log.Logger) (*ws.Broadcaster, string) {
	t.Helper()
	b := ws.NewBroadcaster(logger, ws.BroadcasterOptions{})
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(func() {
		b.Close()
		srv.Close()
	})
	return b, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDialer_WelcomeSnapshotAndCommand(t *testing.T) {
	var logBuf bytes.Buffer
	b, url := startServer(t, log.New(&logBuf, "", 0))

	conn, err := ws.Dialer{}.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	base, err := protocol.DecodeBase(first)
	if err != nil || base.Type != protocol.TypeWelcome {
		t.Fatalf("first frame should be welcome: %s", first)
	}
	if _, err := codec.New(nil).Decode(first); !errors.Is(err, codec.ErrNotSnapshot) {
		t.Fatalf("welcome must not decode as a snapshot: %v", err)
	}

	waitUntil(t, "client registration", func() bool { return b.Clients() == 1 })
	snap := arena.Snapshot{
		MatchID: "m1",
		Tick:    3,
		Agents:  []arena.AgentState{{ID: "a1", Team: arena.TeamRed, Health: 85, Energy: 90, Position: arena.Vec2{X: 1, Z: 2}}},
	}
	if n, err := b.BroadcastSnapshot(snap); err != nil || n != 1 {
		t.Fatalf("broadcast: n=%d err=%v", n, err)
	}
	frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	got, err := codec.New(nil).Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.MatchID != "m1" || got.Tick != 3 || len(got.Agents) != 1 || got.Agents[0].Health != 85 {
		t.Fatalf("snapshot: %+v", got)
	}

	if err := conn.WriteMessage([]byte(`not json`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteMessage([]byte(`{"type":""}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteMessage([]byte(`{"type":"select_agent","agent_id":"a1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case rc := <-b.Commands():
		if rc.Command.Type() != protocol.CmdSelectAgent || rc.Command["agent_id"] != "a1" {
			t.Fatalf("command: %+v", rc.Command)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no command received")
	}
	select {
	case rc := <-b.Commands():
		t.Fatalf("invalid command leaked through: %+v", rc.Command)
	default:
	}
}

func TestDialer_FailsFast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := (ws.Dialer{}).Dial(ctx, "ws://127.0.0.1:1/ws"); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestEngineOverWebSocket(t *testing.T) {
	b, url := startServer(t, nil)
	events := engine.NewChannelSink(64)
	e, err := engine.New(engine.Config{
		Conn: connmgr.Config{Mode: connmgr.ModeLive, URL: url, RetryInterval: 20 * time.Millisecond},
	}, engine.Deps{Dialer: ws.Dialer{}}, events)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer e.Stop()
	e.Start(time.Now())

	next := func(kind engine.EventKind) engine.Event {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			e.Tick(time.Now())
			select {
			case ev := <-events.Events():
				if ev.Kind != kind {
					t.Fatalf("got %v, want %v", ev.Kind, kind)
				}
				return ev
			default:
			}
			time.Sleep(2 * time.Millisecond)
		}
		t.Fatalf("timed out waiting for %v", kind)
		return engine.Event{}
	}

	next(engine.EventConnectionEstablished)
	waitUntil(t, "viewer registration", func() bool { return b.Clients() == 1 })

	if _, err := b.BroadcastSnapshot(arena.Snapshot{Agents: []arena.AgentState{{ID: "a1", Health: 50}, {ID: "a2", Health: 60}}}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	ev := next(engine.EventStateReconciled)
	if c, _, _ := ev.Pass.Counts(); c != 2 {
		t.Fatalf("creates=%d", c)
	}

	if err := e.Send(protocol.NewCommand(protocol.CmdPauseSimulation)); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case rc := <-b.Commands():
		if rc.Command.Type() != protocol.CmdPauseSimulation {
			t.Fatalf("command: %+v", rc.Command)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("command never reached the arena")
	}

	// Server drops the viewer; the engine reports the loss and reconnects.
	b.Drop()
	next(engine.EventConnectionLost)
	next(engine.EventConnectionEstablished)
	waitUntil(t, "viewer re-registration", func() bool { return b.Clients() == 1 })

	if _, err := b.BroadcastSnapshot(arena.Snapshot{Agents: []arena.AgentState{{ID: "a2", Health: 61}}}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	ev = next(engine.EventStateReconciled)
	var kinds []reconcile.Kind
	for _, in := range ev.Pass.Instructions {
		kinds = append(kinds, in.Kind)
	}
	if len(kinds) != 2 || kinds[0] != reconcile.KindRemove || kinds[1] != reconcile.KindUpdate {
		t.Fatalf("after reconnect: %v", kinds)
	}
	if e.Table().Len() != 1 {
		t.Fatalf("table: %v", e.Table().IDs())
	}
}
