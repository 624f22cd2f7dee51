package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"arenaview.ai/internal/persistence/indexdb"
	"arenaview.ai/internal/persistence/recorder"
)

func main() {
	var (
		dataDir  = flag.String("data", "./data", "runtime data directory")
		session  = flag.String("session", "", "session id under <data>/recordings (default: latest in index)")
		dir      = flag.String("dir", "", "session directory (overrides -data/-session)")
		useIndex = flag.Bool("index", true, "cross-check totals against <data>/index.sqlite when present")
		fromTick = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "stop verifying after tick (inclusive, optional)")
	)
	flag.Parse()

	var idx *indexdb.SQLiteIndex
	dbPath := filepath.Join(*dataDir, "index.sqlite")
	if *useIndex && *dir == "" {
		if _, err := os.Stat(dbPath); err == nil {
			var err error
			idx, err = indexdb.OpenSQLite(dbPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, "open index:", err)
				os.Exit(1)
			}
			defer idx.Close()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sessionDir := strings.TrimSpace(*dir)
	if sessionDir == "" {
		id := strings.TrimSpace(*session)
		if id == "" && idx != nil {
			ids, err := idx.Sessions(ctx)
			if err != nil {
				fmt.Fprintln(os.Stderr, "list sessions:", err)
				os.Exit(1)
			}
			if len(ids) > 0 {
				id = ids[len(ids)-1]
			}
		}
		if id == "" {
			fmt.Fprintln(os.Stderr, "missing -session or -dir")
			os.Exit(2)
		}
		sessionDir = recorder.SessionDir(*dataDir, id)
	}

	rep, err := verify(sessionDir, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: session=%s passes=%d creates=%d updates=%d removes=%d entities=%d last_tick=%d connects=%d losses=%d\n",
		rep.Session, rep.Passes, rep.Creates, rep.Updates, rep.Removes, rep.Entities, rep.LastTick, rep.Connects, rep.Losses)

	if idx == nil || rep.Session == "" {
		return
	}
	sum, err := idx.Summary(ctx, rep.Session)
	if err != nil {
		fmt.Fprintln(os.Stderr, "index summary:", err)
		os.Exit(1)
	}
	// The index drops rows under backpressure, so it may only trail the recording.
	if sum.Passes > rep.Passes || sum.Creates > rep.Creates || sum.Updates > rep.Updates || sum.Removes > rep.Removes {
		fmt.Fprintf(os.Stderr, "index ahead of recording: index=%+v\n", sum)
		os.Exit(1)
	}
	fmt.Printf("index: passes=%d/%d agents_seen=%d started=%s ended=%s\n", sum.Passes, rep.Passes, sum.Agents, sum.StartedAt, sum.EndedAt)
}
