package main

import (
	"fmt"

	"arenaview.ai/internal/codec"
	"arenaview.ai/internal/persistence/recorder"
	"arenaview.ai/internal/reconcile"
)

type report struct {
	Session  string
	Passes   int
	Connects int
	Losses   int
	Creates  int
	Updates  int
	Removes  int
	Entities int
	LastTick uint64
}

// verify re-runs every recorded pass through a fresh reconciler and checks
// that the instruction counts match what the viewer saw.
func verify(dir string, fromTick, toTick uint64) (report, error) {
	var (
		rep report
		dec = codec.New(nil)
		rec = reconcile.New(reconcile.Options{})
	)
	err := recorder.ReadDir(dir, func(e recorder.Entry) error {
		if rep.Session == "" {
			rep.Session = e.Session
		}
		switch e.Kind {
		case recorder.KindEstablished:
			rep.Connects++
			rec.ResetOrdering()
			return nil
		case recorder.KindLost:
			rep.Losses++
			return nil
		case recorder.KindPass:
		default:
			return fmt.Errorf("seq=%d: unknown entry kind %q", e.Seq, e.Kind)
		}

		snap, err := dec.Decode(e.Frame)
		if err != nil {
			return fmt.Errorf("seq=%d tick=%d: decode: %w", e.Seq, e.Tick, err)
		}
		p, err := rec.Apply(snap)
		if err != nil {
			return fmt.Errorf("seq=%d tick=%d: apply: %w", e.Seq, e.Tick, err)
		}
		c, u, r := p.Counts()
		rep.Passes++
		rep.Creates += c
		rep.Updates += u
		rep.Removes += r
		rep.LastTick = e.Tick
		rep.Entities = rec.Table().Len()

		if e.Tick < fromTick || (toTick != 0 && e.Tick > toTick) {
			return nil
		}
		if c != e.Creates || u != e.Updates || r != e.Removes {
			return fmt.Errorf("seq=%d tick=%d: counts mismatch: got c=%d u=%d r=%d want c=%d u=%d r=%d",
				e.Seq, e.Tick, c, u, r, e.Creates, e.Updates, e.Removes)
		}
		if rep.Entities != e.Entities {
			return fmt.Errorf("seq=%d tick=%d: entities mismatch: got %d want %d", e.Seq, e.Tick, rep.Entities, e.Entities)
		}
		return nil
	})
	return rep, err
}
