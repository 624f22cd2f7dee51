package main

import (
	"log"

	"arenaview.ai/internal/reconcile"
)

// consoleSink is the text presentation: one line per event, and one line
// per instruction when verbose.
type consoleSink struct {
	log     *log.Logger
	verbose bool

	entities int
}

func (c *consoleSink) ConnectionEstablished() { c.log.Printf("connection established") }
func (c *consoleSink) ConnectionLost()        { c.log.Printf("connection lost") }

func (c *consoleSink) StateReconciled(p reconcile.Pass) {
	creates, updates, removes := p.Counts()
	c.entities += creates - removes
	c.log.Printf("match=%s tick=%d t=%.1fs creates=%d updates=%d removes=%d entities=%d avg_health=%.1f",
		p.MatchID, p.Tick, p.MatchTime, creates, updates, removes, c.entities, p.Statistics.AverageHealth)
	if !c.verbose {
		return
	}
	for _, in := range p.Instructions {
		switch in.Kind {
		case reconcile.KindCreate:
			c.log.Printf("  + %s #%d %q team=%s pos=(%.1f,%.1f) hp=%.0f en=%.0f %s",
				in.ID, in.Handle, in.State.Name, in.State.Team, in.Target.X, in.Target.Z, in.State.Health, in.State.Energy, in.State.Status)
		case reconcile.KindUpdate:
			c.log.Printf("  ~ %s #%d (%.1f,%.1f)->(%.1f,%.1f) over %s hp=%.0f en=%.0f %s",
				in.ID, in.Handle, in.From.X, in.From.Z, in.Target.X, in.Target.Z, in.Transition, in.State.Health, in.State.Energy, in.State.Status)
		case reconcile.KindRemove:
			c.log.Printf("  - %s #%d", in.ID, in.Handle)
		}
	}
}
