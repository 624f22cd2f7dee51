package reconcile

import (
	"sort"

	"arenaview.ai/internal/arena"
)

// Handle identifies an entity in the presentation layer. Handles are never reused.
type Handle uint64

type Entity struct {
	State  arena.AgentState
	Handle Handle
}

// Table is the local mirror of the latest applied snapshot. It is only
// mutated by Reconciler.Apply and is not safe for concurrent use.
type Table struct {
	byID map[string]*Entity
}

func newTable() *Table {
	return &Table{byID: map[string]*Entity{}}
}

func (t *Table) Len() int { return len(t.byID) }

// Get returns a copy of the entity.
func (t *Table) Get(id string) (Entity, bool) {
	e, ok := t.byID[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// IDs returns the tracked ids in sorted order.
func (t *Table) IDs() []string {
	out := make([]string, 0, len(t.byID))
	for id := range t.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (t *Table) reset() {
	t.byID = map[string]*Entity{}
}
