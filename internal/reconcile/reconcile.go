// Package reconcile diffs incoming snapshots against the local entity table.
package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"arenaview.ai/internal/arena"
)

// DefaultTransition is how long presentation should take to glide an
// entity to a new authoritative position.
const DefaultTransition = 100 * time.Millisecond

var ErrStaleSnapshot = errors.New("stale snapshot")

type Kind int

const (
	KindCreate Kind = iota + 1
	KindUpdate
	KindRemove
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindUpdate:
		return "update"
	case KindRemove:
		return "remove"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Instruction tells presentation how one entity changed in this pass.
// From, Target and Transition are only meaningful for updates.
type Instruction struct {
	Kind   Kind
	ID     string
	Handle Handle
	State  arena.AgentState

	From       arena.Vec2
	Target     arena.Vec2
	Transition time.Duration
}

// Pass is the result of reconciling one snapshot.
type Pass struct {
	MatchID      string
	Tick         uint64
	MatchTime    float64
	ArenaBounds  arena.Vec3
	Instructions []Instruction
	Statistics   arena.Statistics
}

// Counts returns the number of create, update and remove instructions.
func (p Pass) Counts() (creates, updates, removes int) {
	for _, in := range p.Instructions {
		switch in.Kind {
		case KindCreate:
			creates++
		case KindUpdate:
			updates++
		case KindRemove:
			removes++
		}
	}
	return
}

type Options struct {
	Transition time.Duration
	// AllowStale disables the per-match tick ordering check.
	AllowStale bool
}

type Reconciler struct {
	opts  Options
	table *Table

	nextHandle Handle

	applied   bool
	lastMatch string
	lastTick  uint64
	lastStats arena.Statistics
}

func New(opts Options) *Reconciler {
	if opts.Transition <= 0 {
		opts.Transition = DefaultTransition
	}
	return &Reconciler{opts: opts, table: newTable()}
}

func (r *Reconciler) Table() *Table { return r.table }

// Statistics returns the counters of the last applied snapshot.
func (r *Reconciler) Statistics() arena.Statistics { return r.lastStats }

// Last reports the match id and tick of the last applied snapshot.
func (r *Reconciler) Last() (matchID string, tick uint64, ok bool) {
	return r.lastMatch, r.lastTick, r.applied
}

// Reset forgets every entity and the ordering state without emitting instructions.
func (r *Reconciler) Reset() {
	r.table.reset()
	r.applied = false
	r.lastMatch = ""
	r.lastTick = 0
	r.lastStats = arena.Statistics{}
}

// ResetOrdering forgets the last match id and tick but keeps the table, so
// the next snapshot is accepted whatever its tick and still diffs against
// the entities already on screen. Call it when a new source session begins.
func (r *Reconciler) ResetOrdering() {
	r.applied = false
	r.lastMatch = ""
	r.lastTick = 0
}

// Apply makes the table equal to s.Agents: removals first (sorted by id),
// then creates/updates in sequence order. When an id repeats, its last
// occurrence wins and is reported once, at that position.
func (r *Reconciler) Apply(s arena.Snapshot) (Pass, error) {
	if !r.opts.AllowStale && r.applied && s.MatchID != "" && s.MatchID == r.lastMatch && s.Tick < r.lastTick {
		return Pass{}, fmt.Errorf("%w: match=%s tick=%d last=%d", ErrStaleSnapshot, s.MatchID, s.Tick, r.lastTick)
	}

	last := make(map[string]int, len(s.Agents))
	for i, a := range s.Agents {
		if a.ID == "" {
			continue
		}
		last[a.ID] = i
	}

	pass := Pass{
		MatchID:      s.MatchID,
		Tick:         s.Tick,
		MatchTime:    s.MatchTime,
		ArenaBounds:  s.ArenaBounds,
		Statistics:   s.Statistics,
		Instructions: make([]Instruction, 0, len(last)+r.table.Len()),
	}

	var gone []string
	for id := range r.table.byID {
		if _, ok := last[id]; !ok {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	for _, id := range gone {
		e := r.table.byID[id]
		delete(r.table.byID, id)
		pass.Instructions = append(pass.Instructions, Instruction{Kind: KindRemove, ID: id, Handle: e.Handle, State: e.State})
	}

	for i, a := range s.Agents {
		if a.ID == "" || last[a.ID] != i {
			continue
		}
		a = a.Normalized()
		e, ok := r.table.byID[a.ID]
		if !ok {
			r.nextHandle++
			e = &Entity{State: a, Handle: r.nextHandle}
			r.table.byID[a.ID] = e
			pass.Instructions = append(pass.Instructions, Instruction{Kind: KindCreate, ID: a.ID, Handle: e.Handle, State: a, Target: a.Position})
			continue
		}
		from := e.State.Position
		e.State = a
		pass.Instructions = append(pass.Instructions, Instruction{
			Kind:       KindUpdate,
			ID:         a.ID,
			Handle:     e.Handle,
			State:      a,
			From:       from,
			Target:     a.Position,
			Transition: r.opts.Transition,
		})
	}

	r.applied = true
	r.lastMatch = s.MatchID
	r.lastTick = s.Tick
	r.lastStats = s.Statistics
	return pass, nil
}
