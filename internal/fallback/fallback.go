// Package fallback synthesizes arena snapshots when no live arena is reachable.
package fallback

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"arenaview.ai/internal/arena"
)

const (
	DefaultInterval = time.Second

	// AmplitudeX and AmplitudeZ bound how far an agent drifts from its base.
	AmplitudeX = 20.0
	AmplitudeZ = 15.0

	// MaxHealthStep is the largest health change per tick.
	MaxHealthStep = 2.0

	MinHealth = 10.0
	MaxHealth = 100.0
)

// DefaultBounds are the arena extents reported in fallback snapshots.
var DefaultBounds = arena.Vec3{X: 50, Y: 10, Z: 50}

type Member struct {
	ID     string
	Name   string
	Team   arena.Team
	Base   arena.Vec2
	Phase  float64
	Health float64
	Energy float64
	Status string
}

// DefaultRoster is the demo roster shown when running without an arena.
func DefaultRoster() []Member {
	return []Member{
		{ID: "agent_1", Name: "Gladiator Alpha", Team: arena.TeamRed, Base: arena.Vec2{X: -10, Z: -5}, Phase: 0, Health: 85, Energy: 90, Status: "fighting"},
		{ID: "agent_2", Name: "Warrior Beta", Team: arena.TeamBlue, Base: arena.Vec2{X: 10, Z: 5}, Phase: 2.1, Health: 65, Energy: 75, Status: "defending"},
		{ID: "agent_3", Name: "Scout Gamma", Team: arena.TeamRed, Base: arena.Vec2{X: 0, Z: 12}, Phase: 4.2, Health: 45, Energy: 95, Status: "moving"},
	}
}

type Config struct {
	Interval time.Duration
	Roster   []Member
	Seed     int64
	MatchID  string
}

// Generator is not safe for concurrent use; it is driven from the engine tick.
type Generator struct {
	interval time.Duration
	roster   []Member
	health   []float64
	rng      *rand.Rand
	matchID  string

	started bool
	start   time.Time
	next    time.Time
	tick    uint64
}

func New(cfg Config) *Generator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if len(cfg.Roster) == 0 {
		cfg.Roster = DefaultRoster()
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.MatchID == "" {
		cfg.MatchID = "fallback-" + uuid.NewString()
	}
	roster := append([]Member(nil), cfg.Roster...)
	health := make([]float64, len(roster))
	for i, m := range roster {
		health[i] = arena.Clamp(m.Health, MinHealth, MaxHealth)
	}
	return &Generator{
		interval: cfg.Interval,
		roster:   roster,
		health:   health,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		matchID:  cfg.MatchID,
	}
}

func (g *Generator) Interval() time.Duration { return g.interval }

func (g *Generator) MatchID() string { return g.matchID }

// Start anchors the periodic motion at now. The first snapshot is due immediately.
func (g *Generator) Start(now time.Time) {
	g.started = true
	g.start = now
	g.next = now
	g.tick = 0
}

// Due reports whether a snapshot should be produced at now.
func (g *Generator) Due(now time.Time) bool {
	return g.started && !now.Before(g.next)
}

// Poll returns the snapshot for this cadence slot, if one is due. Missed
// slots are not replayed; the cadence resumes from now.
func (g *Generator) Poll(now time.Time) (arena.Snapshot, bool) {
	if !g.Due(now) {
		return arena.Snapshot{}, false
	}
	g.next = g.next.Add(g.interval)
	if g.next.Before(now) {
		g.next = now.Add(g.interval)
	}
	return g.Next(now), true
}

// Next produces one snapshot for time now regardless of cadence.
func (g *Generator) Next(now time.Time) arena.Snapshot {
	if !g.started {
		g.Start(now)
	}
	elapsed := now.Sub(g.start).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	g.tick++

	agents := make([]arena.AgentState, 0, len(g.roster))
	var sum float64
	for i, m := range g.roster {
		step := (g.rng.Float64()*2 - 1) * MaxHealthStep
		g.health[i] = arena.Clamp(g.health[i]+step, MinHealth, MaxHealth)
		sum += g.health[i]

		agents = append(agents, arena.AgentState{
			ID:   m.ID,
			Name: m.Name,
			Team: m.Team,
			Position: arena.Vec2{
				X: m.Base.X + AmplitudeX*math.Sin(elapsed+m.Phase),
				Z: m.Base.Z + AmplitudeZ*math.Cos(0.7*elapsed+m.Phase),
			},
			Health: g.health[i],
			Energy: arena.ClampVital(m.Energy),
			Status: m.Status,
		})
	}

	stats := arena.Statistics{
		TotalAgents:   len(agents),
		ActiveAgents:  len(agents),
		MatchDuration: elapsed,
	}
	if len(agents) > 0 {
		stats.AverageHealth = sum / float64(len(agents))
	}
	return arena.Snapshot{
		MatchID:     g.matchID,
		Tick:        g.tick,
		MatchTime:   elapsed,
		ArenaBounds: DefaultBounds,
		Agents:      agents,
		Statistics:  stats,
	}
}
