// Package arena holds the typed view of one authoritative arena snapshot.
package arena

import (
	"encoding/json"
	"strings"
)

const (
	MinVital = 0.0
	MaxVital = 100.0

	// NeutralVital is used when a record omits health or energy.
	NeutralVital = MaxVital
)

type Team string

const (
	TeamRed     Team = "red"
	TeamBlue    Team = "blue"
	TeamGreen   Team = "green"
	TeamYellow  Team = "yellow"
	TeamPurple  Team = "purple"
	TeamUnknown Team = "unknown"
)

var knownTeams = map[Team]struct{}{
	TeamRed:    {},
	TeamBlue:   {},
	TeamGreen:  {},
	TeamYellow: {},
	TeamPurple: {},
}

// ParseTeam never fails; anything unrecognized maps to TeamUnknown.
func ParseTeam(s string) Team {
	t := Team(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownTeams[t]; ok {
		return t
	}
	return TeamUnknown
}

// Vec2 is a planar position. The vertical axis belongs to the presentation layer.
type Vec2 struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type AgentState struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Team     Team    `json:"team"`
	Position Vec2    `json:"position"`
	Health   float64 `json:"health"`
	Energy   float64 `json:"energy"`
	Status   string  `json:"status"`
}

// Normalized returns a copy with vitals clamped and the team canonicalized.
func (a AgentState) Normalized() AgentState {
	a.Health = ClampVital(a.Health)
	a.Energy = ClampVital(a.Energy)
	a.Team = ParseTeam(string(a.Team))
	return a
}

type Statistics struct {
	TotalAgents      int     `json:"total_agents"`
	ActiveAgents     int     `json:"active_agents"`
	EliminatedAgents int     `json:"eliminated_agents"`
	AverageHealth    float64 `json:"average_health"`
	MatchDuration    float64 `json:"match_duration"`

	// Raw keeps the original object so unknown counters reach the UI untouched.
	Raw json.RawMessage `json:"-"`
}

type Snapshot struct {
	MatchID     string
	Tick        uint64
	MatchTime   float64
	ArenaBounds Vec3
	Agents      []AgentState
	Statistics  Statistics
}

func ClampVital(v float64) float64 {
	return Clamp(v, MinVital, MaxVital)
}

func Clamp(v, lo, hi float64) float64 {
	if v != v {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
