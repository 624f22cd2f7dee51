package protocol

import "encoding/json"

// ArenaStateMsg (server -> viewer). Agents stay raw so one bad record
// cannot fail the whole frame.
type ArenaStateMsg struct {
	Type        string            `json:"type,omitempty"`
	Agents      []json.RawMessage `json:"agents"`
	MatchID     string            `json:"match_id,omitempty"`
	CurrentTick uint64            `json:"current_tick,omitempty"`
	MatchTime   float64           `json:"match_time,omitempty"`
	ArenaBounds *Vec3Msg          `json:"arena_bounds,omitempty"`
	Statistics  json.RawMessage   `json:"statistics,omitempty"`
}

// AgentMsg uses pointers so absent fields can be told apart from zero values.
type AgentMsg struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Position *Vec2Msg `json:"position,omitempty"`
	Health   *float64 `json:"health,omitempty"`
	Energy   *float64 `json:"energy,omitempty"`
	Team     *string  `json:"team,omitempty"`
	Status   string   `json:"status,omitempty"`
}

type Vec2Msg struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

type Vec3Msg struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type StatisticsMsg struct {
	TotalAgents      int     `json:"total_agents"`
	ActiveAgents     int     `json:"active_agents"`
	EliminatedAgents int     `json:"eliminated_agents"`
	AverageHealth    float64 `json:"average_health"`
	MatchDuration    float64 `json:"match_duration"`
}

// WELCOME (server -> viewer), sent once right after the upgrade.
type WelcomeMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Version string `json:"version"`
}
