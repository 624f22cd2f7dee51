// Package codec turns arena frames into typed snapshots and viewer commands
// into frames.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"arenaview.ai/internal/arena"
	"arenaview.ai/internal/protocol"
	"arenaview.ai/internal/telemetry"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrNotSnapshot    = errors.New("not a snapshot frame")
)

// DecodeError describes a frame or record that was dropped. Code is one of
// the protocol error codes.
type DecodeError struct {
	Code string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool {
	switch target {
	case ErrMalformedFrame:
		return e.Code == protocol.ErrFrameNotJSON || e.Code == protocol.ErrFrameSchema
	case ErrNotSnapshot:
		return e.Code == protocol.ErrFrameNotState
	}
	return false
}

type Codec struct {
	log     *log.Logger
	metrics *telemetry.Metrics
}

func New(logger *log.Logger) *Codec {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Codec{log: logger}
}

// WithMetrics counts skipped agent records on m.
func (c *Codec) WithMetrics(m *telemetry.Metrics) *Codec {
	c.metrics = m
	return c
}

// Decode parses one inbound frame. Bad agent records are logged and
// skipped; only a bad envelope fails the whole frame.
func (c *Codec) Decode(b []byte) (arena.Snapshot, error) {
	var envelope any
	if err := json.Unmarshal(b, &envelope); err != nil {
		return arena.Snapshot{}, &DecodeError{Code: protocol.ErrFrameNotJSON, Err: err}
	}
	if m, ok := envelope.(map[string]any); ok {
		if t, _ := m["type"].(string); !protocol.IsSnapshotType(t) {
			return arena.Snapshot{}, &DecodeError{Code: protocol.ErrFrameNotState, Err: fmt.Errorf("type %q", t)}
		}
	}
	if err := protocol.ValidateArenaState(envelope); err != nil {
		return arena.Snapshot{}, &DecodeError{Code: protocol.ErrFrameSchema, Err: err}
	}

	var msg protocol.ArenaStateMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		return arena.Snapshot{}, &DecodeError{Code: protocol.ErrFrameSchema, Err: err}
	}

	snap := arena.Snapshot{
		MatchID:   msg.MatchID,
		Tick:      msg.CurrentTick,
		MatchTime: msg.MatchTime,
		Agents:    make([]arena.AgentState, 0, len(msg.Agents)),
	}
	if snap.MatchTime < 0 {
		snap.MatchTime = 0
	}
	if msg.ArenaBounds != nil {
		snap.ArenaBounds = arena.Vec3{X: msg.ArenaBounds.X, Y: msg.ArenaBounds.Y, Z: msg.ArenaBounds.Z}
	}
	snap.Statistics = decodeStatistics(msg.Statistics)

	for i, raw := range msg.Agents {
		a, err := decodeAgent(raw)
		if err != nil {
			c.metrics.Incr(telemetry.KeyRecordsSkipped)
			c.log.Printf("tick=%d agent[%d] skipped: %v", snap.Tick, i, err)
			continue
		}
		snap.Agents = append(snap.Agents, a)
	}
	return snap, nil
}

func decodeAgent(raw json.RawMessage) (arena.AgentState, error) {
	var m protocol.AgentMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return arena.AgentState{}, &DecodeError{Code: protocol.ErrAgentMalformed, Err: err}
	}
	if m.ID == "" {
		return arena.AgentState{}, &DecodeError{Code: protocol.ErrAgentMissingID}
	}
	a := arena.AgentState{
		ID:     m.ID,
		Name:   m.Name,
		Team:   arena.TeamUnknown,
		Health: arena.NeutralVital,
		Energy: arena.NeutralVital,
		Status: m.Status,
	}
	if m.Position != nil {
		a.Position = arena.Vec2{X: m.Position.X, Z: m.Position.Z}
	}
	if m.Health != nil {
		a.Health = *m.Health
	}
	if m.Energy != nil {
		a.Energy = *m.Energy
	}
	if m.Team != nil {
		a.Team = arena.Team(*m.Team)
	}
	return a.Normalized(), nil
}

func decodeStatistics(raw json.RawMessage) arena.Statistics {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return arena.Statistics{}
	}
	var m protocol.StatisticsMsg
	// Counters of the wrong type are dropped; Raw still carries them.
	_ = json.Unmarshal(raw, &m)
	return arena.Statistics{
		TotalAgents:      m.TotalAgents,
		ActiveAgents:     m.ActiveAgents,
		EliminatedAgents: m.EliminatedAgents,
		AverageHealth:    m.AverageHealth,
		MatchDuration:    m.MatchDuration,
		Raw:              append(json.RawMessage(nil), raw...),
	}
}

// Encode serializes an outbound command. Only JSON well-formedness is checked.
func (c *Codec) Encode(cmd protocol.Command) ([]byte, error) {
	if cmd == nil {
		return nil, &DecodeError{Code: protocol.ErrCommandEncode, Err: errors.New("nil command")}
	}
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, &DecodeError{Code: protocol.ErrCommandEncode, Err: err}
	}
	return b, nil
}

// EncodeSnapshot writes a snapshot in the inbound wire schema.
func EncodeSnapshot(s arena.Snapshot) ([]byte, error) {
	agents := make([]json.RawMessage, 0, len(s.Agents))
	for _, a := range s.Agents {
		team := string(a.Team)
		health, energy := a.Health, a.Energy
		b, err := json.Marshal(protocol.AgentMsg{
			ID:       a.ID,
			Name:     a.Name,
			Position: &protocol.Vec2Msg{X: a.Position.X, Z: a.Position.Z},
			Health:   &health,
			Energy:   &energy,
			Team:     &team,
			Status:   a.Status,
		})
		if err != nil {
			return nil, err
		}
		agents = append(agents, b)
	}
	stats := s.Statistics.Raw
	if len(stats) == 0 {
		b, err := json.Marshal(protocol.StatisticsMsg{
			TotalAgents:      s.Statistics.TotalAgents,
			ActiveAgents:     s.Statistics.ActiveAgents,
			EliminatedAgents: s.Statistics.EliminatedAgents,
			AverageHealth:    s.Statistics.AverageHealth,
			MatchDuration:    s.Statistics.MatchDuration,
		})
		if err != nil {
			return nil, err
		}
		stats = b
	}
	return json.Marshal(protocol.ArenaStateMsg{
		Agents:      agents,
		MatchID:     s.MatchID,
		CurrentTick: s.Tick,
		MatchTime:   s.MatchTime,
		ArenaBounds: &protocol.Vec3Msg{X: s.ArenaBounds.X, Y: s.ArenaBounds.Y, Z: s.ArenaBounds.Z},
		Statistics:  stats,
	})
}
