package protocol

// Command is an outbound viewer intent. Its meaning belongs to the arena;
// the viewer only guarantees it is a JSON object.
type Command map[string]any

// Viewer commands understood by the reference arena broadcaster.
const (
	CmdPauseSimulation  = "pause_simulation"
	CmdResumeSimulation = "resume_simulation"
	CmdResetSimulation  = "reset_simulation"
	CmdSelectAgent      = "select_agent"
)

func NewCommand(typ string) Command {
	return Command{"type": typ}
}

func SelectAgent(agentID string) Command {
	return Command{"type": CmdSelectAgent, "agent_id": agentID}
}

// Type returns the "type" field when it is a string.
func (c Command) Type() string {
	s, _ := c["type"].(string)
	return s
}
