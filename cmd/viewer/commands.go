package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"arenaview.ai/internal/protocol"
)

// parseCommand maps a console line to an outbound command. A line starting
// with '{' is sent as raw JSON.
func parseCommand(line string) (protocol.Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty command")
	}
	if strings.HasPrefix(line, "{") {
		var cmd protocol.Command
		if err := json.Unmarshal([]byte(line), &cmd); err != nil {
			return nil, fmt.Errorf("raw command: %w", err)
		}
		return cmd, nil
	}
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "pause":
		return protocol.NewCommand(protocol.CmdPauseSimulation), nil
	case "resume":
		return protocol.NewCommand(protocol.CmdResumeSimulation), nil
	case "reset":
		return protocol.NewCommand(protocol.CmdResetSimulation), nil
	case "select":
		if len(fields) != 2 {
			return nil, fmt.Errorf("usage: select <agent_id>")
		}
		return protocol.SelectAgent(fields[1]), nil
	default:
		return nil, fmt.Errorf("unknown command %q (pause|resume|reset|select <id>|{json})", fields[0])
	}
}
