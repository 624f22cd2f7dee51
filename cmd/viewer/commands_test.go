package main

import (
	"testing"

	"arenaview.ai/internal/protocol"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"pause", protocol.CmdPauseSimulation},
		{"  Resume ", protocol.CmdResumeSimulation},
		{"reset", protocol.CmdResetSimulation},
		{"select agent_2", protocol.CmdSelectAgent},
		{`{"type":"spawn_wave","count":3}`, "spawn_wave"},
	}
	for _, tc := range cases {
		cmd, err := parseCommand(tc.in)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if cmd.Type() != tc.want {
			t.Fatalf("%q: type=%q want %q", tc.in, cmd.Type(), tc.want)
		}
	}

	cmd, _ := parseCommand("select agent_2")
	if cmd["agent_id"] != "agent_2" {
		t.Fatalf("select: %+v", cmd)
	}

	for _, bad := range []string{"", "select", "select a b", "fly", "{nope"} {
		if _, err := parseCommand(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}
