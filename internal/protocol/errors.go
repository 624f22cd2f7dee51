package protocol

const (
	// Frame level.
	ErrFrameNotJSON  = "E_FRAME_NOT_JSON"
	ErrFrameSchema   = "E_FRAME_SCHEMA"
	ErrFrameNotState = "E_FRAME_NOT_STATE"

	// Agent record level.
	ErrAgentMalformed = "E_AGENT_MALFORMED"
	ErrAgentMissingID = "E_AGENT_MISSING_ID"

	// Outbound.
	ErrCommandEncode = "E_COMMAND_ENCODE"
	ErrNotConnected  = "E_NOT_CONNECTED"
)

var knownCodes = map[string]struct{}{
	ErrFrameNotJSON:   {},
	ErrFrameSchema:    {},
	ErrFrameNotState:  {},
	ErrAgentMalformed: {},
	ErrAgentMissingID: {},
	ErrCommandEncode:  {},
	ErrNotConnected:   {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
