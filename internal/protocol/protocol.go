package protocol

import "encoding/json"

const Version = "0.1.0"

// Frame types. Snapshot frames from the arena broadcaster carry no type at
// all, so an empty type is treated as TypeArenaState.
const (
	TypeArenaState = "arena_state"
	TypeWelcome    = "welcome"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// IsSnapshotType reports whether a frame of this type should be decoded as a snapshot.
func IsSnapshotType(t string) bool {
	return t == "" || t == TypeArenaState
}
