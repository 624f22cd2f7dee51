package connmgr

import (
	"context"

	"arenaview.ai/internal/arena"
)

// Conn is one established message connection. ReadMessage may block; it is
// only called from the manager's reader goroutine. WriteMessage and Close
// are only called from the goroutine driving Poll.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(b []byte) error
	Close() error
}

// Dialer must return promptly once ctx is cancelled.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Listener receives everything the manager produces, always from inside Poll
// or Start, never from a helper goroutine.
type Listener interface {
	OnConnected()
	OnDisconnected()
	OnSnapshot(s arena.Snapshot)
}
