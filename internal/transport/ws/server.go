package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"arenaview.ai/internal/arena"
	"arenaview.ai/internal/codec"
	"arenaview.ai/internal/protocol"
)

const welcomeText = "Connected to Heaven AI Arena"

type BroadcasterOptions struct {
	// ClientQueue bounds the frames buffered per viewer. A viewer that falls
	// behind loses frames, never the whole broadcast.
	ClientQueue int
	// CommandQueue bounds Commands(). Excess viewer commands are dropped.
	CommandQueue int
}

// ReceivedCommand is a validated viewer command and the client that sent it.
type ReceivedCommand struct {
	ClientID uint64
	Command  protocol.Command
}

// Broadcaster serves arena state frames to any number of viewers.
type Broadcaster struct {
	log      *log.Logger
	upgrader websocket.Upgrader
	queue    int

	nextID   atomic.Uint64
	dropped  atomic.Uint64
	commands chan ReceivedCommand

	mu      sync.Mutex
	clients map[uint64]chan []byte
	closed  bool
}

func NewBroadcaster(logger *log.Logger, opts BroadcasterOptions) *Broadcaster {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.ClientQueue <= 0 {
		opts.ClientQueue = 16
	}
	if opts.CommandQueue <= 0 {
		opts.CommandQueue = 64
	}
	return &Broadcaster{
		log:   logger,
		queue: opts.ClientQueue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		commands: make(chan ReceivedCommand, opts.CommandQueue),
		clients:  map[uint64]chan []byte{},
	}
}

func (b *Broadcaster) Commands() <-chan ReceivedCommand { return b.commands }

func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Dropped counts frames not queued because a viewer was behind.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

// Broadcast queues frame for every connected viewer without blocking.
func (b *Broadcaster) Broadcast(frame []byte) (sent int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, out := range b.clients {
		select {
		case out <- frame:
			sent++
		default:
			b.dropped.Add(1)
		}
	}
	return sent
}

func (b *Broadcaster) BroadcastSnapshot(s arena.Snapshot) (int, error) {
	frame, err := codec.EncodeSnapshot(s)
	if err != nil {
		return 0, err
	}
	return b.Broadcast(frame), nil
}

// Close disconnects every viewer. New upgrades are refused afterwards.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, out := range b.clients {
		close(out)
		delete(b.clients, id)
	}
}

// Drop disconnects every viewer but keeps accepting new ones.
func (b *Broadcaster) Drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, out := range b.clients {
		close(out)
		delete(b.clients, id)
	}
}

func (b *Broadcaster) register() (uint64, chan []byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, nil, false
	}
	id := b.nextID.Add(1)
	out := make(chan []byte, b.queue)
	b.clients[id] = out
	return id, out, true
}

func (b *Broadcaster) unregister(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if out, ok := b.clients[id]; ok {
		close(out)
		delete(b.clients, id)
	}
}

func (b *Broadcaster) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out, ok := b.register()
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
			return
		}
		defer b.unregister(id)

		if err := writeJSON(conn, protocol.WelcomeMsg{Type: protocol.TypeWelcome, Message: welcomeText, Version: protocol.Version}); err != nil {
			return
		}
		b.log.Printf("viewer connected: client=%d remote=%s", id, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine. A closed queue means the broadcaster dropped us.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case frame, ok := <-out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"), time.Now().Add(time.Second))
						_ = conn.Close()
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
						_ = conn.Close()
						writeErr <- err
						return
					}
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			b.handleCommand(id, msg)
		}

		cancel()
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		b.log.Printf("viewer disconnected: client=%d", id)
	}
}

func (b *Broadcaster) handleCommand(id uint64, msg []byte) {
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		b.log.Printf("client=%d %s: %v", id, protocol.ErrFrameNotJSON, err)
		return
	}
	if err := protocol.ValidateCommand(v); err != nil {
		b.log.Printf("client=%d %s: %v", id, protocol.ErrFrameSchema, err)
		return
	}
	cmd, _ := v.(map[string]any)
	rc := ReceivedCommand{ClientID: id, Command: protocol.Command(cmd)}
	b.log.Printf("client=%d command: type=%q", id, rc.Command.Type())
	select {
	case b.commands <- rc:
	default:
		// Nobody is draining commands; keep serving frames.
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
