package engine

import (
	"sync/atomic"

	"arenaview.ai/internal/reconcile"
)

// Sink is the presentation side of the engine. All calls happen on the
// goroutine driving Engine.Tick, in the order the engine produced them.
type Sink interface {
	ConnectionEstablished()
	ConnectionLost()
	StateReconciled(p reconcile.Pass)
}

// SinkFuncs adapts plain functions to Sink; nil fields are skipped.
type SinkFuncs struct {
	OnEstablished func()
	OnLost        func()
	OnReconciled  func(p reconcile.Pass)
}

func (f SinkFuncs) ConnectionEstablished() {
	if f.OnEstablished != nil {
		f.OnEstablished()
	}
}

func (f SinkFuncs) ConnectionLost() {
	if f.OnLost != nil {
		f.OnLost()
	}
}

func (f SinkFuncs) StateReconciled(p reconcile.Pass) {
	if f.OnReconciled != nil {
		f.OnReconciled(p)
	}
}

type EventKind int

const (
	EventConnectionEstablished EventKind = iota + 1
	EventConnectionLost
	EventStateReconciled
)

func (k EventKind) String() string {
	switch k {
	case EventConnectionEstablished:
		return "connection_established"
	case EventConnectionLost:
		return "connection_lost"
	case EventStateReconciled:
		return "state_reconciled"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind
	Pass reconcile.Pass
}

// ChannelSink fans events into a bounded channel for consumers on other
// goroutines. When the channel is full the event is dropped and counted;
// the tick loop never blocks on a slow reader.
type ChannelSink struct {
	ch      chan Event
	dropped atomic.Uint64
}

func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = 64
	}
	return &ChannelSink{ch: make(chan Event, size)}
}

func (c *ChannelSink) Events() <-chan Event { return c.ch }

func (c *ChannelSink) Dropped() uint64 { return c.dropped.Load() }

func (c *ChannelSink) ConnectionEstablished() { c.push(Event{Kind: EventConnectionEstablished}) }
func (c *ChannelSink) ConnectionLost()        { c.push(Event{Kind: EventConnectionLost}) }
func (c *ChannelSink) StateReconciled(p reconcile.Pass) {
	c.push(Event{Kind: EventStateReconciled, Pass: p})
}

func (c *ChannelSink) push(ev Event) {
	select {
	case c.ch <- ev:
	default:
		c.dropped.Add(1)
	}
}
