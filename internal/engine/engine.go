// Package engine wires the connection manager, the reconciler and the
// presentation sinks into one tick-driven unit.
package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"arenaview.ai/internal/arena"
	"arenaview.ai/internal/codec"
	"arenaview.ai/internal/connmgr"
	"arenaview.ai/internal/fallback"
	"arenaview.ai/internal/protocol"
	"arenaview.ai/internal/reconcile"
	"arenaview.ai/internal/telemetry"
)

type Config struct {
	Conn      connmgr.Config
	Reconcile reconcile.Options
}

type Deps struct {
	Dialer   connmgr.Dialer
	Fallback *fallback.Generator
	Log      *log.Logger
	Metrics  *telemetry.Metrics
}

type Engine struct {
	mgr     *connmgr.Manager
	rec     *reconcile.Reconciler
	sinks   []Sink
	log     *log.Logger
	metrics *telemetry.Metrics
}

func New(cfg Config, deps Deps, sinks ...Sink) (*Engine, error) {
	if deps.Log == nil {
		deps.Log = log.New(io.Discard, "", 0)
	}
	e := &Engine{
		rec:     reconcile.New(cfg.Reconcile),
		log:     deps.Log,
		metrics: deps.Metrics,
	}
	for _, s := range sinks {
		e.Subscribe(s)
	}
	mgr, err := connmgr.New(cfg.Conn, connmgr.Deps{
		Dialer:   deps.Dialer,
		Listener: listener{e},
		Codec:    codec.New(deps.Log).WithMetrics(deps.Metrics),
		Fallback: deps.Fallback,
		Log:      deps.Log,
		Metrics:  deps.Metrics,
	})
	if err != nil {
		return nil, err
	}
	e.mgr = mgr
	return e, nil
}

// Subscribe registers a sink. Sinks are called in registration order.
func (e *Engine) Subscribe(s Sink) {
	if s != nil {
		e.sinks = append(e.sinks, s)
	}
}

func (e *Engine) Start(now time.Time) { e.mgr.Start(now) }

// Tick runs one scheduling step: drains the transport and reconciles
// every snapshot that arrived since the last tick.
func (e *Engine) Tick(now time.Time) { e.mgr.Poll(now) }

func (e *Engine) Send(cmd protocol.Command) error { return e.mgr.Send(cmd) }

func (e *Engine) Stop() { e.mgr.Stop() }

func (e *Engine) Status() connmgr.Status { return e.mgr.Status() }

func (e *Engine) Table() *reconcile.Table { return e.rec.Table() }

// Run drives the engine from a ticker until ctx is done. Commands received
// on cmds are sent from the tick goroutine. The transport is always closed
// on return.
func (e *Engine) Run(ctx context.Context, every time.Duration, cmds <-chan protocol.Command) error {
	if every <= 0 {
		every = 50 * time.Millisecond
	}
	e.Start(time.Now())
	defer e.Stop()

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			e.Tick(now)
		case cmd, ok := <-cmds:
			if !ok {
				cmds = nil
				continue
			}
			_ = e.Send(cmd)
		}
	}
}

func (e *Engine) reconcile(s arena.Snapshot) {
	start := time.Now()
	pass, err := e.rec.Apply(s)
	if err != nil {
		if errors.Is(err, reconcile.ErrStaleSnapshot) {
			e.metrics.Incr(telemetry.KeySnapshotsStale)
		}
		e.log.Printf("snapshot dropped: %v", err)
		return
	}
	creates, updates, removes := pass.Counts()
	e.metrics.Incr(telemetry.KeyPasses)
	e.metrics.Add(telemetry.KeyCreates, creates)
	e.metrics.Add(telemetry.KeyUpdates, updates)
	e.metrics.Add(telemetry.KeyRemoves, removes)
	e.metrics.Gauge(telemetry.KeyEntities, float64(e.rec.Table().Len()))
	e.metrics.Since(telemetry.KeyPassDuration, start)

	for _, sink := range e.sinks {
		sink.StateReconciled(pass)
	}
}

// listener keeps the connmgr callbacks off the Engine's public surface.
type listener struct{ e *Engine }

// A new connection may be a restarted arena reusing its match id with
// ticks counting from zero again.
func (l listener) OnConnected() {
	l.e.rec.ResetOrdering()
	for _, s := range l.e.sinks {
		s.ConnectionEstablished()
	}
}

func (l listener) OnDisconnected() {
	for _, s := range l.e.sinks {
		s.ConnectionLost()
	}
}

func (l listener) OnSnapshot(s arena.Snapshot) { l.e.reconcile(s) }
