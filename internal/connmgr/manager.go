// Package connmgr owns the arena connection: dialing, loss detection,
// fixed-interval retry, frame draining and the fallback cadence.
package connmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"arenaview.ai/internal/codec"
	"arenaview.ai/internal/fallback"
	"arenaview.ai/internal/protocol"
	"arenaview.ai/internal/telemetry"
)

const (
	DefaultRetryInterval = 2 * time.Second
	DefaultDialTimeout   = 5 * time.Second
	DefaultInboxSize     = 256
)

var ErrSendRejected = errors.New("send rejected: not connected")

type Config struct {
	Mode Mode
	URL  string

	RetryInterval time.Duration
	// MaxRetryInterval > RetryInterval turns on capped doubling between
	// consecutive failures. Zero keeps the interval constant.
	MaxRetryInterval time.Duration
	DialTimeout      time.Duration
	InboxSize        int
}

type Deps struct {
	Dialer   Dialer
	Listener Listener
	Codec    *codec.Codec
	Fallback *fallback.Generator
	Log      *log.Logger
	Metrics  *telemetry.Metrics
}

type Status struct {
	Mode            Mode
	State           State
	URL             string
	Attempts        int
	LastError       string
	LastConnectedAt time.Time
	NextRetryAt     time.Time
}

type dialResult struct {
	conn Conn
	err  error
}

type inbound struct {
	gen  uint64
	data []byte
	err  error
}

// Manager is driven by a single goroutine calling Start, Poll, Send and
// Stop. It is not safe for concurrent use.
type Manager struct {
	cfg      Config
	dialer   Dialer
	listener Listener
	codec    *codec.Codec
	fallback *fallback.Generator
	log      *log.Logger
	metrics  *telemetry.Metrics

	started bool
	state   State

	gen        uint64
	conn       Conn
	connDone   chan struct{}
	inbox      chan inbound
	dialCancel context.CancelFunc
	dialResult chan dialResult

	retryPending bool
	retryAt      time.Time
	backoff      time.Duration

	attempts        int
	lastErr         string
	lastConnectedAt time.Time
}

func New(cfg Config, deps Deps) (*Manager, error) {
	if deps.Listener == nil {
		return nil, fmt.Errorf("connmgr: nil listener")
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultInboxSize
	}
	if deps.Log == nil {
		deps.Log = log.New(io.Discard, "", 0)
	}
	if deps.Codec == nil {
		deps.Codec = codec.New(deps.Log).WithMetrics(deps.Metrics)
	}
	switch cfg.Mode {
	case ModeLive:
		if cfg.URL == "" {
			return nil, fmt.Errorf("connmgr: empty url")
		}
		if deps.Dialer == nil {
			return nil, fmt.Errorf("connmgr: nil dialer")
		}
	case ModeFallback:
		if deps.Fallback == nil {
			deps.Fallback = fallback.New(fallback.Config{})
		}
	default:
		return nil, fmt.Errorf("connmgr: unknown mode %v", cfg.Mode)
	}
	return &Manager{
		cfg:      cfg,
		dialer:   deps.Dialer,
		listener: deps.Listener,
		codec:    deps.Codec,
		fallback: deps.Fallback,
		log:      deps.Log,
		metrics:  deps.Metrics,
		inbox:    make(chan inbound, cfg.InboxSize),
		backoff:  cfg.RetryInterval,
	}, nil
}

func (m *Manager) State() State { return m.state }
func (m *Manager) Mode() Mode   { return m.cfg.Mode }

func (m *Manager) Status() Status {
	st := Status{
		Mode:            m.cfg.Mode,
		State:           m.state,
		URL:             m.cfg.URL,
		Attempts:        m.attempts,
		LastError:       m.lastErr,
		LastConnectedAt: m.lastConnectedAt,
	}
	if m.retryPending {
		st.NextRetryAt = m.retryAt
	}
	return st
}

// Start begins dialing in live mode. In fallback mode it reports connected
// right away and the first synthetic snapshot is produced by the next Poll.
func (m *Manager) Start(now time.Time) {
	if m.started {
		return
	}
	m.started = true
	if m.cfg.Mode == ModeFallback {
		m.fallback.Start(now)
		m.state = StateConnected
		m.lastConnectedAt = now
		m.log.Printf("fallback mode: interval=%s match=%s", m.fallback.Interval(), m.fallback.MatchID())
		m.metrics.Incr(telemetry.KeyConnEstablished)
		m.listener.OnConnected()
		return
	}
	m.beginDial()
}

// Poll never blocks. It settles a finished dial, drains the frames that are
// already buffered in receipt order and fires due timers.
func (m *Manager) Poll(now time.Time) {
	if !m.started {
		return
	}
	if m.cfg.Mode == ModeFallback {
		if s, ok := m.fallback.Poll(now); ok {
			m.listener.OnSnapshot(s)
		}
		return
	}

	if m.state == StateConnecting {
		select {
		case r := <-m.dialResult:
			m.settleDial(now, r)
		default:
		}
	}

	m.drain(now)

	if m.retryPending && m.state == StateDisconnected && !now.Before(m.retryAt) {
		m.retryPending = false
		m.beginDial()
	}
}

// Send writes cmd only while connected. Otherwise the command is dropped
// and ErrSendRejected returned; nothing is queued.
func (m *Manager) Send(cmd protocol.Command) error {
	if m.cfg.Mode != ModeLive || m.state != StateConnected || m.conn == nil {
		m.metrics.Incr(telemetry.KeySendRejected)
		m.log.Printf("send dropped code=%s (%s, %s): type=%q", protocol.ErrNotConnected, m.cfg.Mode, m.state, cmd.Type())
		return fmt.Errorf("%w (%s)", ErrSendRejected, protocol.ErrNotConnected)
	}
	b, err := m.codec.Encode(cmd)
	if err != nil {
		m.log.Printf("send dropped: %v", err)
		return err
	}
	if err := m.conn.WriteMessage(b); err != nil {
		// The reader sees the same failure and drives the reconnect.
		m.log.Printf("send failed: %v", err)
		return fmt.Errorf("send: %w", err)
	}
	m.metrics.Incr(telemetry.KeyCommandsSent)
	return nil
}

// Stop closes the transport and cancels every timer and dial, whatever the
// current state. It is safe to call more than once. No connection_lost
// event is emitted for a deliberate stop.
func (m *Manager) Stop() {
	if !m.started {
		return
	}
	m.started = false
	m.state = StateClosing
	m.retryPending = false

	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
		if m.dialResult != nil {
			if r := <-m.dialResult; r.conn != nil {
				_ = r.conn.Close()
			}
			m.dialResult = nil
		}
	}
	m.closeConn()
	m.gen++

	// Frames still buffered belong to a dead generation; drop them.
	for {
		select {
		case <-m.inbox:
			continue
		default:
		}
		break
	}
	m.state = StateDisconnected
	m.log.Printf("stopped")
}

func (m *Manager) beginDial() {
	m.gen++
	gen := m.gen
	m.state = StateConnecting
	m.attempts++
	m.metrics.Incr(telemetry.KeyDialAttempts)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	m.dialCancel = cancel
	results := make(chan dialResult, 1)
	m.dialResult = results
	dialer, url := m.dialer, m.cfg.URL
	go func() {
		c, err := dialer.Dial(ctx, url)
		results <- dialResult{conn: c, err: err}
	}()
	m.log.Printf("dial attempt=%d gen=%d url=%s", m.attempts, gen, url)
}

func (m *Manager) settleDial(now time.Time, r dialResult) {
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	m.dialResult = nil

	if r.err != nil || r.conn == nil {
		err := r.err
		if err == nil {
			err = errors.New("dialer returned nil conn")
		}
		m.metrics.Incr(telemetry.KeyDialFailures)
		m.lastErr = err.Error()
		m.state = StateDisconnected
		m.scheduleRetry(now)
		m.log.Printf("dial failed: %v (retry in %s)", err, m.retryAt.Sub(now))
		return
	}

	m.conn = r.conn
	m.connDone = make(chan struct{})
	go m.readLoop(m.gen, r.conn, m.connDone)

	m.state = StateConnected
	m.retryPending = false
	m.backoff = m.cfg.RetryInterval
	m.lastErr = ""
	m.lastConnectedAt = now
	m.metrics.Incr(telemetry.KeyConnEstablished)
	m.log.Printf("connected: %s", m.cfg.URL)
	m.listener.OnConnected()
}

func (m *Manager) readLoop(gen uint64, c Conn, done <-chan struct{}) {
	for {
		b, err := c.ReadMessage()
		select {
		case m.inbox <- inbound{gen: gen, data: b, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (m *Manager) drain(now time.Time) {
	n := len(m.inbox)
	for i := 0; i < n; i++ {
		in := <-m.inbox
		if in.gen != m.gen || m.state != StateConnected {
			continue
		}
		if in.err != nil {
			m.connectionLost(now, in.err)
			continue
		}
		m.metrics.Incr(telemetry.KeyFramesReceived)
		snap, err := m.codec.Decode(in.data)
		if err != nil {
			m.metrics.Incr(telemetry.KeyFramesDropped)
			if errors.Is(err, codec.ErrNotSnapshot) {
				continue
			}
			m.log.Printf("frame dropped: %v", err)
			continue
		}
		m.listener.OnSnapshot(snap)
	}
}

func (m *Manager) connectionLost(now time.Time, err error) {
	m.closeConn()
	m.gen++
	m.state = StateDisconnected
	m.lastErr = err.Error()
	m.scheduleRetry(now)
	m.metrics.Incr(telemetry.KeyConnLost)
	m.log.Printf("connection lost: %v (retry in %s)", err, m.retryAt.Sub(now))
	m.listener.OnDisconnected()
}

func (m *Manager) closeConn() {
	if m.connDone != nil {
		close(m.connDone)
		m.connDone = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

func (m *Manager) scheduleRetry(now time.Time) {
	m.retryPending = true
	m.retryAt = now.Add(m.backoff)
	if limit := m.cfg.MaxRetryInterval; limit > m.cfg.RetryInterval {
		m.backoff *= 2
		if m.backoff > limit {
			m.backoff = limit
		}
	}
}
