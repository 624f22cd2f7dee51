// Package indexdb keeps a queryable SQLite index of viewer sessions next to
// the JSONL recordings. The recordings stay the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"arenaview.ai/internal/reconcile"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropSession      atomic.Uint64
	dropPass         atomic.Uint64
	dropConnectivity atomic.Uint64
}

type reqKind int

const (
	reqSession reqKind = iota + 1
	reqSessionEnd
	reqPass
	reqConnectivity
	reqFlush
)

type req struct {
	kind reqKind

	session      sessionRow
	pass         passRow
	connectivity connectivityRow
	done         chan struct{}
}

type sessionRow struct {
	Session string
	Mode    string
	URL     string
	At      string
}

type agentRow struct {
	ID   string
	Name string
	Team string
}

type passRow struct {
	Session       string
	Seq           uint64
	MatchID       string
	Tick          uint64
	Creates       int
	Updates       int
	Removes       int
	Entities      int
	TotalAgents   int
	ActiveAgents  int
	AverageHealth float64
	RecordedAt    string
	Seen          []agentRow
}

type connectivityRow struct {
	Session string
	Seq     uint64
	Kind    string
	At      string
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropSessionTotal      uint64
	DropPassTotal         uint64
	DropConnectivityTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{db: db, ch: make(chan req, queue)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			url TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS passes (
			session TEXT NOT NULL,
			seq INTEGER NOT NULL,
			match_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			creates INTEGER NOT NULL,
			updates INTEGER NOT NULL,
			removes INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			total_agents INTEGER NOT NULL,
			active_agents INTEGER NOT NULL,
			average_health REAL NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (session, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_passes_match_tick ON passes(match_id, tick);`,
		`CREATE TABLE IF NOT EXISTS connectivity (
			session TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			at TEXT NOT NULL,
			PRIMARY KEY (session, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS agents_seen (
			session TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			name TEXT NOT NULL,
			team TEXT NOT NULL,
			first_tick INTEGER NOT NULL,
			last_tick INTEGER NOT NULL,
			PRIMARY KEY (session, agent_id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:            len(s.ch),
		QueueCapacity:         cap(s.ch),
		DropSessionTotal:      s.dropSession.Load(),
		DropPassTotal:         s.dropPass.Load(),
		DropConnectivityTotal: s.dropConnectivity.Load(),
	}
}

// Flush blocks until everything queued so far is committed or ctx ends.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; recordings remain the source of truth.
		drops.Add(1)
	}
}

// BeginSession registers a session and returns the engine sink that feeds it.
func (s *SQLiteIndex) BeginSession(session, mode, url string, now func() time.Time) *SessionSink {
	if now == nil {
		now = time.Now
	}
	s.enqueue(req{kind: reqSession, session: sessionRow{
		Session: session,
		Mode:    mode,
		URL:     url,
		At:      now().UTC().Format(time.RFC3339Nano),
	}}, &s.dropSession)
	return &SessionSink{idx: s, session: session, now: now}
}

// SessionSink is an engine sink writing one session's passes and
// connectivity changes. It is called from the engine tick goroutine only.
type SessionSink struct {
	idx      *SQLiteIndex
	session  string
	now      func() time.Time
	seq      uint64
	entities int
}

func (ss *SessionSink) ConnectionEstablished() { ss.connectivity("connection_established") }
func (ss *SessionSink) ConnectionLost()        { ss.connectivity("connection_lost") }

func (ss *SessionSink) connectivity(kind string) {
	ss.seq++
	ss.idx.enqueue(req{kind: reqConnectivity, connectivity: connectivityRow{
		Session: ss.session,
		Seq:     ss.seq,
		Kind:    kind,
		At:      ss.now().UTC().Format(time.RFC3339Nano),
	}}, &ss.idx.dropConnectivity)
}

func (ss *SessionSink) StateReconciled(p reconcile.Pass) {
	ss.seq++
	c, u, rm := p.Counts()
	ss.entities += c - rm
	row := passRow{
		Session:       ss.session,
		Seq:           ss.seq,
		MatchID:       p.MatchID,
		Tick:          p.Tick,
		Creates:       c,
		Updates:       u,
		Removes:       rm,
		Entities:      ss.entities,
		TotalAgents:   p.Statistics.TotalAgents,
		ActiveAgents:  p.Statistics.ActiveAgents,
		AverageHealth: p.Statistics.AverageHealth,
		RecordedAt:    ss.now().UTC().Format(time.RFC3339Nano),
	}
	for _, in := range p.Instructions {
		if in.Kind == reconcile.KindRemove {
			continue
		}
		row.Seen = append(row.Seen, agentRow{ID: in.ID, Name: in.State.Name, Team: string(in.State.Team)})
	}
	ss.idx.enqueue(req{kind: reqPass, pass: row}, &ss.idx.dropPass)
}

// End stamps the session end time.
func (ss *SessionSink) End() {
	ss.idx.enqueue(req{kind: reqSessionEnd, session: sessionRow{
		Session: ss.session,
		At:      ss.now().UTC().Format(time.RFC3339Nano),
	}}, &ss.idx.dropSession)
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(session,mode,url,started_at) VALUES(?,?,?,?)`)
	endSession, _ := s.db.Prepare(`UPDATE sessions SET ended_at=? WHERE session=?`)
	insertPass, _ := s.db.Prepare(`INSERT OR REPLACE INTO passes(session,seq,match_id,tick,creates,updates,removes,entities,total_agents,active_agents,average_health,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertConn, _ := s.db.Prepare(`INSERT OR REPLACE INTO connectivity(session,seq,kind,at) VALUES(?,?,?,?)`)
	upsertSeen, _ := s.db.Prepare(`INSERT INTO agents_seen(session,agent_id,name,team,first_tick,last_tick) VALUES(?,?,?,?,?,?)
		ON CONFLICT(session,agent_id) DO UPDATE SET name=excluded.name, team=excluded.team, last_tick=excluded.last_tick`)
	defer func() {
		for _, st := range []*sql.Stmt{insertSession, endSession, insertPass, insertConn, upsertSeen} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSession:
			se := r.session
			exec(insertSession, se.Session, se.Mode, se.URL, se.At)

		case reqSessionEnd:
			exec(endSession, r.session.At, r.session.Session)

		case reqPass:
			p := r.pass
			if !exec(insertPass, p.Session, int64(p.Seq), p.MatchID, int64(p.Tick), p.Creates, p.Updates, p.Removes,
				p.Entities, p.TotalAgents, p.ActiveAgents, p.AverageHealth, p.RecordedAt) {
				continue
			}
			for _, a := range p.Seen {
				if !exec(upsertSeen, p.Session, a.ID, a.Name, a.Team, int64(p.Tick), int64(p.Tick)) {
					break
				}
			}

		case reqConnectivity:
			c := r.connectivity
			exec(insertConn, c.Session, int64(c.Seq), c.Kind, c.At)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
