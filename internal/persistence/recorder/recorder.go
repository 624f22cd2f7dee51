// Package recorder keeps a compressed JSONL log of everything the engine
// reconciled, so a session can be inspected or replayed later.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"arenaview.ai/internal/arena"
	"arenaview.ai/internal/codec"
	"arenaview.ai/internal/reconcile"
)

// FileSuffix marks recording segments. Each segment is one zstd stream of
// JSON lines.
const FileSuffix = ".jsonl.zst"

const (
	KindPass        = "pass"
	KindEstablished = "connection_established"
	KindLost        = "connection_lost"
)

// Entry is one line of a recording. Pass entries carry the frame the pass
// was computed from so that replay can recompute it.
type Entry struct {
	Kind    string    `json:"kind"`
	Session string    `json:"session"`
	Seq     uint64    `json:"seq"`
	At      time.Time `json:"at"`

	MatchID  string          `json:"match_id,omitempty"`
	Tick     uint64          `json:"tick,omitempty"`
	Creates  int             `json:"creates,omitempty"`
	Updates  int             `json:"updates,omitempty"`
	Removes  int             `json:"removes,omitempty"`
	Entities int             `json:"entities,omitempty"`
	Frame    json.RawMessage `json:"frame,omitempty"`
}

type Options struct {
	// Session defaults to a fresh uuid.
	Session     string
	RotateEvery time.Duration
	Now         func() time.Time
	Log         *log.Logger
}

// Recorder is an engine sink, called from the engine's tick goroutine only.
// Write failures are logged and counted; they never reach the engine.
type Recorder struct {
	session string
	dir     string
	period  time.Duration
	now     func() time.Time
	log     *log.Logger

	seg *segment

	seq      uint64
	entities int
	failed   atomic.Uint64
}

// segment is the open file for one rotation period.
type segment struct {
	key string
	f   *os.File
	zw  *zstd.Encoder
	bw  *bufio.Writer
}

// New records into <dataDir>/recordings/<session>/.
func New(dataDir string, opts Options) *Recorder {
	if opts.Session == "" {
		opts.Session = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = log.New(io.Discard, "", 0)
	}
	if opts.RotateEvery <= 0 {
		opts.RotateEvery = time.Hour
	}
	return &Recorder{
		session: opts.Session,
		dir:     SessionDir(dataDir, opts.Session),
		period:  opts.RotateEvery,
		now:     opts.Now,
		log:     opts.Log,
	}
}

func SessionDir(dataDir, session string) string {
	return filepath.Join(dataDir, "recordings", session)
}

func (r *Recorder) Session() string { return r.session }
func (r *Recorder) Dir() string     { return r.dir }
func (r *Recorder) Failed() uint64  { return r.failed.Load() }

// Close finishes the current segment. It is safe to call more than once.
func (r *Recorder) Close() error { return r.closeSegment() }

func (r *Recorder) ConnectionEstablished() { r.write(Entry{Kind: KindEstablished}) }
func (r *Recorder) ConnectionLost()        { r.write(Entry{Kind: KindLost}) }

func (r *Recorder) StateReconciled(p reconcile.Pass) {
	for _, in := range p.Instructions {
		switch in.Kind {
		case reconcile.KindCreate:
			r.entities++
		case reconcile.KindRemove:
			r.entities--
		}
	}
	frame, err := codec.EncodeSnapshot(SnapshotOf(p))
	if err != nil {
		r.failed.Add(1)
		r.log.Printf("recorder: encode frame tick=%d: %v", p.Tick, err)
		return
	}
	c, u, rm := p.Counts()
	r.write(Entry{
		Kind:     KindPass,
		MatchID:  p.MatchID,
		Tick:     p.Tick,
		Creates:  c,
		Updates:  u,
		Removes:  rm,
		Entities: r.entities,
		Frame:    frame,
	})
}

func (r *Recorder) write(e Entry) {
	r.seq++
	e.Session = r.session
	e.Seq = r.seq
	e.At = r.now().UTC()
	if err := r.append(e); err != nil {
		r.failed.Add(1)
		r.log.Printf("recorder: %s seq=%d: %v", e.Kind, e.Seq, err)
	}
}

// append writes e as one line into the segment covering e.At and pushes it
// through the compressor so a crash loses at most the current line.
func (r *Recorder) append(e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := e.At.Truncate(r.period).Format("20060102T150405Z")
	if r.seg == nil || r.seg.key != key {
		if err := r.openSegment(key); err != nil {
			return err
		}
	}
	if _, err := r.seg.bw.Write(append(b, '\n')); err != nil {
		return err
	}
	if err := r.seg.bw.Flush(); err != nil {
		return err
	}
	return r.seg.zw.Flush()
}

func (r *Recorder) openSegment(key string) error {
	if err := r.closeSegment(); err != nil {
		r.log.Printf("recorder: close segment: %v", err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(r.dir, fmt.Sprintf("session-%s%s", key, FileSuffix))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	r.seg = &segment{key: key, f: f, zw: zw, bw: bufio.NewWriterSize(zw, 64*1024)}
	return nil
}

func (r *Recorder) closeSegment() error {
	seg := r.seg
	if seg == nil {
		return nil
	}
	r.seg = nil
	ferr := seg.bw.Flush()
	if err := seg.zw.Close(); ferr == nil {
		ferr = err
	}
	if err := seg.f.Close(); ferr == nil {
		ferr = err
	}
	return ferr
}

// SnapshotOf rebuilds the snapshot a pass was computed from. Creates and
// updates appear once per surviving id in sequence order, which is
// exactly the deduplicated agent list.
func SnapshotOf(p reconcile.Pass) arena.Snapshot {
	s := arena.Snapshot{
		MatchID:     p.MatchID,
		Tick:        p.Tick,
		MatchTime:   p.MatchTime,
		ArenaBounds: p.ArenaBounds,
		Statistics:  p.Statistics,
		Agents:      make([]arena.AgentState, 0, len(p.Instructions)),
	}
	for _, in := range p.Instructions {
		if in.Kind == reconcile.KindRemove {
			continue
		}
		s.Agents = append(s.Agents, in.State)
	}
	return s
}
