// Package telemetry wraps go-metrics with the counters the viewer reports.
package telemetry

import (
	"time"

	metrics "github.com/armon/go-metrics"
)

const ServiceName = "arenaview"

var (
	KeyFramesReceived  = []string{"frames", "received"}
	KeyFramesDropped   = []string{"frames", "dropped"}
	KeyRecordsSkipped  = []string{"records", "skipped"}
	KeySnapshotsStale  = []string{"snapshots", "stale"}
	KeyPasses          = []string{"reconcile", "passes"}
	KeyCreates         = []string{"reconcile", "creates"}
	KeyUpdates         = []string{"reconcile", "updates"}
	KeyRemoves         = []string{"reconcile", "removes"}
	KeyEntities        = []string{"reconcile", "entities"}
	KeyPassDuration    = []string{"reconcile", "duration"}
	KeyDialAttempts    = []string{"conn", "dial_attempts"}
	KeyDialFailures    = []string{"conn", "dial_failures"}
	KeyConnEstablished = []string{"conn", "established"}
	KeyConnLost        = []string{"conn", "lost"}
	KeySendRejected    = []string{"conn", "send_rejected"}
	KeyCommandsSent    = []string{"conn", "commands_sent"}
)

// Metrics is a nil-safe handle; a nil *Metrics records nothing.
type Metrics struct {
	m *metrics.Metrics
}

// New builds metrics over sink. A nil sink discards everything.
func New(sink metrics.MetricSink) (*Metrics, error) {
	if sink == nil {
		sink = &metrics.BlackholeSink{}
	}
	cfg := metrics.DefaultConfig(ServiceName)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	m, err := metrics.New(cfg, sink)
	if err != nil {
		return nil, err
	}
	return &Metrics{m: m}, nil
}

// NewInmem keeps recent intervals in memory, useful for a status readout.
func NewInmem(interval, retain time.Duration) (*Metrics, *metrics.InmemSink, error) {
	sink := metrics.NewInmemSink(interval, retain)
	m, err := New(sink)
	if err != nil {
		return nil, nil, err
	}
	return m, sink, nil
}

func (t *Metrics) Incr(key []string) {
	t.Add(key, 1)
}

func (t *Metrics) Add(key []string, n int) {
	if t == nil || t.m == nil || n == 0 {
		return
	}
	t.m.IncrCounter(key, float32(n))
}

func (t *Metrics) Gauge(key []string, v float64) {
	if t == nil || t.m == nil {
		return
	}
	t.m.SetGauge(key, float32(v))
}

func (t *Metrics) Since(key []string, start time.Time) {
	if t == nil || t.m == nil {
		return
	}
	t.m.MeasureSince(key, start)
}
