package engine

import (
	"sync/atomic"
	"time"
)

// Metrics counts scheduler activity.
type Metrics struct {
	checksStarted atomic.Uint64
	checksFailed  atomic.Uint64
	inFlight      atomic.Int64
	peakInFlight  atomic.Int64
	checkTotalNs  atomic.Int64

	renders atomic.Uint64
	batches atomic.Uint64
	passes  atomic.Uint64

	startTime time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// CheckStarted records a check entering flight.
func (m *Metrics) CheckStarted() {
	m.checksStarted.Add(1)
	n := m.inFlight.Add(1)

	// Update peak (atomic compare-and-swap loop)
	for {
		old := m.peakInFlight.Load()
		if n <= old {
			break
		}
		if m.peakInFlight.CompareAndSwap(old, n) {
			break
		}
	}
}

// CheckDone records a check leaving flight.
func (m *Metrics) CheckDone(duration time.Duration, failed bool) {
	m.inFlight.Add(-1)
	m.checkTotalNs.Add(duration.Nanoseconds())
	if failed {
		m.checksFailed.Add(1)
	}
}

// RecordRender records one block render.
func (m *Metrics) RecordRender() {
	m.renders.Add(1)
}

// RecordBatch records one settled batch.
func (m *Metrics) RecordBatch() {
	m.batches.Add(1)
}

// RecordPass records one full pass.
func (m *Metrics) RecordPass() {
	m.passes.Add(1)
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	started := m.checksStarted.Load()
	var avg time.Duration
	if started > 0 {
		avg = time.Duration(m.checkTotalNs.Load() / int64(started))
	}
	return MetricsSnapshot{
		Uptime:        time.Since(m.startTime),
		ChecksStarted: started,
		ChecksFailed:  m.checksFailed.Load(),
		InFlight:      m.inFlight.Load(),
		PeakInFlight:  m.peakInFlight.Load(),
		AvgCheck:      avg,
		Renders:       m.renders.Load(),
		Batches:       m.batches.Load(),
		Passes:        m.passes.Load(),
	}
}

// Reset clears all counters except in-flight checks.
func (m *Metrics) Reset() {
	m.checksStarted.Store(0)
	m.checksFailed.Store(0)
	m.peakInFlight.Store(m.inFlight.Load())
	m.checkTotalNs.Store(0)
	m.renders.Store(0)
	m.batches.Store(0)
	m.passes.Store(0)
	m.startTime = time.Now()
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Uptime        time.Duration
	ChecksStarted uint64
	ChecksFailed  uint64
	InFlight      int64
	PeakInFlight  int64
	AvgCheck      time.Duration
	Renders       uint64
	Batches       uint64
	Passes        uint64
}
