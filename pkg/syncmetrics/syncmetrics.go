// Package syncmetrics tracks per-tick synchronization counters. Adapted
// from the teacher's pkg/metrics: same atomic-counter-struct-plus-Log()
// shape, renamed to the events a SyncEngine tick actually produces.
package syncmetrics

import (
	"sync/atomic"

	"github.com/pixelgardenlabs/docsync/pkg/plog"
)

// Metrics defines the interface for collecting and reporting
// synchronization statistics for one run of the engine.
type Metrics interface {
	AddCreated(n int64)
	AddUpdated(n int64)
	AddDeleted(n int64)
	AddStale(n int64)
	AddFailed(n int64)
	AddSuppressed(n int64)
	Log()
}

// TickMetrics holds the atomic counters for a poll tick or startup
// reconciliation pass. It is the concrete implementation of Metrics.
type TickMetrics struct {
	Created    atomic.Int64
	Updated    atomic.Int64
	Deleted    atomic.Int64
	Stale      atomic.Int64
	Failed     atomic.Int64
	Suppressed atomic.Int64
}

func (m *TickMetrics) AddCreated(n int64)    { m.Created.Add(n) }
func (m *TickMetrics) AddUpdated(n int64)    { m.Updated.Add(n) }
func (m *TickMetrics) AddDeleted(n int64)    { m.Deleted.Add(n) }
func (m *TickMetrics) AddStale(n int64)      { m.Stale.Add(n) }
func (m *TickMetrics) AddFailed(n int64)     { m.Failed.Add(n) }
func (m *TickMetrics) AddSuppressed(n int64) { m.Suppressed.Add(n) }

// Log prints a one-line summary of the tick and resets every counter,
// so the next tick's summary reports that tick alone rather than a
// running total since startup.
func (m *TickMetrics) Log() {
	plog.Info("tick summary",
		"created", m.Created.Swap(0),
		"updated", m.Updated.Swap(0),
		"deleted", m.Deleted.Swap(0),
		"stale", m.Stale.Swap(0),
		"failed", m.Failed.Swap(0),
		"suppressed", m.Suppressed.Swap(0),
	)
}

// NoopMetrics discards every counter update. Useful for tests that
// don't care about tick-level statistics.
type NoopMetrics struct{}

func (m *NoopMetrics) AddCreated(n int64)    {}
func (m *NoopMetrics) AddUpdated(n int64)    {}
func (m *NoopMetrics) AddDeleted(n int64)    {}
func (m *NoopMetrics) AddStale(n int64)      {}
func (m *NoopMetrics) AddFailed(n int64)     {}
func (m *NoopMetrics) AddSuppressed(n int64) {}
func (m *NoopMetrics) Log()                  {}

var _ Metrics = (*TickMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
