// Package syncengine implements the core reconciliation state machine:
// startup reconciliation and periodic polling that keeps a backend's
// document set mirroring a FileSource directory. Grounded on
// FileWatcherService.java, generalized from a Spring-scheduled component
// into an explicit, dependency-injected, single-goroutine driver.
package syncengine

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pixelgardenlabs/docsync/pkg/backend"
	"github.com/pixelgardenlabs/docsync/pkg/failurelog"
	"github.com/pixelgardenlabs/docsync/pkg/filesource"
	"github.com/pixelgardenlabs/docsync/pkg/plog"
	"github.com/pixelgardenlabs/docsync/pkg/preprocessor"
	"github.com/pixelgardenlabs/docsync/pkg/statestore"
	"github.com/pixelgardenlabs/docsync/pkg/syncmetrics"
)

// StartupSyncMode selects how aggressively startup reconciliation
// compares the source against the backend.
type StartupSyncMode string

const (
	// StartupSyncNone only pre-populates file state from the persisted
	// snapshot; it never queries or mutates the backend.
	StartupSyncNone StartupSyncMode = "none"
	// StartupSyncUpload uploads missing or stale files but leaves
	// orphaned/duplicate backend documents alone.
	StartupSyncUpload StartupSyncMode = "upload"
	// StartupSyncFull additionally deletes duplicate and orphaned
	// backend documents.
	StartupSyncFull StartupSyncMode = "full"
)

// Config parameterizes an Engine.
type Config struct {
	PollInterval      time.Duration
	StartupSync       StartupSyncMode
	CleanupFailedDocs bool
}

// Engine is the one process-wide synchronization state machine. All of
// its dependencies are explicit constructor arguments — the Go
// counterpart of the source's dependency-injected singleton components.
type Engine struct {
	source       filesource.FileSource
	backend      backend.Backend
	preprocessor preprocessor.Preprocessor
	store        *statestore.Store
	failures     *failurelog.Log
	metrics      syncmetrics.Metrics
	cfg          Config

	// sf collapses a concurrently triggered tick (e.g. a future
	// signal-driven "sync now") with any tick already in flight, so two
	// ticks never race on StateStore even outside the normal timer loop.
	sf singleflight.Group
}

// New constructs an Engine. metrics may be nil, in which case tick
// statistics are discarded.
func New(
	source filesource.FileSource,
	be backend.Backend,
	pp preprocessor.Preprocessor,
	store *statestore.Store,
	failures *failurelog.Log,
	metrics syncmetrics.Metrics,
	cfg Config,
) *Engine {
	if metrics == nil {
		metrics = &syncmetrics.NoopMetrics{}
	}
	return &Engine{
		source:       source,
		backend:      be,
		preprocessor: pp,
		store:        store,
		failures:     failures,
		metrics:      metrics,
		cfg:          cfg,
	}
}

// Run performs startup reconciliation, then blocks running poll ticks at
// the configured interval until ctx is cancelled. A graceful shutdown
// finishes the current tick, persists state, and returns.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Startup(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			plog.Info("shutting down after current tick")
			return nil
		case <-ticker.C:
			if _, err, _ := e.sf.Do("tick", func() (any, error) {
				e.Tick(ctx)
				return nil, nil
			}); err != nil {
				plog.Error("poll tick failed", "error", err)
			}
		}
	}
}
