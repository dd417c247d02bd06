// Command docsync mirrors a remote document directory into a RAG ingestion
// backend, one-way, on a fixed poll interval.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/pixelgardenlabs/docsync/pkg/backend"
	"github.com/pixelgardenlabs/docsync/pkg/buildinfo"
	"github.com/pixelgardenlabs/docsync/pkg/config"
	"github.com/pixelgardenlabs/docsync/pkg/failurelog"
	"github.com/pixelgardenlabs/docsync/pkg/filesource"
	"github.com/pixelgardenlabs/docsync/pkg/flagparse"
	"github.com/pixelgardenlabs/docsync/pkg/lockfile"
	"github.com/pixelgardenlabs/docsync/pkg/plog"
	"github.com/pixelgardenlabs/docsync/pkg/preflight"
	"github.com/pixelgardenlabs/docsync/pkg/preprocessor"
	"github.com/pixelgardenlabs/docsync/pkg/statestore"
	"github.com/pixelgardenlabs/docsync/pkg/syncengine"
	"github.com/pixelgardenlabs/docsync/pkg/syncmetrics"
)

// appID identifies this daemon in the lock file, distinguishing it from any
// other process that might contend for the same state directory.
const appID = "docsync"

func run(ctx context.Context) error {
	parsed, err := flagparse.Parse(os.Args[1:])
	if err != nil {
		return err
	}
	if parsed.Version {
		fmt.Printf("%s version %s\n", buildinfo.Name, buildinfo.Version)
		return nil
	}
	if parsed.Quiet {
		plog.SetQuiet(true)
	}

	loadedConfig, err := config.Load(parsed.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := config.MergeConfigWithFlags(loadedConfig, parsed.SetFlags)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	plog.SetLevel(plog.LevelFromString(cfg.LogLevel))
	cfg.LogSummary()

	if err := preflight.CheckWritableFilePath(cfg.StateFile); err != nil {
		return fmt.Errorf("state file path preflight check failed: %w", err)
	}
	if err := preflight.CheckWritableFilePath(cfg.Failures.LogPath); err != nil {
		return fmt.Errorf("failure log path preflight check failed: %w", err)
	}

	lock, err := lockfile.Acquire(ctx, filepath.Dir(cfg.StateFile), appID)
	if err != nil {
		return fmt.Errorf("failed to acquire instance lock: %w", err)
	}
	defer lock.Release()

	source, err := filesource.New(filesource.Config{
		Protocol:          cfg.Source.Protocol,
		Host:              cfg.Source.Host,
		Port:              cfg.Source.Port,
		Username:          cfg.Source.Username,
		Password:          cfg.Source.Password,
		PrivateKeyPath:    cfg.Source.PrivateKeyPath,
		Directory:         cfg.Source.Directory,
		AllowedExtensions: cfg.Source.AllowedExtensions,
	})
	if err != nil {
		return fmt.Errorf("failed to construct file source: %w", err)
	}

	be := backend.New(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.BackendTimeout())

	var pp preprocessor.Preprocessor = preprocessor.NoOp{}
	if cfg.Preprocessor.Enabled {
		ext, err := preprocessor.NewExternal(cfg.Preprocessor.Command, cfg.PreprocessorTimeout())
		if err != nil {
			return fmt.Errorf("failed to construct preprocessor: %w", err)
		}
		pp = ext
	}

	store := statestore.New(cfg.StateFile)
	failures := failurelog.New(cfg.Failures.LogPath, cfg.Failures.MaxSizeKB)
	metrics := &syncmetrics.TickMetrics{}

	engine := syncengine.New(source, be, pp, store, failures, metrics, syncengine.Config{
		PollInterval:      cfg.PollInterval(),
		StartupSync:       cfg.StartupSyncMode(),
		CleanupFailedDocs: cfg.Sync.CleanupFailedDocs,
	})

	plog.Info("starting "+buildinfo.Name, "version", buildinfo.Version, "pid", os.Getpid())
	startTime := time.Now()
	err = engine.Run(ctx)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err
	}
	plog.Info(buildinfo.Name+" stopped", "duration", duration)
	return nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		plog.Info("shutdown signal received, finishing current tick")
		cancel()
	}()

	if err := run(ctx); err != nil {
		plog.Error(buildinfo.Name+" exited with error", "error", err)
		os.Exit(1)
	}
}
