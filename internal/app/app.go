// Package app wires the configuration components from a loaded Config. The
// CLI and the daemon share it so both see the same store, history and
// backup destination.
package app

import (
	"context"
	"fmt"

	"github.com/HenzeLabs/lab-ess-headless-sub002/internal/config"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/analytics"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/audit"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/backup"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/configstore"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/history"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/impact"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/objstore"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/restore"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/store"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/telemetry"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Metrics  *telemetry.Metrics
	Storage  store.Storage
	Store    *configstore.Store
	History  *history.Journal
	Backups  *backup.Coordinator
	Restorer *restore.Coordinator
	Impact   *impact.Analyzer
	Reporter *audit.Reporter

	provider analytics.Provider
}

// Option customises wiring, mostly for tests.
type Option func(*options)

type options struct {
	storage  store.Storage
	remote   objstore.Store
	provider analytics.Provider
	metrics  *telemetry.Metrics
}

// WithStorage replaces the file storage named by the config.
func WithStorage(s store.Storage) Option {
	return func(o *options) { o.storage = s }
}

// WithRemote replaces the backup destination named by the config.
func WithRemote(r objstore.Store) Option {
	return func(o *options) { o.remote = r }
}

// WithProvider replaces the analytics provider named by the config.
func WithProvider(p analytics.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithMetrics records operational metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New wires every component. Unconfigured optional parts (remote, analytics)
// are left disabled rather than failing.
func New(ctx context.Context, cfg *config.Config, logger log.Logger, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: o.metrics}

	a.Storage = o.storage
	if a.Storage == nil {
		a.Storage = store.NewFileStorage(cfg.Store.Path, logger)
	}

	storeOpts := []configstore.Option{
		configstore.WithLogger(logger),
		configstore.WithLimits(cfg.Store.Limits),
	}
	if cfg.History.Enabled {
		// badger holds a directory lock, so a second process (the CLI next to
		// a running daemon) carries on without journaling.
		j, err := history.Open(cfg.History.Dir, history.WithLogger(logger))
		if err != nil {
			logger.Warn("Change history unavailable, updates will not be journaled",
				log.Str("dir", cfg.History.Dir), log.Err(err))
		} else {
			a.History = j
			storeOpts = append(storeOpts, configstore.WithRecorder(j))
		}
	}

	cs, err := configstore.New(ctx, a.Storage, storeOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = cs

	remote := o.remote
	if remote == nil {
		remote, err = objstore.New(ctx, cfg.Backup.Remote)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open backup destination: %w", err)
		}
	}
	a.Backups = backup.NewCoordinator(remote,
		backup.WithLocalDir(cfg.Backup.LocalDir),
		backup.WithLogger(logger),
		backup.WithMetrics(a.Metrics),
	)
	a.Restorer = restore.NewCoordinator(a.Backups, a.Storage,
		restore.WithLiveStore(cs),
		restore.WithSnapshotDir(cfg.Backup.SnapshotDir),
		restore.WithStagingDir(cfg.Backup.StagingDir),
		restore.WithLogger(logger),
		restore.WithMetrics(a.Metrics),
	)

	a.provider = o.provider
	if a.provider == nil {
		a.provider, err = analytics.New(ctx, cfg.Analytics)
		if err != nil {
			// Impact measurement is optional; the rest keeps working.
			logger.Warn("Analytics provider unavailable", log.Err(err))
			a.provider = nil
		}
	}
	a.Impact = impact.NewAnalyzer(a.provider,
		impact.WithRecords(cs),
		impact.WithLogger(logger),
		impact.WithMetrics(a.Metrics),
	)

	reporterOpts := []audit.Option{
		audit.WithLogger(logger),
		audit.WithBackups(a.Backups),
		audit.WithImpact(a.Impact),
	}
	if a.History != nil {
		reporterOpts = append(reporterOpts, audit.WithHistory(a.History))
	}
	a.Reporter = audit.NewReporter(cs, reporterOpts...)
	return a, nil
}

// Close releases the history database and the analytics client.
func (a *App) Close() error {
	if c, ok := a.provider.(interface{ Close() }); ok {
		c.Close()
	}
	if a.History != nil {
		return a.History.Close()
	}
	return nil
}
