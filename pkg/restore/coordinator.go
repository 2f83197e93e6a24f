// Package restore replaces the live config table with a remote backup. Every
// restore snapshots the live bytes first and puts them back if any later
// step fails.
package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/backup"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/objstore"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/store"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/telemetry"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/utils"
)

// Step names, in execution order.
const (
	StepSearch   = "search"
	StepSnapshot = "snapshot"
	StepFetch    = "fetch"
	StepVerify   = "verify"
	StepDecode   = "decode"
	StepCommit   = "commit"
	StepRollback = "rollback"
)

// LiveStore is the in-process view of the table. Exclusive must block
// updates while fn runs and republish the table afterwards.
type LiveStore interface {
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
}

// Coordinator runs restores.
type Coordinator struct {
	backups     *backup.Coordinator
	storage     store.Storage
	live        LiveStore
	snapshotDir string
	stagingDir  string
	logger      log.Logger
	metrics     *telemetry.Metrics
	now         func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLiveStore serialises restores with config updates and reloads the
// store after commit or rollback.
func WithLiveStore(live LiveStore) Option {
	return func(c *Coordinator) { c.live = live }
}

// WithSnapshotDir sets where pre-restore snapshots are kept.
func WithSnapshotDir(dir string) Option {
	return func(c *Coordinator) { c.snapshotDir = dir }
}

// WithStagingDir sets the parent directory for downloaded backups.
func WithStagingDir(dir string) Option {
	return func(c *Coordinator) { c.stagingDir = dir }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a restore coordinator for storage. Snapshots
// default to a backups directory next to the store file.
func NewCoordinator(backups *backup.Coordinator, storage store.Storage, opts ...Option) *Coordinator {
	c := &Coordinator{
		backups: backups,
		storage: storage,
		logger:  log.GetDefaultLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.snapshotDir == "" {
		c.snapshotDir = filepath.Join(filepath.Dir(storage.Location()), "backups")
	}
	c.logger = c.logger.WithComponent("restore")
	return c
}

// run carries the state of one restore.
type run struct {
	result   *types.RestoreResult
	logger   log.Logger
	snapshot []byte
	// absent is set when there was no live store to snapshot; rollback then
	// removes whatever the restore wrote.
	absent bool
}

// Restore replaces the live table with remoteKey. The returned result is
// always populated; the error is non-nil whenever Success is false.
func (c *Coordinator) Restore(ctx context.Context, remoteKey string) (*types.RestoreResult, error) {
	start := c.now()
	defer c.metrics.ObserveDuration("restore", start)

	r := &run{
		result: &types.RestoreResult{ID: uuid.NewString(), SourceRemoteKey: remoteKey},
	}
	r.logger = c.logger.With(log.Str("restore_id", r.result.ID), log.Str("key", remoteKey))
	r.logger.Info("Starting restore")

	info, err := c.backups.Exists(ctx, remoteKey)
	if err != nil {
		return c.abort(r, StepSearch, err)
	}

	if c.live != nil {
		err = c.live.Exclusive(ctx, func(ctx context.Context) error {
			return c.apply(ctx, r, info, start)
		})
	} else {
		err = c.apply(ctx, r, info, start)
	}

	c.metrics.RecordRestore(string(r.result.Status))
	if err != nil {
		if r.result.Error == "" {
			r.result.Error = err.Error()
		}
		return r.result, err
	}
	return r.result, nil
}

// apply runs snapshot through commit. It is called with updates blocked when
// a live store is attached.
func (c *Coordinator) apply(ctx context.Context, r *run, info *objstore.ObjectInfo, start time.Time) error {
	current, err := c.storage.Read(ctx)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		_, e := c.abort(r, StepSnapshot, err)
		return e
	}
	r.snapshot = current
	r.absent = err != nil

	if r.absent {
		r.logger.Info("No live store to snapshot", log.Str("path", c.storage.Location()))
	} else {
		stem, ext := utils.SplitName(c.storage.Location())
		name := fmt.Sprintf("%s-pre-restore-%s", stem, utils.SafeKeyTimestamp(types.FormatTimestamp(start)))
		snapPath, err := utils.WriteUnique(c.snapshotDir, name, ext, current)
		if err != nil {
			_, e := c.abort(r, StepSnapshot, err)
			return e
		}
		r.result.PreRestoreSnapshotPath = snapPath
		r.logger.Info("Created pre-restore snapshot", log.Str("path", snapPath))
	}

	stagingDir, err := os.MkdirTemp(c.stagingDir, "labconf-restore-*")
	if err != nil {
		return c.rollback(ctx, r, StepFetch, fmt.Errorf("failed to create staging directory: %w", err))
	}
	defer os.RemoveAll(stagingDir)

	staged := filepath.Join(stagingDir, filepath.Base(info.Key))
	if _, err := c.backups.Download(ctx, info.Key, staged); err != nil {
		return c.rollback(ctx, r, StepFetch, err)
	}
	data, err := os.ReadFile(staged)
	if err != nil {
		return c.rollback(ctx, r, StepFetch, fmt.Errorf("failed to read staged backup: %w", err))
	}

	verify := c.backups.VerifyBytes(data, info)
	if !verify.Valid {
		msg := verify.Error
		if msg == "" {
			msg = fmt.Sprintf("checksum mismatch: got %s, want %s", verify.LocalChecksum, verify.RemoteChecksum)
		}
		return c.rollback(ctx, r, StepVerify, types.NewError(types.KindIntegrityMismatch, "restore", msg))
	}

	if _, err := store.Decode(data); err != nil {
		return c.rollback(ctx, r, StepDecode,
			types.WrapError(types.KindValidationFailed, "restore", err, "backup is not a valid config table"))
	}

	if err := c.storage.AtomicReplace(ctx, data); err != nil {
		return c.rollback(ctx, r, StepCommit, err)
	}

	r.result.Success = true
	r.result.Status = types.RestoreCommitted
	r.logger.Info("Restore committed", log.Int("bytes", len(data)))
	return nil
}

func (c *Coordinator) abort(r *run, step string, cause error) (*types.RestoreResult, error) {
	e := stepError(step, cause)
	r.result.Status = types.RestoreAborted
	r.result.FailedStep = step
	r.result.Error = e.Detail()
	r.logger.Warn("Restore aborted", log.Str("step", step), log.Err(cause))
	if step == StepSearch {
		c.metrics.RecordRestore(string(types.RestoreAborted))
	}
	return r.result, e
}

// rollback puts the snapshot bytes back synchronously, or removes the live
// store when there was none before the restore.
func (c *Coordinator) rollback(ctx context.Context, r *run, step string, cause error) error {
	e := stepError(step, cause)
	r.result.FailedStep = step
	r.result.Error = e.Detail()
	r.logger.Warn("Restore failed, rolling back", log.Str("step", step), log.Err(cause))

	// Rollback must run even when the caller's context is already done.
	rbCtx := context.WithoutCancel(ctx)
	var err error
	if r.absent {
		err = c.storage.Remove(rbCtx)
	} else {
		err = c.storage.AtomicReplace(rbCtx, r.snapshot)
	}
	if err != nil {
		r.result.Status = types.RestoreRollbackFailed
		r.result.Error = fmt.Sprintf("%s; rollback failed: %v (snapshot kept at %s)", e.Detail(), err, r.result.PreRestoreSnapshotPath)
		r.logger.Error("Restore rollback failed, live store may be inconsistent",
			log.Str("snapshot", r.result.PreRestoreSnapshotPath), log.Err(err))
		c.metrics.RecordRollbackFailure()
		return &types.Error{
			Kind:    types.KindRollbackFailed,
			Op:      "restore",
			Step:    StepRollback,
			Message: r.result.Error,
			Err:     errors.Join(cause, err),
		}
	}

	r.result.Status = types.RestoreRolledBack
	r.logger.Info("Restore rolled back", log.Str("snapshot", r.result.PreRestoreSnapshotPath))
	return e
}

// stepError keeps the kind of a typed cause and records the step; untyped
// causes become TransferFailed. The cause's text appears once.
func stepError(step string, cause error) *types.Error {
	var te *types.Error
	if errors.As(cause, &te) {
		if cause == error(te) {
			return &types.Error{Kind: te.Kind, Op: "restore", Step: step, Message: te.Message, Err: te.Err}
		}
		return &types.Error{Kind: te.Kind, Op: "restore", Step: step, Err: cause}
	}
	return &types.Error{Kind: types.KindTransferFailed, Op: "restore", Step: step, Err: cause}
}
