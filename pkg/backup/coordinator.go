// Package backup pushes snapshots of the config table to remote object
// storage with integrity metadata, and pulls them back.
package backup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/objstore"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/telemetry"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/utils"
)

const (
	// KeyPrefix is where every backup object lives.
	KeyPrefix = "backups/"

	// Source identifies objects written by this system.
	Source = "lab-essentials-config-manager"

	ContentType = "text/csv"

	// Metadata keys written on every object.
	MetaChecksum  = "checksum"
	MetaTimestamp = "timestamp"
	MetaSource    = "source"

	// MissingChecksum is reported when an object has no checksum metadata.
	MissingChecksum = "missing checksum metadata"

	// DefaultListLimit bounds List when the caller passes a non-positive limit.
	DefaultListLimit = 100
)

// Tags applied to every backup object.
var Tags = []objstore.Tag{
	{Key: "Environment", Value: "Production"},
	{Key: "Type", Value: "ConfigBackup"},
	{Key: "AutomatedBackup", Value: "true"},
}

// ComputeChecksum returns the MD5 hex digest of data.
func ComputeChecksum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ChecksumFile returns the MD5 hex digest of the file at path.
func ChecksumFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return ComputeChecksum(data), nil
}

// RemoteKey builds backups/<timestamp>/<file name> for a backup taken at t.
func RemoteKey(t time.Time, fileName string) string {
	return KeyPrefix + utils.SafeKeyTimestamp(types.FormatTimestamp(t)) + "/" + fileName
}

// Coordinator uploads, lists, downloads and verifies backups.
type Coordinator struct {
	remote   objstore.Store
	localDir string
	logger   log.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLocalDir sets the directory that receives a redundant copy of every
// uploaded file.
func WithLocalDir(dir string) Option {
	return func(c *Coordinator) { c.localDir = dir }
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

// NewCoordinator creates a coordinator. A nil remote means no destination is
// configured; operations then report ConfigurationMissing.
func NewCoordinator(remote objstore.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		remote: remote,
		logger: log.GetDefaultLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("backup")
	return c
}

// Configured reports whether a remote destination is set.
func (c *Coordinator) Configured() bool {
	return c.remote != nil
}

// LocalDir returns the local redundancy directory.
func (c *Coordinator) LocalDir() string {
	return c.localDir
}

func (c *Coordinator) notConfigured(op string) *types.Error {
	return types.NewError(types.KindConfigurationMissing, op, "backup destination not configured")
}

// Upload pushes the file at filePath to remote storage and then writes a
// local redundant copy. Caller metadata is attached but cannot replace the
// checksum, timestamp or source entries.
func (c *Coordinator) Upload(ctx context.Context, filePath string, metadata map[string]string) (*types.UploadResult, error) {
	start := c.now()
	defer c.metrics.ObserveDuration("backup_upload", start)

	if c.remote == nil {
		err := c.notConfigured("upload")
		c.metrics.RecordBackupUpload(false, 0)
		return &types.UploadResult{Error: err.Detail()}, err
	}
	bucket := c.remote.Bucket()

	data, err := os.ReadFile(filePath)
	if err != nil {
		var e *types.Error
		if errors.Is(err, fs.ErrNotExist) {
			e = types.WrapError(types.KindNotFound, "upload", err, "File not found: %s", filePath)
		} else {
			e = types.WrapError(types.KindTransferFailed, "upload", err, "failed to read %s", filePath)
		}
		c.metrics.RecordBackupUpload(false, 0)
		return &types.UploadResult{Bucket: bucket, Error: e.Detail()}, e
	}

	if len(data) == 0 {
		e := types.NewError(types.KindValidationFailed, "upload", "refusing to back up an empty config table: "+filePath)
		c.metrics.RecordBackupUpload(false, 0)
		return &types.UploadResult{Bucket: bucket, Error: e.Detail()}, e
	}

	checksum := ComputeChecksum(data)
	key := RemoteKey(start, filepath.Base(filePath))

	meta := make(map[string]string, len(metadata)+3)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[MetaChecksum] = checksum
	meta[MetaTimestamp] = types.FormatTimestamp(start)
	meta[MetaSource] = Source

	err = c.remote.Put(ctx, key, data, objstore.PutOptions{
		ContentType: ContentType,
		Metadata:    meta,
		Tags:        Tags,
		Encrypt:     true,
	})
	if err != nil {
		e := types.WrapError(types.KindTransferFailed, "upload", err, "failed to upload %s", key)
		c.logger.Error("Backup upload failed", log.Str("key", key), log.Err(err))
		c.metrics.RecordBackupUpload(false, 0)
		return &types.UploadResult{Bucket: bucket, Error: e.Detail()}, e
	}

	result := &types.UploadResult{
		Success:   true,
		RemoteKey: key,
		Bucket:    bucket,
		Size:      int64(len(data)),
		Checksum:  checksum,
		URL:       c.remote.URL(key),
		Metadata:  meta,
	}
	c.metrics.RecordBackupUpload(true, result.Size)
	c.logger.Info("Backup uploaded",
		log.Str("url", result.URL), log.Int64("size", result.Size), log.Str("checksum", checksum))

	if c.localDir != "" {
		path, err := c.writeLocalCopy(filePath, data, start)
		if err != nil {
			c.logger.Warn("Local backup copy failed", log.Str("dir", c.localDir), log.Err(err))
			result.LocalCopyError = err.Error()
		} else {
			result.LocalCopy = path
		}
	}
	return result, nil
}

// writeLocalCopy stores data as <stem>-YYYY-MM-DD-HHMMSS<ext> in the local dir.
func (c *Coordinator) writeLocalCopy(filePath string, data []byte, t time.Time) (string, error) {
	stem, ext := utils.SplitName(filePath)
	name := fmt.Sprintf("%s-%s", stem, t.UTC().Format("2006-01-02-150405"))
	return utils.WriteUnique(c.localDir, name, ext, data)
}

// NightlyBackup uploads the live store tagged as a scheduled backup.
func (c *Coordinator) NightlyBackup(ctx context.Context, storePath string) (*types.UploadResult, error) {
	c.logger.Info("Starting nightly configuration backup", log.Str("path", storePath))
	result, err := c.Upload(ctx, storePath, map[string]string{
		"backup_type":     "nightly",
		"backup_schedule": "automated",
	})
	if err != nil {
		c.logger.Error("Nightly backup failed", log.Err(err))
		return result, err
	}
	c.logger.Info("Nightly backup complete",
		log.Str("url", result.URL), log.Str("local_copy", result.LocalCopy))
	return result, nil
}

// List returns up to maxResults backups, newest first. An unconfigured
// destination yields an empty list.
func (c *Coordinator) List(ctx context.Context, maxResults int) ([]types.BackupEntry, error) {
	if c.remote == nil {
		c.logger.Warn("Backup destination not configured, nothing to list")
		return []types.BackupEntry{}, nil
	}
	if maxResults <= 0 {
		maxResults = DefaultListLimit
	}

	objects, err := c.remote.List(ctx, KeyPrefix)
	if err != nil {
		return nil, types.WrapError(types.KindTransferFailed, "list", err, "failed to list backups")
	}

	entries := make([]types.BackupEntry, 0, len(objects))
	for _, obj := range objects {
		entries = append(entries, types.BackupEntry{
			RemoteKey:    obj.Key,
			LastModified: obj.LastModified,
			Size:         obj.Size,
			URL:          c.remote.URL(obj.Key),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].LastModified.Equal(entries[j].LastModified) {
			return entries[i].RemoteKey > entries[j].RemoteKey
		}
		return entries[i].LastModified.After(entries[j].LastModified)
	})
	if len(entries) > maxResults {
		entries = entries[:maxResults]
	}
	return entries, nil
}

// Exists reports whether remoteKey is present. It returns the object's info
// when it is.
func (c *Coordinator) Exists(ctx context.Context, remoteKey string) (*objstore.ObjectInfo, error) {
	if c.remote == nil {
		return nil, c.notConfigured("search")
	}
	info, err := c.remote.Head(ctx, remoteKey)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, err
		}
		return nil, types.WrapError(types.KindTransferFailed, "search", err, "failed to look up %s", remoteKey)
	}
	return info, nil
}

// Fetch returns the bytes and metadata of remoteKey. An empty body is an error.
func (c *Coordinator) Fetch(ctx context.Context, remoteKey string) ([]byte, *objstore.ObjectInfo, error) {
	if c.remote == nil {
		return nil, nil, c.notConfigured("download")
	}
	data, info, err := c.remote.Get(ctx, remoteKey)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, types.WrapError(types.KindTransferFailed, "download", err, "failed to download %s", remoteKey)
	}
	if len(data) == 0 {
		return nil, nil, types.NewError(types.KindTransferFailed, "download", "Empty response from remote storage")
	}
	return data, info, nil
}

// Download writes remoteKey to destPath, creating parent directories.
func (c *Coordinator) Download(ctx context.Context, remoteKey, destPath string) (*types.TransferResult, error) {
	start := c.now()
	defer c.metrics.ObserveDuration("backup_download", start)

	data, _, err := c.Fetch(ctx, remoteKey)
	if err != nil {
		return &types.TransferResult{Error: errorDetail(err)}, err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		e := types.WrapError(types.KindTransferFailed, "download", err, "failed to create %s", filepath.Dir(destPath))
		return &types.TransferResult{Error: e.Detail()}, e
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		e := types.WrapError(types.KindTransferFailed, "download", err, "failed to write %s", destPath)
		return &types.TransferResult{Error: e.Detail()}, e
	}

	c.logger.Info("Backup downloaded", log.Str("key", remoteKey), log.Str("path", destPath))
	return &types.TransferResult{Success: true, Path: destPath, Size: int64(len(data))}, nil
}

// VerifyIntegrity compares the checksum of localPath with the checksum
// recorded in the metadata of remoteKey. A mismatch is reported as
// Valid=false without an error; missing files, objects or metadata are errors.
func (c *Coordinator) VerifyIntegrity(ctx context.Context, localPath, remoteKey string) (*types.VerifyResult, error) {
	if c.remote == nil {
		err := c.notConfigured("verify")
		c.metrics.RecordIntegrityCheck("error")
		return &types.VerifyResult{Error: err.Detail()}, err
	}

	localChecksum, err := ChecksumFile(localPath)
	if err != nil {
		kind := types.KindTransferFailed
		if errors.Is(err, fs.ErrNotExist) {
			kind = types.KindNotFound
		}
		e := types.WrapError(kind, "verify", err, "failed to read %s", localPath)
		c.metrics.RecordIntegrityCheck("error")
		return &types.VerifyResult{Error: e.Detail()}, e
	}

	info, err := c.Exists(ctx, remoteKey)
	if err != nil {
		c.metrics.RecordIntegrityCheck("error")
		return &types.VerifyResult{LocalChecksum: localChecksum, Error: errorDetail(err)}, err
	}

	return c.compare(localChecksum, info), nil
}

// VerifyBytes is VerifyIntegrity for content already in memory.
func (c *Coordinator) VerifyBytes(data []byte, info *objstore.ObjectInfo) *types.VerifyResult {
	return c.compare(ComputeChecksum(data), info)
}

func (c *Coordinator) compare(localChecksum string, info *objstore.ObjectInfo) *types.VerifyResult {
	remoteChecksum := ""
	if info != nil {
		remoteChecksum = info.Metadata[MetaChecksum]
	}
	if remoteChecksum == "" {
		c.metrics.RecordIntegrityCheck("error")
		return &types.VerifyResult{LocalChecksum: localChecksum, Error: MissingChecksum}
	}
	valid := localChecksum == remoteChecksum
	if valid {
		c.metrics.RecordIntegrityCheck("valid")
	} else {
		c.metrics.RecordIntegrityCheck("mismatch")
		c.logger.Warn("Backup checksum mismatch",
			log.Str("local", localChecksum), log.Str("remote", remoteChecksum))
	}
	return &types.VerifyResult{Valid: valid, LocalChecksum: localChecksum, RemoteChecksum: remoteChecksum}
}

func errorDetail(err error) string {
	var te *types.Error
	if errors.As(err, &te) {
		return te.Detail()
	}
	return err.Error()
}
