package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/objstore"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/telemetry"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = "key,value,updated_by,updated_at,version\nseo.title,Lab Essentials,system,2025-10-19T10:00:00.000Z,1\n"

var fixedNow = time.Date(2025, 10, 29, 15, 0, 0, 123_000_000, time.UTC)

func setupCoordinator(t *testing.T, remote objstore.Store, opts ...Option) (*Coordinator, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.csv")
	require.NoError(t, os.WriteFile(path, []byte(table), 0o644))

	opts = append([]Option{
		WithLogger(log.NewTestLogger()),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)
	return NewCoordinator(remote, opts...), path
}

func TestComputeChecksum(t *testing.T) {
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", ComputeChecksum(nil))
	assert.Equal(t, ComputeChecksum([]byte("abc")), ComputeChecksum([]byte("abc")))
	assert.NotEqual(t, ComputeChecksum([]byte("abc")), ComputeChecksum([]byte("abd")))
}

func TestRemoteKey(t *testing.T) {
	key := RemoteKey(fixedNow, "config.csv")
	assert.Equal(t, "backups/2025-10-29T15-00-00-123Z/config.csv", key)
	assert.NotContains(t, strings.TrimPrefix(key, "backups/"), ":")
}

func TestUploadWritesMetadataTagsAndLocalCopy(t *testing.T) {
	remote := objstore.NewMemoryStore("lab-backups")
	localDir := filepath.Join(t.TempDir(), "backups")
	metrics := telemetry.NewMetrics()
	c, path := setupCoordinator(t, remote, WithLocalDir(localDir), WithMetrics(metrics))

	res, err := c.Upload(context.Background(), path, map[string]string{"backup_type": "manual", "checksum": "forged"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "backups/2025-10-29T15-00-00-123Z/config.csv", res.RemoteKey)
	assert.Equal(t, "lab-backups", res.Bucket)
	assert.Equal(t, int64(len(table)), res.Size)
	assert.Equal(t, ComputeChecksum([]byte(table)), res.Checksum)
	assert.Equal(t, "mem://lab-backups/"+res.RemoteKey, res.URL)

	info, err := remote.Head(context.Background(), res.RemoteKey)
	require.NoError(t, err)
	assert.Equal(t, res.Checksum, info.Metadata["checksum"])
	assert.Equal(t, Source, info.Metadata["source"])
	assert.Equal(t, "2025-10-29T15:00:00.123Z", info.Metadata["timestamp"])
	assert.Equal(t, "manual", info.Metadata["backup_type"])

	opts, ok := remote.Options(res.RemoteKey)
	require.True(t, ok)
	assert.True(t, opts.Encrypt)
	assert.Equal(t, "text/csv", opts.ContentType)
	assert.Equal(t, "Environment=Production&Type=ConfigBackup&AutomatedBackup=true", objstore.EncodeTags(opts.Tags))

	assert.Equal(t, filepath.Join(localDir, "config-2025-10-29-150000.csv"), res.LocalCopy)
	copied, err := os.ReadFile(res.LocalCopy)
	require.NoError(t, err)
	assert.Equal(t, table, string(copied))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BackupUploads.WithLabelValues(telemetry.ResultSuccess)))
}

func TestUploadLocalCopyFailureKeepsUpload(t *testing.T) {
	remote := objstore.NewMemoryStore("lab-backups")
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	c, path := setupCoordinator(t, remote, WithLocalDir(blocker))

	res, err := c.Upload(context.Background(), path, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.LocalCopy)
	assert.NotEmpty(t, res.LocalCopyError)

	_, err = remote.Head(context.Background(), res.RemoteKey)
	assert.NoError(t, err)
}

func TestUploadUnconfigured(t *testing.T) {
	c, path := setupCoordinator(t, nil)

	res, err := c.Upload(context.Background(), path, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfigurationMissing)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestUploadMissingFile(t *testing.T) {
	c, _ := setupCoordinator(t, objstore.NewMemoryStore("b"))

	res, err := c.Upload(context.Background(), "/nonexistent/config.csv", nil)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Contains(t, res.Error, "File not found")
}

func TestUploadTransportFailure(t *testing.T) {
	remote := objstore.NewMemoryStore("b")
	remote.PutErr = errors.New("connection reset")
	c, path := setupCoordinator(t, remote)

	res, err := c.Upload(context.Background(), path, nil)
	assert.ErrorIs(t, err, types.ErrTransferFailed)
	assert.False(t, res.Success)
}

func TestListNewestFirst(t *testing.T) {
	remote := objstore.NewMemoryStore("b")
	base := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * 24 * time.Hour)
		remote.PutObject(RemoteKey(ts, "config.csv"), []byte("x"), nil, ts)
	}
	remote.PutObject("other/config.csv", []byte("x"), nil, base.Add(100*time.Hour))
	c, _ := setupCoordinator(t, remote)

	entries, err := c.List(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, RemoteKey(base.Add(4*24*time.Hour), "config.csv"), entries[0].RemoteKey)
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i-1].LastModified.After(entries[i].LastModified))
	}
}

func TestListUnconfiguredIsEmpty(t *testing.T) {
	c, _ := setupCoordinator(t, nil)
	entries, err := c.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadCreatesParentDirs(t *testing.T) {
	remote := objstore.NewMemoryStore("b")
	remote.PutObject("backups/k/config.csv", []byte(table), nil, fixedNow)
	c, _ := setupCoordinator(t, remote)

	dest := filepath.Join(t.TempDir(), "a", "b", "restored.csv")
	res, err := c.Download(context.Background(), "backups/k/config.csv", dest)
	require.NoError(t, err)
	assert.True(t, res.Success)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, table, string(data))
}

func TestDownloadEmptyBodyIsError(t *testing.T) {
	remote := objstore.NewMemoryStore("b")
	remote.PutObject("backups/k/config.csv", nil, nil, fixedNow)
	c, _ := setupCoordinator(t, remote)

	dest := filepath.Join(t.TempDir(), "restored.csv")
	res, err := c.Download(context.Background(), "backups/k/config.csv", dest)
	assert.Error(t, err)
	assert.False(t, res.Success)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadMissingObject(t *testing.T) {
	c, _ := setupCoordinator(t, objstore.NewMemoryStore("b"))
	_, err := c.Download(context.Background(), "backups/none/config.csv", filepath.Join(t.TempDir(), "x.csv"))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestUploadThenVerifyIsValid(t *testing.T) {
	remote := objstore.NewMemoryStore("b")
	c, path := setupCoordinator(t, remote)

	up, err := c.Upload(context.Background(), path, nil)
	require.NoError(t, err)

	res, err := c.VerifyIntegrity(context.Background(), path, up.RemoteKey)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, up.Checksum, res.LocalChecksum)
	assert.Equal(t, up.Checksum, res.RemoteChecksum)
}

func TestVerifyDetectsModifiedFile(t *testing.T) {
	remote := objstore.NewMemoryStore("b")
	c, path := setupCoordinator(t, remote)

	up, err := c.Upload(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(table+"extra,row,system,2025-10-19T10:00:00.000Z,1\n"), 0o644))

	res, err := c.VerifyIntegrity(context.Background(), path, up.RemoteKey)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.NotEqual(t, res.LocalChecksum, res.RemoteChecksum)
}

func TestVerifyMissingChecksumMetadata(t *testing.T) {
	remote := objstore.NewMemoryStore("b")
	remote.PutObject("backups/k/config.csv", []byte(table), map[string]string{"source": Source}, fixedNow)
	c, path := setupCoordinator(t, remote)

	res, err := c.VerifyIntegrity(context.Background(), path, "backups/k/config.csv")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, MissingChecksum, res.Error)
	assert.NotEmpty(t, res.LocalChecksum)
}

func TestNightlyBackupTagsSchedule(t *testing.T) {
	remote := objstore.NewMemoryStore("b")
	c, path := setupCoordinator(t, remote)

	res, err := c.NightlyBackup(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "nightly", res.Metadata["backup_type"])
	assert.Equal(t, "automated", res.Metadata["backup_schedule"])
}

func TestUploadEmptyFileRejected(t *testing.T) {
	remote := objstore.NewMemoryStore("b")
	metrics := telemetry.NewMetrics()
	c, path := setupCoordinator(t, remote, WithMetrics(metrics))
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	res, err := c.Upload(context.Background(), path, nil)
	assert.ErrorIs(t, err, types.ErrValidationFailed)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "empty config table")

	objects, err := remote.List(context.Background(), KeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, objects)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BackupUploads.WithLabelValues("failure")))
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	remote := objstore.NewMemoryStore("b")
	c, path := setupCoordinator(t, remote)

	up, err := c.Upload(context.Background(), path, nil)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "restored", "config.csv")
	_, err = c.Download(context.Background(), up.RemoteKey, dest)
	require.NoError(t, err)

	original, err := os.ReadFile(path)
	require.NoError(t, err)
	downloaded, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, original, downloaded)

	res, err := c.VerifyIntegrity(context.Background(), dest, up.RemoteKey)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestListOrderIsStable(t *testing.T) {
	remote := objstore.NewMemoryStore("b")
	same := time.Date(2025, 10, 1, 2, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		key := RemoteKey(same.Add(time.Duration(i)*time.Millisecond), "config.csv")
		remote.PutObject(key, []byte("x"), nil, same)
	}
	c, _ := setupCoordinator(t, remote)

	first, err := c.List(context.Background(), 10)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.List(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	require.Len(t, first, 6)
	assert.True(t, first[0].RemoteKey > first[5].RemoteKey)
}
