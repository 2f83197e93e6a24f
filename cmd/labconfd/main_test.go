package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/HenzeLabs/lab-ess-headless-sub002/internal/app"
	"github.com/HenzeLabs/lab-ess-headless-sub002/internal/config"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/objstore"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/worker/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Equal(t, []string{"a", "b"}, splitCSV(" a, ,b ,"))
}

func TestApplyFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	v := config.NewViper(filepath.Join(dir, "absent.yaml"))
	v.Set("api.address", ":1111")

	*httpAddr = "127.0.0.1:9999"
	*dataDir = dir
	*apiKeys = "one,two"
	*debugLogLevel = true
	t.Cleanup(func() {
		*httpAddr, *dataDir, *apiKeys, *debugLogLevel = "", "", "", false
	})

	applyFlags(v, map[string]bool{"addr": true, "data-dir": true, "api-keys": true, "debug": true})
	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.API.Addr)
	assert.Equal(t, filepath.Join(dir, "config.csv"), cfg.Store.Path)
	assert.Equal(t, []string{"one", "two"}, cfg.API.APIKeys)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func testConfig(t *testing.T, remote bool) *config.Config {
	t.Helper()
	dir := t.TempDir()
	v := config.NewViper(filepath.Join(dir, "absent.yaml"))
	v.Set("data_dir", dir)
	v.Set("api.address", "127.0.0.1:0")
	if remote {
		v.Set("backup.remote.provider", objstore.ProviderLocal)
		v.Set("backup.remote.local_dir", filepath.Join(dir, "remote"))
	}
	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	return cfg
}

func TestNewSchedulerRegistersJobs(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t, true)
	a, err := app.New(ctx, cfg, log.NewTestLogger())
	require.NoError(t, err)
	defer a.Close()

	sched, err := newScheduler(cfg, a, log.NewTestLogger(), nil)
	require.NoError(t, err)
	jobs := sched.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, scheduler.NightlyBackupJob, jobs[0].Name)
	assert.Equal(t, "0 2 * * *", jobs[0].Schedule)
	assert.Equal(t, scheduler.WeeklyDigestJob, jobs[1].Name)
}

func TestNewSchedulerSkipsBackupWithoutRemote(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t, false)
	a, err := app.New(ctx, cfg, log.NewTestLogger())
	require.NoError(t, err)
	defer a.Close()

	sched, err := newScheduler(cfg, a, log.NewTestLogger(), nil)
	require.NoError(t, err)
	jobs := sched.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, scheduler.WeeklyDigestJob, jobs[0].Name)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, run(ctx, cfg, log.NewTestLogger(), true))
}
