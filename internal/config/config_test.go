package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.resolvePaths()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, filepath.Join(cfg.DataDir, "config.csv"), cfg.Store.Path)
	assert.Equal(t, filepath.Join(cfg.DataDir, "backups"), cfg.Backup.LocalDir)
	assert.Equal(t, "0 2 * * *", cfg.Schedule.Backup)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.False(t, cfg.Backup.Remote.Configured())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labconf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: `+dir+`
store:
  path: /srv/storefront/config.csv
backup:
  remote:
    provider: s3
    s3:
      bucket: lab-essentials-backups
      region: us-east-1
analytics:
  provider: influx
  influx:
    url: http://localhost:8086
api:
  address: 127.0.0.1:9000
  api_keys: [one, two]
  timeout: 5s
schedule:
  backup: "30 3 * * *"
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/storefront/config.csv", cfg.Store.Path)
	assert.Equal(t, filepath.Join(dir, "snapshots"), cfg.Backup.SnapshotDir)
	assert.True(t, cfg.Backup.Remote.Configured())
	assert.Equal(t, "lab-essentials-backups", cfg.Backup.Remote.S3.Bucket)
	assert.Equal(t, "http://localhost:8086", cfg.Analytics.Influx.URL)
	assert.Equal(t, []string{"one", "two"}, cfg.API.APIKeys)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, "30 3 * * *", cfg.Schedule.Backup)
	assert.Equal(t, "0 9 * * 1", cfg.Schedule.Digest)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 64*1024, cfg.Store.Limits.MaxValueBytes)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LABCONF_DATA_DIR", dir)
	t.Setenv("LABCONF_API_ADDRESS", ":9100")
	t.Setenv("LABCONF_BACKUP_REMOTE_PROVIDER", "local")
	t.Setenv("LABCONF_BACKUP_REMOTE_LOCAL_DIR", filepath.Join(dir, "remote"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.API.Addr)
	assert.Equal(t, filepath.Join(dir, "config.csv"), cfg.Store.Path)
	assert.True(t, cfg.Backup.Remote.Configured())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown remote", func(c *Config) { c.Backup.Remote.Provider = "ftp" }},
		{"unknown analytics", func(c *Config) { c.Analytics.Provider = "matomo" }},
		{"bad cron", func(c *Config) { c.Schedule.Backup = "every night" }},
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"zero limits", func(c *Config) { c.Store.Limits.MaxValueBytes = 0 }},
		{"negative rate", func(c *Config) { c.API.RateLimit = -1 }},
		{"no address", func(c *Config) { c.API.Addr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.DataDir = t.TempDir()
			cfg.resolvePaths()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDisabledSchedulesAreValid(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.resolvePaths()
	cfg.Schedule.Backup = ""
	cfg.Schedule.Digest = ""
	assert.NoError(t, cfg.Validate())
}
