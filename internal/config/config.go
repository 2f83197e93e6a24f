package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/analytics"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/objstore"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/store"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LABCONF_API_ADDRESS.
const EnvPrefix = "LABCONF"

// DefaultHTTPPort is the default port for the admin API.
var DefaultHTTPPort = 8742

type Store struct {
	// Path is the CSV file holding the live configuration.
	Path   string       `yaml:"path" mapstructure:"path"`
	Limits store.Limits `yaml:"limits" mapstructure:"limits"`
}

type Backup struct {
	// LocalDir keeps a redundant copy of every uploaded backup.
	LocalDir    string          `yaml:"local_dir" mapstructure:"local_dir"`
	SnapshotDir string          `yaml:"snapshot_dir" mapstructure:"snapshot_dir"`
	StagingDir  string          `yaml:"staging_dir" mapstructure:"staging_dir"`
	Remote      objstore.Config `yaml:"remote" mapstructure:"remote"`
}

type History struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

type API struct {
	Addr string `yaml:"address" mapstructure:"address"`
	// APIKeys are the admin tokens accepted on write endpoints. Empty disables auth.
	APIKeys   []string      `yaml:"api_keys" mapstructure:"api_keys"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int           `yaml:"rate_burst" mapstructure:"rate_burst"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type Schedule struct {
	// Backup and Digest are 5-field cron expressions. Empty disables the job.
	Backup       string `yaml:"backup" mapstructure:"backup"`
	Digest       string `yaml:"digest" mapstructure:"digest"`
	DigestDays   int    `yaml:"digest_days" mapstructure:"digest_days"`
	DigestOutput string `yaml:"digest_output" mapstructure:"digest_output"`
	Timezone     string `yaml:"timezone" mapstructure:"timezone"`
}

type Config struct {
	DataDir   string           `yaml:"data_dir" mapstructure:"data_dir"`
	Store     Store            `yaml:"store" mapstructure:"store"`
	Backup    Backup           `yaml:"backup" mapstructure:"backup"`
	Analytics analytics.Config `yaml:"analytics" mapstructure:"analytics"`
	History   History          `yaml:"history" mapstructure:"history"`
	API       API              `yaml:"api" mapstructure:"api"`
	Schedule  Schedule         `yaml:"schedule" mapstructure:"schedule"`
	Log       log.Config       `yaml:"log" mapstructure:"log"`
}

func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Store:   Store{Limits: store.DefaultLimits()},
		Analytics: analytics.Config{
			Provider: analytics.ProviderGA4,
			GA4:      analytics.GA4Config{TopPagesLimit: 10},
		},
		History: History{Enabled: true},
		API: API{
			Addr:      fmt.Sprintf(":%d", DefaultHTTPPort),
			RateLimit: 20,
			RateBurst: 40,
			Timeout:   30 * time.Second,
		},
		Schedule: Schedule{
			Backup:     "0 2 * * *",
			Digest:     "0 9 * * 1",
			DigestDays: 7,
			Timezone:   "UTC",
		},
		Log: *log.DefaultConfig(),
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "labconf")
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return "./data"
	}
	return filepath.Join(home, ".labconf")
}

// resolvePaths fills every unset path from DataDir.
func (c *Config) resolvePaths() {
	def := func(p *string, elem ...string) {
		if *p == "" {
			*p = filepath.Join(append([]string{c.DataDir}, elem...)...)
		}
	}
	def(&c.Store.Path, "config.csv")
	def(&c.Backup.LocalDir, "backups")
	def(&c.Backup.SnapshotDir, "snapshots")
	def(&c.Backup.StagingDir, "staging")
	def(&c.History.Dir, "history")
	def(&c.Schedule.DigestOutput, "reports", "WEEKLY_AUDIT_SUMMARY.md")
}

// envBindings are the settings most often set from the environment. Any
// other key can still be overridden as LABCONF_<SECTION>_<KEY>.
var envBindings = []string{
	"data_dir",
	"store.path",
	"backup.local_dir",
	"backup.remote.provider",
	"backup.remote.local_dir",
	"backup.remote.s3.bucket",
	"backup.remote.s3.region",
	"backup.remote.s3.endpoint",
	"backup.remote.s3.access_key_id",
	"backup.remote.s3.secret_access_key",
	"backup.remote.gcs.bucket",
	"backup.remote.gcs.credentials_file",
	"analytics.provider",
	"analytics.ga4.property_id",
	"analytics.ga4.credentials_file",
	"analytics.ga4.credentials_json",
	"analytics.influx.url",
	"analytics.influx.token",
	"analytics.influx.org",
	"analytics.influx.bucket",
	"history.enabled",
	"history.dir",
	"api.address",
	"api.api_keys",
	"schedule.backup",
	"schedule.digest",
	"log.level",
	"log.format",
}

// NewViper returns a viper instance that reads path (or searches the
// standard locations when path is empty) and LABCONF_* environment variables.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("labconf")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.labconf")
		v.AddConfigPath("/etc/labconf/")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envBindings {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads configuration from path and the environment over Default().
// A missing file is only an error when path was given explicitly.
func Load(path string) (*Config, error) {
	v := NewViper(path)
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); path != "" || !notFound {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes v over Default(), resolves paths and validates.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.Limits.MaxValueBytes <= 0 || c.Store.Limits.MaxKeyNameLength <= 0 {
		return fmt.Errorf("store.limits must be positive")
	}
	switch c.Backup.Remote.Provider {
	case "", objstore.ProviderS3, objstore.ProviderGCS, objstore.ProviderLocal:
	default:
		return fmt.Errorf("unknown backup.remote.provider %q", c.Backup.Remote.Provider)
	}
	switch c.Analytics.Provider {
	case "", analytics.ProviderGA4, analytics.ProviderInflux:
	default:
		return fmt.Errorf("unknown analytics.provider %q", c.Analytics.Provider)
	}
	if c.API.Addr == "" {
		return fmt.Errorf("api.address is required")
	}
	if c.API.RateLimit < 0 || c.API.RateBurst < 0 {
		return fmt.Errorf("api rate settings must not be negative")
	}
	for name, spec := range map[string]string{"schedule.backup": c.Schedule.Backup, "schedule.digest": c.Schedule.Digest} {
		if spec == "" {
			continue
		}
		if _, err := cronParser.Parse(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, spec, err)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Location returns the time zone schedules run in.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule.timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}
