package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/internal/app"
	"github.com/HenzeLabs/lab-ess-headless-sub002/internal/config"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/api/rest"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/telemetry"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/version"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/worker/scheduler"
	"github.com/spf13/viper"
)

var (
	configFile    = flag.String("config", "", "Configuration file path")
	httpAddr      = flag.String("addr", "", "HTTP API address (default :8742)")
	dataDir       = flag.String("data-dir", "", "Data directory for the store, history and local backups")
	storePath     = flag.String("store", "", "Config store CSV file (default <data-dir>/config.csv)")
	logLevel      = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	debugLogLevel = flag.Bool("debug", false, "Enable debug mode (shorthand for --log-level=debug)")
	logFormat     = flag.String("log-format", "", "Log format (text, json)")
	apiKeys       = flag.String("api-keys", "", "Comma-separated admin tokens (empty to disable auth)")
	noScheduler   = flag.Bool("no-scheduler", false, "Do not run the nightly backup and weekly digest jobs")
	showHelp      = flag.Bool("help", false, "Show help")
	showVer       = flag.Bool("version", false, "Show version")
)

// jobTimeout bounds a single scheduled run.
const jobTimeout = 30 * time.Minute

// applyFlags copies explicitly set flags over file and environment values.
// Command-line flags > env vars > config file > defaults.
func applyFlags(v *viper.Viper, set map[string]bool) {
	if set["addr"] {
		v.Set("api.address", *httpAddr)
	}
	if set["data-dir"] {
		v.Set("data_dir", *dataDir)
	}
	if set["store"] {
		v.Set("store.path", *storePath)
	}
	if set["log-level"] {
		v.Set("log.level", *logLevel)
	}
	if set["debug"] && *debugLogLevel {
		v.Set("log.level", "debug")
	}
	if set["log-format"] {
		v.Set("log.format", *logFormat)
	}
	if set["api-keys"] {
		v.Set("api.api_keys", splitCSV(*apiKeys))
	}
}

// loadConfig resolves the daemon configuration from all sources.
func loadConfig() (*config.Config, error) {
	v := config.NewViper(*configFile)
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); *configFile != "" || !notFound {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	applyFlags(v, set)
	return config.FromViper(v)
}

func main() {
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}
	if *showVer {
		fmt.Println(version.Info())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.ApplyConfig(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log configuration: %v\n", err)
		os.Exit(1)
	}
	log.SetDefaultLogger(logger)
	logger.Info("Starting labconf daemon", log.Str("version", version.Version), log.Str("store", cfg.Store.Path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received signal", log.Str("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, logger, !*noScheduler); err != nil {
		logger.Error("Daemon failed", log.Err(err))
		os.Exit(1)
	}
	logger.Info("labconf daemon stopped")
}

// run serves the API and the scheduled jobs until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger log.Logger, withScheduler bool) error {
	metrics := telemetry.NewMetrics()
	a, err := app.New(ctx, cfg, logger, app.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer a.Close()

	if len(cfg.API.APIKeys) > 0 {
		logger.Info("Admin authentication enabled", log.Int("numKeys", len(cfg.API.APIKeys)))
	} else {
		logger.Warn("Admin authentication disabled")
	}
	if !a.Backups.Configured() {
		logger.Warn("No backup destination configured, backup endpoints are disabled")
	}

	server, err := rest.New(a.Store,
		rest.WithAPIKeys(cfg.API.APIKeys),
		rest.WithTimeout(cfg.API.Timeout),
		rest.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
		rest.WithLogger(logger),
		rest.WithMetrics(metrics),
		rest.WithBackups(a.Backups),
		rest.WithRestorer(a.Restorer),
		rest.WithImpact(a.Impact),
		rest.WithDigests(a.Reporter),
	)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	if withScheduler {
		sched, err := newScheduler(cfg, a, logger, metrics)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	return server.Run(ctx, cfg.API.Addr)
}

// newScheduler registers the configured jobs.
func newScheduler(cfg *config.Config, a *app.App, logger log.Logger, metrics *telemetry.Metrics) (*scheduler.Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	sched := scheduler.NewScheduler(
		scheduler.WithLogger(logger),
		scheduler.WithLocation(loc),
		scheduler.WithJobTimeout(jobTimeout),
		scheduler.WithMetrics(metrics),
	)
	if cfg.Schedule.Backup != "" && a.Backups.Configured() {
		if err := sched.Add(scheduler.BackupJob(cfg.Schedule.Backup, a.Backups, cfg.Store.Path)); err != nil {
			return nil, err
		}
	}
	if cfg.Schedule.Digest != "" {
		job := scheduler.DigestJob(cfg.Schedule.Digest, a.Reporter, cfg.Schedule.DigestDays, cfg.Schedule.DigestOutput)
		if err := sched.Add(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// splitCSV splits a comma-separated list, dropping empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
