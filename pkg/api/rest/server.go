// Package rest serves the admin and reporting HTTP API.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/audit"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/impact"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/telemetry"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ConfigService is the config store as used by the API.
type ConfigService interface {
	Location() string
	Record(key string) (types.ConfigRecord, bool)
	All() []types.ConfigRecord
	ByPrefix(prefix string) []types.ConfigRecord
	Search(pattern string) ([]types.ConfigRecord, error)
	Update(ctx context.Context, key, value, actor string) (*types.UpdateResult, error)
	BatchUpdate(ctx context.Context, updates []types.KeyValue, actor string) (*types.BatchResult, error)
	Delete(ctx context.Context, key, actor string) error
}

// BackupService creates, lists and verifies remote backups.
type BackupService interface {
	Configured() bool
	Upload(ctx context.Context, filePath string, metadata map[string]string) (*types.UploadResult, error)
	List(ctx context.Context, maxResults int) ([]types.BackupEntry, error)
	VerifyIntegrity(ctx context.Context, localPath, remoteKey string) (*types.VerifyResult, error)
	// LocalDir is the directory holding local backup copies.
	LocalDir() string
}

// RestoreService restores the live store from a backup.
type RestoreService interface {
	Restore(ctx context.Context, remoteKey string) (*types.RestoreResult, error)
}

// ImpactService measures change impact.
type ImpactService interface {
	MeasureLatest(ctx context.Context, key string, daysBefore, daysAfter int) (*impact.Report, error)
}

// DigestService builds audit digests.
type DigestService interface {
	Digest(ctx context.Context, days int) (*audit.Digest, error)
}

// Options configures the server.
type Options struct {
	APIKeys   []string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
	Logger    log.Logger
	Metrics   *telemetry.Metrics
	Backups   BackupService
	Restorer  RestoreService
	Impact    ImpactService
	Digests   DigestService
}

// Option is a function that configures the server.
type Option func(*Options)

// WithAPIKeys sets the admin tokens accepted on write endpoints.
func WithAPIKeys(keys []string) Option {
	return func(o *Options) { o.APIKeys = keys }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithRateLimit sets the request rate budget. A zero rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *Options) {
		o.RateLimit = perSecond
		o.RateBurst = burst
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics exposes metrics on /metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithBackups enables the backup endpoints.
func WithBackups(b BackupService) Option {
	return func(o *Options) { o.Backups = b }
}

// WithRestorer enables the restore endpoint.
func WithRestorer(r RestoreService) Option {
	return func(o *Options) { o.Restorer = r }
}

// WithImpact enables the impact endpoint.
func WithImpact(i ImpactService) Option {
	return func(o *Options) { o.Impact = i }
}

// WithDigests enables the audit digest endpoint.
func WithDigests(d DigestService) Option {
	return func(o *Options) { o.Digests = d }
}

// DefaultOptions returns the default server options.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   30 * time.Second,
		RateLimit: 20,
		RateBurst: 40,
	}
}

// Server is the HTTP API server.
type Server struct {
	options *Options
	config  ConfigService
	router  *gin.Engine
	logger  log.Logger
}

// New creates a server over the config store.
func New(config ConfigService, opts ...Option) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("config store is required")
	}
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	logger := options.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	s := &Server{
		options: options,
		config:  config,
		logger:  logger.WithComponent("api-server"),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(Recovery(s.logger), Logger(s.logger), CORS(), Timeout(s.options.Timeout))
	if s.options.RateLimit > 0 {
		r.Use(RateLimit(rate.NewLimiter(rate.Limit(s.options.RateLimit), s.options.RateBurst), s.logger))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.options.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.options.Metrics.Handler()))
	}

	api := r.Group("/api")
	admin := APIKey(s.options.APIKeys, s.logger)

	api.GET("/config", s.getConfig)
	api.PUT("/config", admin, s.putConfig)
	api.POST("/config/batch", admin, s.batchConfig)
	api.DELETE("/config", admin, s.deleteConfig)

	api.GET("/backups", s.listBackups)
	api.POST("/backups", admin, s.createBackup)
	api.POST("/backups/restore", admin, s.restoreBackup)
	api.POST("/backups/verify", admin, s.verifyBackup)

	api.GET("/metrics/impact", s.measureImpact)
	api.GET("/audit/digest", admin, s.auditDigest)
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", log.Str("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown failed: %w", err)
	}
	return nil
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch types.KindOf(err) {
	case types.KindValidationFailed:
		return http.StatusBadRequest
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindPermissionDenied:
		return http.StatusForbidden
	case types.KindConfigurationMissing:
		return http.StatusServiceUnavailable
	case types.KindIntegrityMismatch:
		return http.StatusConflict
	case types.KindTransferFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorMessage(err error) string {
	var te *types.Error
	if errors.As(err, &te) {
		return te.Detail()
	}
	return err.Error()
}

func (s *Server) fail(c *gin.Context, err error, extra gin.H) {
	body := gin.H{"error": errorMessage(err), "kind": string(types.KindOf(err))}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(statusFor(err), body)
}
