package rest

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/gin-gonic/gin"
)

// DefaultActor is recorded for API writes that do not name an updater.
const DefaultActor = "api"

type updateRequest struct {
	Key       string  `json:"key"`
	Value     *string `json:"value"`
	UpdatedBy string  `json:"updated_by"`
}

type batchRequest struct {
	Updates []struct {
		Key   string  `json:"key"`
		Value *string `json:"value"`
	} `json:"updates"`
	UpdatedBy string `json:"updated_by"`
}

type remoteKeyRequest struct {
	RemoteKey string `json:"remote_key"`
	LocalPath string `json:"local_path"`
}

func actorOr(name string) string {
	if name == "" {
		return DefaultActor
	}
	return name
}

func (s *Server) getConfig(c *gin.Context) {
	if key := c.Query("key"); key != "" {
		rec, ok := s.config.Record(key)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Configuration key not found", "key": key})
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": key, "value": rec.Value, "record": rec})
		return
	}
	if prefix := c.Query("prefix"); prefix != "" {
		configs := s.config.ByPrefix(prefix)
		c.JSON(http.StatusOK, gin.H{"prefix": prefix, "configs": configs, "count": len(configs)})
		return
	}
	if pattern := c.Query("search"); pattern != "" {
		configs, err := s.config.Search(pattern)
		if err != nil {
			s.fail(c, err, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"search": pattern, "configs": configs, "count": len(configs)})
		return
	}
	if c.Query("all") == "true" {
		configs := s.config.All()
		c.JSON(http.StatusOK, gin.H{"configs": configs, "count": len(configs)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "Missing query parameter. Use: key, prefix, search, or all=true"})
}

func (s *Server) putConfig(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Key == "" || req.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: key and value"})
		return
	}
	actor := actorOr(req.UpdatedBy)

	result, err := s.config.Update(c.Request.Context(), req.Key, *req.Value, actor)
	s.options.Metrics.RecordConfigUpdate(err == nil)
	if err != nil {
		s.fail(c, err, gin.H{"key": req.Key})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Configuration updated successfully",
		"key":        req.Key,
		"value":      *req.Value,
		"updated_by": actor,
		"version":    result.Record.Version,
	})
}

func (s *Server) batchConfig(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or empty updates array"})
		return
	}
	updates := make([]types.KeyValue, 0, len(req.Updates))
	for _, u := range req.Updates {
		if u.Key == "" || u.Value == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "All updates must have key and value fields"})
			return
		}
		updates = append(updates, types.KeyValue{Key: u.Key, Value: *u.Value})
	}
	actor := actorOr(req.UpdatedBy)

	result, err := s.config.BatchUpdate(c.Request.Context(), updates, actor)
	s.options.Metrics.RecordConfigUpdate(err == nil)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Configurations updated successfully",
		"count":      result.Count,
		"updated_by": actor,
	})
}

func (s *Server) deleteConfig(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required query parameter: key"})
		return
	}
	actor := actorOr(c.Query("updated_by"))
	if err := s.config.Delete(c.Request.Context(), key, actor); err != nil {
		s.fail(c, err, gin.H{"key": key})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Configuration deleted successfully", "key": key, "deleted_by": actor})
}

func (s *Server) backupsUnavailable(c *gin.Context) bool {
	if s.options.Backups == nil || !s.options.Backups.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Backup destination not configured"})
		return true
	}
	return false
}

func (s *Server) listBackups(c *gin.Context) {
	if s.backupsUnavailable(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	entries, err := s.options.Backups.List(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": entries, "count": len(entries)})
}

func (s *Server) createBackup(c *gin.Context) {
	if s.backupsUnavailable(c) {
		return
	}
	result, err := s.options.Backups.Upload(c.Request.Context(), s.config.Location(), map[string]string{
		"backup_type": "manual",
	})
	if err != nil {
		s.fail(c, err, gin.H{"result": result})
		return
	}
	s.logger.WithContext(c.Request.Context()).Info("Manual backup created", log.Str("key", result.RemoteKey))
	c.JSON(http.StatusCreated, result)
}

func (s *Server) restoreBackup(c *gin.Context) {
	if s.options.Restorer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Restore not configured"})
		return
	}
	var req remoteKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RemoteKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required field: remote_key"})
		return
	}
	result, err := s.options.Restorer.Restore(c.Request.Context(), req.RemoteKey)
	if err != nil {
		c.JSON(statusFor(err), result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) verifyBackup(c *gin.Context) {
	if s.backupsUnavailable(c) {
		return
	}
	var req remoteKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RemoteKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required field: remote_key"})
		return
	}
	localPath := s.config.Location()
	if req.LocalPath != "" {
		p, err := s.verifiablePath(req.LocalPath)
		if err != nil {
			s.fail(c, err, nil)
			return
		}
		localPath = p
	}
	result, err := s.options.Backups.VerifyIntegrity(c.Request.Context(), localPath, req.RemoteKey)
	if err != nil {
		s.fail(c, err, gin.H{"result": result})
		return
	}
	c.JSON(http.StatusOK, result)
}

// verifiablePath accepts the live store file or a file inside the local
// backup directory.
func (s *Server) verifiablePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", types.WrapError(types.KindValidationFailed, "verify", err, "invalid local_path")
	}
	if storePath, err := filepath.Abs(s.config.Location()); err == nil && abs == storePath {
		return abs, nil
	}
	if dir := s.options.Backups.LocalDir(); dir != "" {
		if root, err := filepath.Abs(dir); err == nil {
			if rel, err := filepath.Rel(root, abs); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
				return abs, nil
			}
		}
	}
	return "", types.NewError(types.KindPermissionDenied, "verify",
		"local_path must be the config store or a file in the local backup directory")
}

func (s *Server) measureImpact(c *gin.Context) {
	if s.options.Impact == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "GA4 not configured or insufficient data to measure impact"})
		return
	}
	before, errBefore := strconv.Atoi(c.DefaultQuery("days_before", "7"))
	after, errAfter := strconv.Atoi(c.DefaultQuery("days_after", "7"))
	if errBefore != nil || errAfter != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days_before and days_after must be integers"})
		return
	}

	report, err := s.options.Impact.MeasureLatest(c.Request.Context(), c.Query("key"), before, after)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	if report == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "GA4 not configured or insufficient data to measure impact"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"configKey":  report.ConfigKey,
		"changeDate": report.ChangeTimestamp,
		"impact":     report,
	})
}

func (s *Server) auditDigest(c *gin.Context) {
	if s.options.Digests == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Audit digest not configured"})
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	digest, err := s.options.Digests.Digest(c.Request.Context(), days)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(digest.Markdown))
		return
	}
	c.JSON(http.StatusOK, digest)
}
