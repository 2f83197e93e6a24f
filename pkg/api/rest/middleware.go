package rest

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// AdminTokenHeader is accepted as an alternative to a bearer token.
const AdminTokenHeader = "X-Admin-Token"

// RequestIDHeader carries the request ID echoed back to clients.
const RequestIDHeader = "X-Request-ID"

// Logger returns a middleware that tags each request with an ID and logs it.
func Logger(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		ctx := log.ContextWith(c.Request.Context(), log.RequestIDKey, id)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
		logger.WithContext(ctx).Info("HTTP Request",
			log.Str("method", c.Request.Method),
			log.Str("path", c.Request.URL.Path),
			log.Int("status", c.Writer.Status()),
			log.Duration("duration", time.Since(start)),
			log.Str("remote_addr", c.ClientIP()),
			log.Str("user_agent", c.Request.UserAgent()),
		)
	}
}

// extractToken reads the bearer token or the admin token header.
func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
		return ""
	}
	return strings.TrimSpace(c.GetHeader(AdminTokenHeader))
}

// APIKey returns a middleware that requires one of apiKeys. With no keys
// configured every request passes.
func APIKey(apiKeys []string, logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(apiKeys) == 0 {
			c.Next()
			return
		}

		token := extractToken(c)
		if token == "" {
			logger.Warn("Missing admin token", log.Str("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":  "Unauthorized",
				"reason": "Missing admin token",
				"hint":   "Provide a valid admin token via Authorization: Bearer <token> or X-Admin-Token header",
			})
			return
		}

		for _, key := range apiKeys {
			if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
				c.Next()
				return
			}
		}
		logger.Warn("Invalid admin token", log.Str("path", c.Request.URL.Path), log.Str("remote_addr", c.ClientIP()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":  "Unauthorized",
			"reason": "Invalid admin token",
		})
	}
}

// CORS returns a middleware that adds CORS headers to the response.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+AdminTokenHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Recovery returns a middleware that recovers from panics.
func Recovery(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered", log.Any("error", err), log.Str("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

// Timeout returns a middleware that adds a timeout to the request context.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RateLimit rejects requests beyond the limiter's budget with 429.
func RateLimit(limiter *rate.Limiter, logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.Allow() {
			c.Next()
			return
		}
		logger.Warn("Rate limit exceeded", log.Str("path", c.Request.URL.Path), log.Str("remote_addr", c.ClientIP()))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
	}
}
