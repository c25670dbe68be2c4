package paas

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequireBearerMiddleware guards /api/ routes. Token validation happens at
// the gateway; this only rejects requests that bypassed it.
func RequireBearerMiddleware() gin.HandlerFunc {
	disabled := envTrue("PAWPAD_AUTH_DISABLED")
	requireGatewayHeader := envTrue("PAWPAD_REQUIRE_GATEWAY")

	return func(c *gin.Context) {
		if disabled || !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Next()
			return
		}
		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if requireGatewayHeader && strings.TrimSpace(c.GetHeader("X-Easyweb3-Project")) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-Easyweb3-Project"})
			return
		}
		c.Next()
	}
}

// WriteAuditMiddleware records every non-GET /api/ request as an ops log.
func WriteAuditMiddleware(p *Client, logger *zap.Logger) gin.HandlerFunc {
	if p == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		method := strings.ToUpper(c.Request.Method)
		if !strings.HasPrefix(path, "/api/") {
			return
		}
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			return
		}

		status := c.Writer.Status()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := p.CreateLog(ctx, CreateLogRequest{
			Action: "pawpad_http_write",
			Level:  levelFromStatus(status),
			Details: map[string]any{
				"method":   method,
				"path":     path,
				"status":   status,
				"duration": time.Since(start).String(),
				"project":  strings.TrimSpace(c.GetHeader("X-Easyweb3-Project")),
			},
		})
		if err != nil && logger != nil {
			logger.Debug("paas write audit failed", zap.Error(err))
		}
	}
}

func levelFromStatus(status int) string {
	if status >= 500 {
		return "error"
	}
	if status >= 400 {
		return "warn"
	}
	return "info"
}

func envTrue(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	return v == "1" || strings.EqualFold(v, "true")
}
