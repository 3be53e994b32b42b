package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs every HTTP request with method, path, status, the
// authenticated user and duration.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		duration := time.Since(start).Milliseconds()
		status := c.Writer.Status()
		email := Email(c) // empty if pre-auth

		switch {
		case status >= 500:
			slog.Error("HTTP error",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"user", email,
				"duration_ms", duration,
				"errors", c.Errors.String(),
			)
		case status >= 400:
			slog.Warn("HTTP error",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"user", email,
				"duration_ms", duration,
			)
		default:
			slog.Info("HTTP ok",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"user", email,
				"duration_ms", duration,
			)
		}
	}
}
