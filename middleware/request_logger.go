package middleware

import (
	"log/slog"
	"time"

	"github.com/Ampplex/InfluencerFlow-sub001/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RequestLogger logs each request once it has been served. On routes with
// an :id parameter the contract id is put in the request context first, so
// service log lines for the request carry it too.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		if id := c.Param("id"); id != "" {
			c.Request = c.Request.WithContext(logger.WithContractID(c.Request.Context(), id))
		}

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"bytes", c.Writer.Size(),
		}
		if query != "" {
			attrs = append(attrs, "query", query)
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.WithContext(c.Request.Context()).Log(c.Request.Context(), level, "request completed", attrs...)
	}
}
