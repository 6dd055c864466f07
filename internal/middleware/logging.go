// Package middleware provides Echo middleware for logging, metrics, rate
// limiting and request hygiene.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"edge-origin-proxy/internal/model"
)

// RequestLogger returns an Echo middleware that writes one access log record
// per request. Server errors are logged at error level.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	logger = logger.With("component", "access_log")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			level := slog.LevelInfo
			if res.Status >= 500 {
				level = slog.LevelError
			}

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			}
			if category, ok := c.Get(model.ContextKeyCategory).(string); ok {
				attrs = append(attrs, "category", category)
			}

			logger.Log(req.Context(), level, "request", attrs...)

			return err
		}
	}
}
