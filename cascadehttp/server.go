package cascadehttp

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// ServerConfig mirrors http/server.go's ServerConfig, trimmed to what the
// debug surface needs (no body limit or CORS: this is a localhost-only
// read path, not a public API).
type ServerConfig struct {
	Port            int
	Debug           bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       float64
}

// DefaultServerConfig mirrors http/server.go's DefaultServerConfig.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            7777,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// NewServer builds an echo.Echo exposing tracker's activity read-only at
// GET /stats and GET /operations, using the same middleware stack shape
// as http/server.go's NewEchoServer (logger, recover, request id, optional
// rate limiting) minus the parts (CORS, body limit) that don't apply to a
// read-only debug surface.
func NewServer(tracker *Tracker, config ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = config.Debug

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if config.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(
			rate.Limit(config.RateLimit),
		)))
	}

	e.GET("/stats", func(c echo.Context) error {
		return c.JSON(http.StatusOK, tracker.Stats())
	})
	e.GET("/operations", func(c echo.Context) error {
		return c.JSON(http.StatusOK, tracker.List())
	})

	return e
}
