package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/racefetch/api/handler"
	"github.com/use-agent/racefetch/api/middleware"
	"github.com/use-agent/racefetch/cleaner"
	"github.com/use-agent/racefetch/config"
	"github.com/use-agent/racefetch/engine"
	"github.com/use-agent/racefetch/webhook"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work. pool may be
// nil when the browser is disabled.
func NewRouter(d *engine.Dispatcher, cl *cleaner.Cleaner, n *webhook.Notifier, pool handler.PoolStatter, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health is public.
	v1.GET("/health", handler.Health(d, pool, startTime))

	// Everything else needs a key and is rate limited.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/acquire", handler.Acquire(d, cl, n, cfg))
	protected.POST("/map", handler.PostMap(d))

	return r
}
