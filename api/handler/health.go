package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/racefetch/engine"
	"github.com/use-agent/racefetch/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// PoolStatter reports browser pool utilisation.
type PoolStatter interface {
	Stats() models.PoolStats
}

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when more than 80% of browser pages are active. pool may
// be nil when no browser runs.
func Health(d *engine.Dispatcher, pool PoolStatter, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var stats models.PoolStats
		if pool != nil {
			stats = pool.Stats()
		}

		status := "healthy"
		if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
			status = "degraded"
		}

		remembered := 0
		if mem := d.Memory(); mem != nil {
			remembered = mem.Len()
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			Strategies: d.Strategies(),
			Remembered: remembered,
			PoolStats:  stats,
			Version:    Version,
		})
	}
}
