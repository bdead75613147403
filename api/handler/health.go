package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/urlgrab/models"
	"github.com/use-agent/urlgrab/runner"
)

// Health returns a handler for GET /api/v1/health.
//
// Status is "busy" while every browser slot is taken.
func Health(svc Service, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := svc.Stats()

		status := "healthy"
		if stats.InFlight >= stats.Capacity {
			status = "busy"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:   status,
			Uptime:   time.Since(startTime).Round(time.Second).String(),
			Driver:   stats.Driver,
			InFlight: stats.InFlight,
			Capacity: stats.Capacity,
			Version:  runner.Version,
		})
	}
}
