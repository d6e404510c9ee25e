package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"project-alert-service/internal/config"
	"project-alert-service/internal/logging"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(logger *logging.Logger, cfg config.Config, h *Handler, db Pinger, metrics http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	r.GET("/health", func(c *gin.Context) {
		if db != nil {
			if err := db.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	api := r.Group(cfg.API.BasePath)
	{
		// Rules
		api.GET("/rules", h.ListRules)
		api.PUT("/rules/:key", h.UpdateRule)
		api.GET("/rules/changes", h.ListRuleChanges)

		// Schedules
		api.GET("/schedules", h.ListSchedules)
		api.GET("/schedules/timers", h.ListTimers)
		api.PUT("/schedules/:id/override", h.SetOverride)
		api.DELETE("/schedules/:id/override", h.RemoveOverride)
		api.PUT("/schedules/:id/cron", h.SetGlobalCron)
		api.POST("/schedules/:id/run", h.RunSchedule)
		api.PUT("/settings/timezone", h.SetGlobalTimezone)

		// Audit
		api.GET("/runs", h.ListRuns)
		api.GET("/alerts", h.ListAlerts)
		api.POST("/preview", h.Preview)

		// Contact Points
		api.POST("/contact-points", h.CreateContactPoint)
		api.GET("/contact-points/tenant/:tenant_id", h.GetContactPointsByTenant)
		api.DELETE("/contact-points/:id", h.DeleteContactPoint)

		// In-app channel
		api.GET("/ws", h.WebSocket)
	}
	return r
}
