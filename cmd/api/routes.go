package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"callpulse/internal/config"
	"callpulse/internal/httpapi"
	"callpulse/internal/rbac"
	"callpulse/internal/telephony"
	"callpulse/pkg/utils"
)

type routeDeps struct {
	cfg      config.Config
	authMW   gin.HandlerFunc
	handlers httpapi.Handlers
	webhook  telephony.WebhookHandler
	db       *sql.DB
	rdb      *redis.Client
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := d.rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: protect with Twilio signature validation at the edge in production.
	r.POST("/webhooks/twilio/status", d.webhook.HandleStatusCallback)
	r.POST("/webhooks/twilio/turn", d.webhook.HandleTurn)

	v1 := r.Group("/v1")

	// Token issuance for local development only.
	if !d.cfg.IsProduction() {
		v1.POST("/auth/login", d.handlers.Login)
	}

	protected := v1.Group("")
	protected.Use(d.authMW)
	{
		campaigns := protected.Group("/campaigns")
		{
			campaigns.POST("",
				rbac.RequireAnyRole(rbac.RoleOperator),
				d.handlers.StartCampaign)
			campaigns.POST("/:campaign_id/cancel",
				rbac.RequireAnyRole(rbac.RoleOperator),
				d.handlers.CancelCampaign)

			campaigns.GET("/:campaign_id/status",
				rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer),
				d.handlers.GetCampaignStatus)
			campaigns.GET("/:campaign_id/calls",
				rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer),
				d.handlers.ListCampaignCalls)
			campaigns.GET("/:campaign_id/report",
				rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer),
				d.handlers.CampaignReport)
		}

		calls := protected.Group("/calls")
		{
			calls.GET("/:call_id",
				rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer),
				d.handlers.GetCall)
			calls.POST("/cancel",
				rbac.RequireAnyRole(rbac.RoleOperator),
				d.handlers.CancelCalls)

			calls.PATCH("/:call_id/status",
				rbac.RequireAnyRole(rbac.RoleOperator),
				d.handlers.OverrideCallStatus)
		}
	}
}
