// Package api exposes the trigger processing entry point and the owner
// dashboard endpoints over gin.
package api

import (
	"ig-automation/internal/automation"
	"ig-automation/internal/config"
	"ig-automation/internal/webhook"
	"ig-automation/internal/ws"

	"github.com/gin-gonic/gin"
)

type Deps struct {
	Config  *config.Config
	Engine  *automation.Engine
	Webhook *webhook.Handler
	Hub     *ws.Hub
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.Default()
	r.Use(cors())

	if d.Webhook != nil {
		r.GET("/webhook", d.Webhook.VerifyWebhook)
		r.POST("/webhook", d.Webhook.HandleEvent)
	}
	if d.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			d.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	triggers := NewTriggerHandler(d.Engine)
	analytics := NewAnalyticsHandler(d.Engine)
	leads := NewLeadHandler(d.Engine.Store)

	owner := r.Group("/", RequireOwner(d.Config.JWTSecret))
	{
		owner.POST("/triggers/process", triggers.Process)
		owner.GET("/triggers/process", triggers.Pending)
		owner.POST("/triggers/resume", triggers.Resume)
		owner.GET("/triggers/:id", triggers.GetTrigger)
		owner.POST("/triggers/:id/input", triggers.SubmitInput)

		owner.GET("/campaigns/:id/analytics", analytics.GetCampaignAnalytics)

		owner.GET("/leads", leads.GetLeads)
		owner.GET("/leads/export", leads.ExportLeads)
	}
	return r
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
