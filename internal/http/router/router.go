package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/triage/internal/http/handler"
	"basegraph.app/triage/internal/http/handler/webhook"
	"basegraph.app/triage/internal/http/middleware"
)

type RouterConfig struct {
	AdminAPIKey string
	// Webhooks maps a provider name to its handler, mounted at /webhooks/<provider>.
	Webhooks map[string]*webhook.Handler
	Triage   *handler.TriageHandler
}

func SetupRoutes(router *gin.Engine, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	hooks := router.Group("/webhooks")
	for provider, h := range cfg.Webhooks {
		WebhookRouter(hooks.Group("/"+provider), h)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireAdminAPIKey(cfg.AdminAPIKey))
	{
		TriageRouter(v1, cfg.Triage)
	}
}
