package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/triage/internal/http/handler/webhook"
)

func WebhookRouter(router *gin.RouterGroup, handler *webhook.Handler) {
	router.POST("", handler.HandleEvent)
}
