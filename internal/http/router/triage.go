package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/triage/internal/http/handler"
)

func TriageRouter(router *gin.RouterGroup, handler *handler.TriageHandler) {
	router.POST("/conversations/:id/triage", handler.Triage)
	router.GET("/conversations/:id/runs", handler.Runs)
	router.POST("/crawl", handler.Crawl)
}
