package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ragline/ragline/internal/ws"
)

type RouterDeps struct {
	Knowledge     *KnowledgeHandler
	Conversations *ConversationHandler
	Health        *HealthHandler
	Hub           *ws.Hub
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/knowledge/upload", deps.Knowledge.Upload)

	api.GET("/conversations", deps.Conversations.List)
	api.GET("/conversations/:id/messages", deps.Conversations.Messages)
	api.DELETE("/conversations/:id", deps.Conversations.Delete)

	api.GET("/healthz", deps.Health.Check)

	api.GET("/ws", func(c *gin.Context) {
		deps.Hub.Serve(c.Writer, c.Request)
	})
}
