package main

import (
	"database/sql"
	"net/http"
	"time"

	"todocall-platform/internal/httpapi"
	"todocall-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// AUTH routes (account + token issuance). The passkey ceremony itself
	// runs in an external authenticator; these endpoints only mint tokens.
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
	}

	// protected API group
	protected := api.Group("")
	protected.Use(authMW)
	{
		// TODOS routes
		todosGroup := protected.Group("/todos")
		{
			todosGroup.GET("", h.ListTodos)
			todosGroup.POST("", h.CreateTodo)
			todosGroup.PATCH("/:id", h.UpdateTodo)
			todosGroup.DELETE("/:id", h.DeleteTodo)
			todosGroup.POST("/:id/remove-shared", h.RemoveShared)

			// CALL routes, scoped to one todo
			todosGroup.POST("/:id/call/start", h.StartCall)
			todosGroup.GET("/:id/call", h.PollCall)
			todosGroup.POST("/:id/call/signal", h.RelaySignal)
			todosGroup.POST("/:id/call/end", h.EndCall)
		}

		// SHARE BAN routes. Removal takes {blockedUserId} in the body,
		// mirroring creation.
		bansGroup := protected.Group("/share-bans")
		{
			bansGroup.GET("", h.ListBans)
			bansGroup.POST("", h.CreateBan)
			bansGroup.DELETE("", h.DeleteBan)
		}
	}
}
