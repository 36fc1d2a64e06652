package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/surfsense/surfsense-backend/internal/handlers"
	"github.com/surfsense/surfsense-backend/internal/middleware"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/redisx"
)

type RouterConfig struct {
	Log            *logger.Logger
	AllowedOrigins []string

	AuthMiddleware *middleware.AuthMiddleware
	RateCounter    *redisx.RateCounter
	RateLimit      int64

	Health        *handlers.HealthHandler
	Auth          *handlers.AuthHandler
	Users         *handlers.UserHandler
	Spaces        *handlers.SpaceHandler
	Connectors    *handlers.ConnectorHandler
	Documents     *handlers.DocumentHandler
	Threads       *handlers.ThreadHandler
	Public        *handlers.PublicHandler
	Notifications *handlers.NotificationHandler
	Jobs          *handlers.JobHandler
	Realtime      *handlers.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("surfsense"))
	router.Use(middleware.RequestLog(cfg.Log))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/health", cfg.Health.Ready)
	router.GET("/health/live", cfg.Health.Live)
	router.GET("/health/ready", cfg.Health.Ready)

	// Health probes stay exempt from the limiter; an orchestrator polling
	// readiness must never be throttled into restarting the process.
	api := router.Group("/api")
	if cfg.RateCounter != nil && cfg.RateLimit > 0 {
		api.Use(middleware.RateLimit(cfg.RateCounter, cfg.RateLimit, cfg.Log))
	}

	// Endpoints reachable without a session. The share token is the only
	// capability the public routes check.
	api.POST("/auth/register", cfg.Auth.Register)
	api.POST("/auth/login", cfg.Auth.Login)
	api.POST("/auth/refresh", cfg.Auth.Refresh)
	api.GET("/public/:token", cfg.Public.GetSnapshot)
	api.GET("/public/:token/podcasts/:podcast_id/stream", cfg.Public.StreamPodcast)

	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())

	protected.POST("/auth/logout", cfg.Auth.Logout)
	protected.POST("/auth/logout-all", cfg.Auth.LogoutAll)

	protected.GET("/users/me", cfg.Users.GetMe)
	protected.PATCH("/users/me", cfg.Users.UpdateMe)
	protected.POST("/users/me/avatar", cfg.Users.UploadAvatar)

	protected.POST("/spaces", cfg.Spaces.Create)
	protected.GET("/spaces", cfg.Spaces.List)
	protected.GET("/spaces/:space_id", cfg.Spaces.Get)
	protected.PATCH("/spaces/:space_id", cfg.Spaces.Update)
	protected.DELETE("/spaces/:space_id", cfg.Spaces.Delete)
	protected.GET("/spaces/:space_id/members", cfg.Spaces.ListMembers)
	protected.POST("/spaces/:space_id/invites", cfg.Spaces.CreateInvite)
	protected.POST("/invites/accept", cfg.Spaces.AcceptInvite)

	protected.POST("/spaces/:space_id/connectors", cfg.Connectors.Create)
	protected.GET("/spaces/:space_id/connectors", cfg.Connectors.List)
	protected.GET("/connectors/:connector_id", cfg.Connectors.Get)
	protected.PATCH("/connectors/:connector_id", cfg.Connectors.Update)
	protected.DELETE("/connectors/:connector_id", cfg.Connectors.Delete)
	protected.POST("/connectors/:connector_id/credentials", cfg.Connectors.RotateCredentials)
	protected.POST("/connectors/:connector_id/validate", cfg.Connectors.Validate)
	protected.POST("/connectors/:connector_id/run", cfg.Connectors.Run)

	protected.POST("/spaces/:space_id/documents/notes", cfg.Documents.CreateNote)
	protected.POST("/spaces/:space_id/documents/upload", cfg.Documents.Upload)
	protected.GET("/spaces/:space_id/documents", cfg.Documents.List)
	protected.GET("/spaces/:space_id/documents/search", cfg.Documents.Search)
	protected.POST("/spaces/:space_id/documents/reindex", cfg.Documents.Reindex)
	protected.GET("/documents/:document_id", cfg.Documents.Get)
	protected.PATCH("/documents/:document_id", cfg.Documents.Edit)
	protected.DELETE("/documents/:document_id", cfg.Documents.Delete)

	protected.POST("/spaces/:space_id/threads", cfg.Threads.Create)
	protected.GET("/spaces/:space_id/threads", cfg.Threads.List)
	protected.GET("/threads/:thread_id", cfg.Threads.Get)
	protected.PATCH("/threads/:thread_id", cfg.Threads.Update)
	protected.DELETE("/threads/:thread_id", cfg.Threads.Delete)
	protected.GET("/threads/:thread_id/messages", cfg.Threads.ListMessages)
	protected.POST("/threads/:thread_id/messages", cfg.Threads.SendMessage)
	protected.POST("/threads/:thread_id/share", cfg.Threads.EnableSharing)
	protected.POST("/threads/:thread_id/share/refresh", cfg.Threads.RefreshSnapshot)
	protected.DELETE("/threads/:thread_id/share", cfg.Threads.DisableSharing)
	protected.GET("/threads/:thread_id/podcasts", cfg.Threads.ListPodcasts)
	protected.GET("/podcasts/:podcast_id/stream", cfg.Threads.StreamPodcast)
	protected.POST("/public/:token/clone", cfg.Public.Clone)

	protected.POST("/messages/:message_id/comments", cfg.Threads.CreateComment)
	protected.GET("/messages/:message_id/comments", cfg.Threads.ListComments)
	protected.DELETE("/comments/:comment_id", cfg.Threads.DeleteComment)

	protected.GET("/notifications", cfg.Notifications.List)
	protected.POST("/notifications/read", cfg.Notifications.MarkRead)
	protected.POST("/notifications/read-all", cfg.Notifications.MarkAllRead)
	protected.POST("/notifications/archive", cfg.Notifications.Archive)

	protected.GET("/jobs/:job_id", cfg.Jobs.Get)

	protected.GET("/sse/stream", cfg.Realtime.Stream)
	protected.POST("/sse/subscribe", cfg.Realtime.Subscribe)
	protected.POST("/sse/unsubscribe", cfg.Realtime.Unsubscribe)

	return router
}
