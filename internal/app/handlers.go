package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/surfsense/surfsense-backend/internal/handlers"
	"github.com/surfsense/surfsense-backend/internal/middleware"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/redisx"
	"github.com/surfsense/surfsense-backend/internal/realtime"
	"github.com/surfsense/surfsense-backend/internal/server"
)

func wireRouter(
	log *logger.Logger,
	cfg Config,
	gdb *gorm.DB,
	r Repos,
	c Clients,
	s Services,
	hub *realtime.SSEHub,
) *gin.Engine {
	var counter *redisx.RateCounter
	if c.Redis != nil {
		counter = redisx.NewRateCounter(c.Redis, "surfsense:rate", rateWindow)
	}

	return server.NewRouter(server.RouterConfig{
		Log:            log,
		AllowedOrigins: []string{cfg.FrontendURL},

		AuthMiddleware: middleware.NewAuthMiddleware(s.Auth),
		RateCounter:    counter,
		RateLimit:      cfg.RateLimitPerMinute,

		Health:        handlers.NewHealthHandler(gdb, c.Redis),
		Auth:          handlers.NewAuthHandler(s.Auth),
		Users:         handlers.NewUserHandler(r.Users, s.Avatar, s.Guard),
		Spaces:        handlers.NewSpaceHandler(s.Spaces),
		Connectors:    handlers.NewConnectorHandler(s.Manager),
		Documents:     handlers.NewDocumentHandler(s.Docs),
		Threads:       handlers.NewThreadHandler(s.Chat, s.Runner, c.Bucket),
		Public:        handlers.NewPublicHandler(s.Chat, c.Bucket),
		Notifications: handlers.NewNotificationHandler(s.Notify),
		Jobs:          handlers.NewJobHandler(r.Jobs),
		Realtime:      handlers.NewRealtimeHandler(log, hub, s.Chat),
	})
}
