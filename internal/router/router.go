package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ashwinyue/next-chat/internal/config"
	"github.com/ashwinyue/next-chat/internal/handler"
	"github.com/ashwinyue/next-chat/internal/metrics"
	"github.com/ashwinyue/next-chat/internal/middleware"
)

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, h *handler.Handlers, m *metrics.Metrics, log *zap.Logger) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware(log))
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.CORSMiddleware(cfg.CORS.Origins()))

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)

	api := r.Group("/api")
	{
		api.GET("/health", h.System.Health)

		api.POST("/chats", h.Chat.CreateSession)
		api.GET("/getAllChats", h.Chat.ListSessions)
		api.GET("/chats/:sessionId", h.Chat.GetHistory)
		api.POST("/chats/:sessionId/message", limiter.Middleware(), h.Chat.SendMessage)
		api.POST("/chats/:sessionId/stop", h.Chat.StopStream)
		api.DELETE("/chats/:sessionId", h.Chat.DeleteSession)
	}

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	r.NoRoute(h.System.NoRoute)
	return r
}
