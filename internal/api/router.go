package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/medforum_server/config"
	"github.com/qs3c/medforum_server/internal/api/handler"
	"github.com/qs3c/medforum_server/internal/api/middleware"
)

type Router struct {
	commentHandler   *handler.CommentHandler
	websocketHandler *handler.WebSocketHandler
	imageHandler     *handler.ImageHandler
	cfg              *config.Config
	logger           *zap.Logger
}

func NewRouter(
	commentHandler *handler.CommentHandler,
	websocketHandler *handler.WebSocketHandler,
	imageHandler *handler.ImageHandler,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		commentHandler:   commentHandler,
		websocketHandler: websocketHandler,
		imageHandler:     imageHandler,
		cfg:              cfg,
		logger:           logger,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Logger(r.logger))
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket - 评论楼层实时推送（token 可选）
		api.GET("/posts/:id/live", r.websocketHandler.Handle)

		// 评论 - 公开读取（可选认证）
		public := api.Group("")
		public.Use(middleware.OptionalAuth(r.cfg.JWT.Secret))
		{
			public.GET("/posts/:id/comments", r.commentHandler.List)
			public.GET("/comments/:id/permissions", r.commentHandler.Permissions)
		}

		// 评论 - 需要认证
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.POST("/posts/:id/comments", r.commentHandler.Create)
			authenticated.PUT("/comments/:id", r.commentHandler.Edit)
			authenticated.DELETE("/comments/:id", r.commentHandler.Delete)
			authenticated.POST("/comments/:id/like", r.commentHandler.Like)
			authenticated.POST("/images", r.imageHandler.Upload)
		}
	}

	return engine
}
