package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qs3c/medforum_server/internal/pkg/jwt"
	"github.com/qs3c/medforum_server/internal/pkg/ws"
	"github.com/qs3c/medforum_server/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketHandler 评论楼层实时推送
type WebSocketHandler struct {
	feed      *service.LiveFeed
	jwtSecret string
	logger    *zap.Logger
}

func NewWebSocketHandler(feed *service.LiveFeed, jwtSecret string, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		feed:      feed,
		jwtSecret: jwtSecret,
		logger:    logger.Named("ws"),
	}
}

// Handle 订阅帖子的评论楼层，token 可选
// GET /api/v1/posts/:id/live?token=xxx
func (h *WebSocketHandler) Handle(c *gin.Context) {
	postID := c.Param("id")

	var userID string
	if token := c.Query("token"); token != "" {
		claims, err := jwt.ParseToken(token, h.jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID = claims.UserID
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &ws.Client{
		UserID: userID,
		Conn:   conn,
	}

	if err := h.feed.Join(postID, client); err != nil {
		code := "store_unavailable"
		if errors.Is(err, service.ErrNotFound) {
			code = "not_found"
		}
		_ = client.SendJSON(&ws.Message{Type: service.FeedMessageError, Data: map[string]string{"code": code}})
		conn.Close()
		return
	}

	// 保持连接，读取消息（主要用于检测断开）
	go func() {
		defer conn.Close()
		defer h.feed.Leave(postID, client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
