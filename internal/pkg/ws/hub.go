package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub 按主题（如某个帖子的评论流）管理连接，同一主题可以有多个连接
type Hub struct {
	topics map[string]map[*Client]struct{}
	mu     sync.RWMutex
	logger *zap.Logger
}

type Client struct {
	Topic  string
	UserID string // 匿名连接为空
	Conn   *websocket.Conn
	mu     sync.Mutex // 写锁，防止并发写入
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		topics: make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// Register 加入主题，返回该主题当前的连接数
func (h *Hub) Register(client *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[client.Topic] == nil {
		h.topics[client.Topic] = make(map[*Client]struct{})
	}
	h.topics[client.Topic][client] = struct{}{}

	n := len(h.topics[client.Topic])
	h.logger.Debug("ws client joined",
		zap.String("topic", client.Topic), zap.String("user_id", client.UserID), zap.Int("topic_conns", n))
	return n
}

// Unregister 离开主题，返回该主题剩余的连接数；重复调用无副作用
func (h *Hub) Unregister(client *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.topics[client.Topic]
	if !ok {
		return 0
	}
	delete(conns, client)
	n := len(conns)
	if n == 0 {
		delete(h.topics, client.Topic)
	}
	h.logger.Debug("ws client left",
		zap.String("topic", client.Topic), zap.String("user_id", client.UserID), zap.Int("topic_conns", n))
	return n
}

// Broadcast 向主题下的所有连接发送消息，单个连接写失败只记录日志
func (h *Hub) Broadcast(topic string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.topics[topic]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	// 复制一份引用，避免长时间持锁
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.Send(data); err != nil {
			h.logger.Warn("ws broadcast write failed", zap.String("topic", topic), zap.Error(err))
		}
	}
	return nil
}

// Send 向单个连接写入原始数据
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// SendJSON 向单个连接写入消息
func (c *Client) SendJSON(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// TopicCount 主题下的连接数
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.topics {
		total += len(conns)
	}
	return total
}
