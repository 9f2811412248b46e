package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/qs3c/medforum_server/internal/pkg/docstore"
)

const channelPrefix = "docstore:changes:"

// ChangeMessage 集合变更通知
type ChangeMessage struct {
	Collection string    `json:"collection"`
	At         time.Time `json:"at"`
}

// Channel 集合对应的 Redis 频道
func Channel(collection string) string {
	return channelPrefix + collection
}

// ChangeBus 基于 Redis 发布订阅的 docstore.Notifier，多实例部署时所有节点都能收到提交通知
type ChangeBus struct {
	client *redis.Client
	logger *zap.Logger
}

// NewChangeBus 创建变更总线
func NewChangeBus(client *redis.Client, logger *zap.Logger) *ChangeBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeBus{client: client, logger: logger}
}

// Publish 发布集合变更
func (b *ChangeBus) Publish(ctx context.Context, collection string) error {
	data, err := json.Marshal(&ChangeMessage{Collection: collection, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal change message: %w", err)
	}
	return b.client.Publish(ctx, Channel(collection), data).Err()
}

// Listen 订阅集合变更，订阅在返回前已被 Redis 确认
func (b *ChangeBus) Listen(ctx context.Context, collection string, fn func()) (docstore.Subscription, error) {
	ps := b.client.Subscribe(ctx, Channel(collection))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := docstore.NewFuncSubscription(func() {
		cancel()
		ps.Close()
	})

	go func() {
		defer sub.Unsubscribe()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var change ChangeMessage
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					b.logger.Warn("ignore malformed change message",
						zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				fn()
			}
		}
	}()

	return sub, nil
}
