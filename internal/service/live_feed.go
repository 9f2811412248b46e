package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/qs3c/medforum_server/internal/model/dto"
	"github.com/qs3c/medforum_server/internal/pkg/docstore"
	"github.com/qs3c/medforum_server/internal/pkg/ws"
)

// 推送给客户端的消息类型
const (
	FeedMessageThread = "thread"
	FeedMessageError  = "error"
)

// ThreadWatcher 由 CommentService 实现
type ThreadWatcher interface {
	WatchThread(ctx context.Context, postID string, fn func(*dto.ThreadView, error)) (docstore.Subscription, error)
}

// LiveFeed 每个帖子只维护一个楼层订阅，快照广播给该帖子的全部连接。
// 第一个连接加入时开始订阅，最后一个连接离开时取消。
type LiveFeed struct {
	hub     *ws.Hub
	watcher ThreadWatcher
	logger  *zap.Logger

	mu    sync.Mutex
	feeds map[string]*feed
}

type feed struct {
	sub docstore.Subscription

	mu   sync.Mutex
	last *ws.Message
}

func NewLiveFeed(hub *ws.Hub, watcher ThreadWatcher, logger *zap.Logger) *LiveFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveFeed{
		hub:     hub,
		watcher: watcher,
		logger:  logger.Named("feed"),
		feeds:   make(map[string]*feed),
	}
}

// Topic 帖子对应的连接主题
func Topic(postID string) string {
	return "post:" + postID
}

// Join 将连接加入帖子的评论流，并立即补发最近一次快照（如有）
func (f *LiveFeed) Join(postID string, client *ws.Client) error {
	client.Topic = Topic(postID)

	f.mu.Lock()
	defer f.mu.Unlock()

	fd, ok := f.feeds[postID]
	if !ok {
		fd = &feed{}
		// 共享订阅以匿名身份组装，liked 一律为 false
		sub, err := f.watcher.WatchThread(context.Background(), postID, func(view *dto.ThreadView, err error) {
			f.publish(postID, fd, view, err)
		})
		if err != nil {
			return err
		}
		fd.sub = sub
		f.feeds[postID] = fd
	}

	f.hub.Register(client)

	fd.mu.Lock()
	last := fd.last
	fd.mu.Unlock()
	if last != nil {
		if err := client.SendJSON(last); err != nil {
			f.logger.Warn("send cached snapshot failed", zap.String("post_id", postID), zap.Error(err))
		}
	}
	return nil
}

// Leave 连接离开，帖子没有剩余连接时取消订阅
func (f *LiveFeed) Leave(postID string, client *ws.Client) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.hub.Unregister(client) > 0 {
		return
	}
	if fd, ok := f.feeds[postID]; ok {
		fd.sub.Unsubscribe()
		delete(f.feeds, postID)
		f.logger.Debug("feed closed", zap.String("post_id", postID))
	}
}

// ActiveFeeds 当前有订阅的帖子数
func (f *LiveFeed) ActiveFeeds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.feeds)
}

// Close 取消全部订阅
func (f *LiveFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for postID, fd := range f.feeds {
		fd.sub.Unsubscribe()
		delete(f.feeds, postID)
	}
}

func (f *LiveFeed) publish(postID string, fd *feed, view *dto.ThreadView, err error) {
	msg := &ws.Message{Type: FeedMessageThread, Data: view}
	if err != nil {
		code := "store_unavailable"
		if errors.Is(err, ErrNotFound) {
			code = "not_found"
		}
		f.logger.Warn("thread snapshot failed", zap.String("post_id", postID), zap.Error(err))
		msg = &ws.Message{Type: FeedMessageError, Data: map[string]string{"code": code}}
	}

	fd.mu.Lock()
	fd.last = msg
	fd.mu.Unlock()

	if err := f.hub.Broadcast(Topic(postID), msg); err != nil {
		f.logger.Error("broadcast snapshot failed", zap.String("post_id", postID), zap.Error(err))
	}
}
