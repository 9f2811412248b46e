package docstore

import (
	"context"
	"sync"
)

// Notifier 在写入提交后广播集合变更，供 Watch 使用
type Notifier interface {
	Publish(ctx context.Context, collection string) error
	Listen(ctx context.Context, collection string, fn func()) (Subscription, error)
}

// LocalNotifier 进程内广播，单节点部署与测试使用
type LocalNotifier struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[string]map[int]func()
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{
		listeners: make(map[string]map[int]func()),
	}
}

func (n *LocalNotifier) Publish(_ context.Context, collection string) error {
	n.mu.RLock()
	fns := make([]func(), 0, len(n.listeners[collection]))
	for _, fn := range n.listeners[collection] {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
	return nil
}

func (n *LocalNotifier) Listen(ctx context.Context, collection string, fn func()) (Subscription, error) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	if n.listeners[collection] == nil {
		n.listeners[collection] = make(map[int]func())
	}
	n.listeners[collection][id] = fn
	n.mu.Unlock()

	sub := NewFuncSubscription(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if ls, ok := n.listeners[collection]; ok {
			delete(ls, id)
			if len(ls) == 0 {
				delete(n.listeners, collection)
			}
		}
	})
	stop := context.AfterFunc(ctx, sub.Unsubscribe)
	go func() {
		<-sub.Done()
		stop()
	}()
	return sub, nil
}

// ListenerCount 当前监听数量
func (n *LocalNotifier) ListenerCount(collection string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners[collection])
}

// FuncSubscription 以一次性回调实现 Subscription
type FuncSubscription struct {
	once sync.Once
	stop func()
	done chan struct{}
}

func NewFuncSubscription(stop func()) *FuncSubscription {
	return &FuncSubscription{stop: stop, done: make(chan struct{})}
}

func (s *FuncSubscription) Unsubscribe() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		close(s.done)
	})
}

func (s *FuncSubscription) Done() <-chan struct{} {
	return s.done
}
