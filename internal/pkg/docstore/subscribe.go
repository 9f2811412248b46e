package docstore

import (
	"context"
	"fmt"
	"sync"
)

// Subscribe 订阅查询结果：先投递一次完整结果集，之后集合每次变更都重新查询并投递完整结果集（非增量）。
// 连续的变更通知会合并为一次重新查询。onSnapshot 在订阅自己的协程中串行调用。
func Subscribe[T any](ctx context.Context, s Store, q Query, onSnapshot func([]T, error)) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	changed := make(chan struct{}, 1)
	watch, err := s.Watch(ctx, q.Collection, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", q.Collection, err)
	}

	sub := &querySubscription{cancel: cancel, done: make(chan struct{})}

	deliver := func() {
		var docs []T
		err := s.Query(ctx, q, &docs)
		if ctx.Err() != nil {
			return
		}
		onSnapshot(docs, err)
	}

	go func() {
		defer close(sub.done)
		defer watch.Unsubscribe()

		deliver()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				deliver()
			}
		}
	}()

	return sub, nil
}

type querySubscription struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *querySubscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

func (s *querySubscription) Done() <-chan struct{} {
	return s.done
}
