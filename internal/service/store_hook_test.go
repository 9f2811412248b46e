package service

import (
	"context"
	"sync"

	"github.com/qs3c/medforum_server/internal/pkg/docstore"
)

// hookStore runs a one-shot hook right before the next batch commit, which
// lets a test slip a concurrent write between a service's reads and its commit.
type hookStore struct {
	docstore.Store

	mu   sync.Mutex
	hook func(docstore.Batch)
}

func (s *hookStore) beforeCommit(fn func(docstore.Batch)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

func (s *hookStore) take() func(docstore.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn := s.hook
	s.hook = nil
	return fn
}

func (s *hookStore) Batch() docstore.Batch {
	return &hookBatch{Batch: s.Store.Batch(), store: s}
}

type hookBatch struct {
	docstore.Batch
	store *hookStore
}

func (b *hookBatch) Commit(ctx context.Context) error {
	if fn := b.store.take(); fn != nil {
		fn(b.Batch)
	}
	return b.Batch.Commit(ctx)
}
