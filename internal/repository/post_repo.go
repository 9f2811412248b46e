package repository

import (
	"context"

	"github.com/qs3c/medforum_server/internal/model"
	"github.com/qs3c/medforum_server/internal/pkg/docstore"
)

const (
	PostCollection  = "posts"
	ForumCollection = "forums"
)

type PostRepository struct {
	store docstore.Store
}

func NewPostRepository(store docstore.Store) *PostRepository {
	return &PostRepository{store: store}
}

// GetByID 根据 ID 获取帖子
func (r *PostRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	if err := r.store.Get(ctx, PostCollection, id, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// ListAll 按创建时间获取全部帖子
func (r *PostRepository) ListAll(ctx context.Context) ([]*model.Post, error) {
	var posts []*model.Post
	err := r.store.Query(ctx, docstore.Query{
		Collection: PostCollection,
		OrderBy:    "created_at",
	}, &posts)
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// GetForum 根据 ID 获取社区
func (r *PostRepository) GetForum(ctx context.Context, id string) (*model.Forum, error) {
	var forum model.Forum
	if err := r.store.Get(ctx, ForumCollection, id, &forum); err != nil {
		return nil, err
	}
	return &forum, nil
}
