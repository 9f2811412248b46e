package repository

import (
	"context"

	"github.com/qs3c/medforum_server/internal/model"
	"github.com/qs3c/medforum_server/internal/pkg/docstore"
)

const CommentCollection = "comments"

type CommentRepository struct {
	store docstore.Store
}

func NewCommentRepository(store docstore.Store) *CommentRepository {
	return &CommentRepository{store: store}
}

// GetByID 根据 ID 获取评论（包含已删除的评论）
func (r *CommentRepository) GetByID(ctx context.Context, id string) (*model.Comment, error) {
	var comment model.Comment
	if err := r.store.Get(ctx, CommentCollection, id, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// LiveQuery 帖子下未删除的评论，按创建时间升序
func (r *CommentRepository) LiveQuery(postID string, limit int) docstore.Query {
	return docstore.Query{
		Collection: CommentCollection,
		Filters: []docstore.Filter{
			docstore.Where("post_id", docstore.OpEqual, postID),
			docstore.Where("is_deleted", docstore.OpEqual, false),
		},
		OrderBy: "created_at",
		Limit:   limit,
	}
}

// ListLive 获取帖子下未删除的评论，limit <= 0 不限制条数
func (r *CommentRepository) ListLive(ctx context.Context, postID string, limit int) ([]*model.Comment, error) {
	var comments []*model.Comment
	if err := r.store.Query(ctx, r.LiveQuery(postID, limit), &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// ListChildren 获取未删除的直接回复
func (r *CommentRepository) ListChildren(ctx context.Context, parentID string) ([]*model.Comment, error) {
	var replies []*model.Comment
	err := r.store.Query(ctx, docstore.Query{
		Collection: CommentCollection,
		Filters: []docstore.Filter{
			docstore.Where("parent_comment_id", docstore.OpEqual, parentID),
			docstore.Where("is_deleted", docstore.OpEqual, false),
		},
		OrderBy: "created_at",
	}, &replies)
	return replies, err
}

// ListLikeDrift 找出 like_count 与点赞集合大小不一致的评论
func (r *CommentRepository) ListLikeDrift(ctx context.Context, postID string) ([]*model.Comment, error) {
	var comments []*model.Comment
	err := r.store.Query(ctx, docstore.Query{
		Collection: CommentCollection,
		Filters:    []docstore.Filter{docstore.Where("post_id", docstore.OpEqual, postID)},
		OrderBy:    "created_at",
	}, &comments)
	if err != nil {
		return nil, err
	}

	drifted := comments[:0]
	for _, c := range comments {
		if c.LikeCount != len(c.Likes) {
			drifted = append(drifted, c)
		}
	}
	return drifted, nil
}
