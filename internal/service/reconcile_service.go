package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/qs3c/medforum_server/internal/model/dto"
	"github.com/qs3c/medforum_server/internal/pkg/docstore"
	"github.com/qs3c/medforum_server/internal/repository"
)

// ReconcileService 校正冗余计数：帖子 comment_count 与未删除评论数、评论 like_count 与点赞集合大小
type ReconcileService struct {
	store    docstore.Store
	comments *repository.CommentRepository
	posts    *repository.PostRepository
	logger   *zap.Logger
}

func NewReconcileService(
	store docstore.Store,
	comments *repository.CommentRepository,
	posts *repository.PostRepository,
	logger *zap.Logger,
) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileService{
		store:    store,
		comments: comments,
		posts:    posts,
		logger:   logger.Named("reconcile"),
	}
}

// Run 扫描全部帖子；dryRun 只统计不写入。每个帖子的修正在一个批次中提交。
// 修正以差值自增写入，并以读取到的计数作为前置条件；提交前计数已被并发修改时跳过该帖子。
func (s *ReconcileService) Run(ctx context.Context, dryRun bool) (*dto.ReconcileReport, error) {
	posts, err := s.posts.ListAll(ctx)
	if err != nil {
		return nil, storeError(err, "list posts")
	}

	report := &dto.ReconcileReport{DryRun: dryRun}
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.PostsChecked++

		live, err := s.comments.ListLive(ctx, post.ID, 0)
		if err != nil {
			return report, storeError(err, "list comments of "+post.ID)
		}
		drifted, err := s.comments.ListLikeDrift(ctx, post.ID)
		if err != nil {
			return report, storeError(err, "like drift of "+post.ID)
		}

		countWrong := post.CommentCount != len(live)
		if !countWrong && len(drifted) == 0 {
			continue
		}
		if countWrong {
			s.logger.Info("comment count drift",
				zap.String("post_id", post.ID),
				zap.Int("stored", post.CommentCount),
				zap.Int("actual", len(live)))
		}
		if dryRun {
			report.CommentsFixed += len(drifted)
			if countWrong {
				report.PostsFixed++
			}
			continue
		}

		batch := s.store.Batch()
		if countWrong {
			batch.Update(docstore.Doc(repository.PostCollection, post.ID), docstore.Fields{
				"comment_count": docstore.Increment(len(live) - post.CommentCount),
			}, docstore.FieldEquals("comment_count", post.CommentCount))
		}
		for _, c := range drifted {
			batch.Update(docstore.Doc(repository.CommentCollection, c.ID), docstore.Fields{
				"like_count": docstore.Increment(len(c.Likes) - c.LikeCount),
			}, docstore.FieldEquals("like_count", c.LikeCount))
		}
		err = batch.Commit(ctx)
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			report.PostsSkipped++
			s.logger.Info("counters changed during reconcile, skipped",
				zap.String("post_id", post.ID))
			continue
		}
		if err != nil {
			return report, storeError(err, "fix counters of "+post.ID)
		}
		report.CommentsFixed += len(drifted)
		if countWrong {
			report.PostsFixed++
		}
	}

	s.logger.Info("reconcile finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("posts_checked", report.PostsChecked),
		zap.Int("posts_fixed", report.PostsFixed),
		zap.Int("comments_fixed", report.CommentsFixed),
		zap.Int("posts_skipped", report.PostsSkipped))
	return report, nil
}
