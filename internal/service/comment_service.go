package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/medforum_server/config"
	"github.com/qs3c/medforum_server/internal/model"
	"github.com/qs3c/medforum_server/internal/model/dto"
	"github.com/qs3c/medforum_server/internal/pkg/docstore"
	"github.com/qs3c/medforum_server/internal/pkg/identity"
	"github.com/qs3c/medforum_server/internal/pkg/markdown"
	"github.com/qs3c/medforum_server/internal/repository"
	"github.com/qs3c/medforum_server/internal/thread"
)

const (
	DeletionTypeUser      = "user"
	DeletionTypeModerator = "moderator"
)

type CommentService struct {
	store    docstore.Store
	comments *repository.CommentRepository
	users    *repository.UserRepository
	posts    *repository.PostRepository
	identity identity.Provider
	cfg      config.CommentConfig
	logger   *zap.Logger
}

func NewCommentService(
	store docstore.Store,
	comments *repository.CommentRepository,
	users *repository.UserRepository,
	posts *repository.PostRepository,
	ident identity.Provider,
	cfg *config.Config,
	logger *zap.Logger,
) *CommentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{
		store:    store,
		comments: comments,
		users:    users,
		posts:    posts,
		identity: ident,
		cfg:      cfg.Comment.WithDefaults(),
		logger:   logger.Named("comment"),
	}
}

func (s *CommentService) currentUser(ctx context.Context) (*identity.User, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, storeError(err, "current user")
	}
	return user, nil
}

// liveComment 读取未删除的评论，已删除视为不存在
func (s *CommentService) liveComment(ctx context.Context, id string) (*model.Comment, error) {
	comment, err := s.comments.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "comment "+id)
	}
	if comment.IsDeleted {
		return nil, fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	return comment, nil
}

// Create 创建评论。插入评论与帖子、作者计数在同一批次提交。
func (s *CommentService) Create(ctx context.Context, req *dto.CreateCommentRequest) (*model.Comment, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsVerifiedProfessional() {
		return nil, ErrPermissionDenied
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("empty content: %w", ErrValidation)
	}

	post, err := s.posts.GetByID(ctx, req.PostID)
	if err != nil {
		return nil, storeError(err, "post "+req.PostID)
	}

	var parentID *string
	if req.ParentCommentID != nil && *req.ParentCommentID != "" {
		parent, err := s.liveComment(ctx, *req.ParentCommentID)
		if err != nil {
			return nil, err
		}
		if parent.PostID != post.ID {
			return nil, fmt.Errorf("parent belongs to another post: %w", ErrValidation)
		}

		// 已删除的祖先仍计入层级
		depth, err := thread.Depth(ctx, parent.ID, thread.StoreLookup(s.store))
		if err != nil {
			return nil, storeError(err, "parent depth")
		}
		if depth >= s.cfg.MaxDepth-1 {
			return nil, ErrDepthLimitExceeded
		}
		parentID = &parent.ID
	}

	comment := &model.Comment{
		Content:         req.Content,
		AuthorID:        user.ID,
		PostID:          post.ID,
		ParentCommentID: parentID,
	}

	batch := s.store.Batch()
	batch.Insert(repository.CommentCollection, comment)
	batch.Update(docstore.Doc(repository.PostCollection, post.ID), docstore.Fields{
		"comment_count": docstore.Increment(1),
	})
	batch.Update(docstore.Doc(repository.UserCollection, user.ID), docstore.Fields{
		"comment_count": docstore.Increment(1),
		"contributions": docstore.Increment(1),
	})
	if err := batch.Commit(ctx); err != nil {
		return nil, storeError(err, "create comment")
	}

	s.logger.Info("comment created",
		zap.String("comment_id", comment.ID),
		zap.String("post_id", post.ID),
		zap.String("author_id", user.ID),
		zap.Bool("reply", parentID != nil))
	return comment, nil
}

// Edit 编辑评论，仅作者可操作。编辑历史追加与内容更新在同一批次提交，内容不再校验。
// 以读取到的内容作为提交前置条件，并发编辑冲突时重新读取后重试。
func (s *CommentService) Edit(ctx context.Context, commentID, newContent string) (*model.Comment, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt <= s.cfg.WriteRetries; attempt++ {
		comment, err := s.liveComment(ctx, commentID)
		if err != nil {
			return nil, err
		}
		if !thread.Resolve(user, comment, nil).CanEdit {
			return nil, ErrPermissionDenied
		}

		entry := model.EditEntry{
			PreviousContent: comment.Content,
			EditedAt:        time.Now().UTC(),
			EditedBy:        user.ID,
		}

		batch := s.store.Batch()
		batch.Update(docstore.Doc(repository.CommentCollection, comment.ID), docstore.Fields{
			"edit_history": docstore.ArrayAppend(entry),
			"content":      newContent,
			"updated_at":   docstore.ServerTimestamp(),
		}, docstore.FieldEquals("content", comment.Content))

		err = batch.Commit(ctx)
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			s.logger.Debug("edit conflict, retrying",
				zap.String("comment_id", comment.ID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, storeError(err, "edit comment")
		}

		updated, err := s.comments.GetByID(ctx, comment.ID)
		if err != nil {
			return nil, storeError(err, "reload comment")
		}
		return updated, nil
	}

	return nil, fmt.Errorf("edit %s: %w: too many concurrent updates", commentID, ErrStoreUnavailable)
}

// deletePlan 级联删除时收集到的全部写入
type deletePlan struct {
	batch             docstore.Batch
	actor             *identity.User
	isModeratorAction bool
	canModerate       bool
	visited           map[string]struct{}
	authorDeltas      map[string]int
	count             int
}

// DeleteWithReplies 软删除评论及其全部回复。整棵子树、作者计数与帖子计数在同一批次提交。
func (s *CommentService) DeleteWithReplies(ctx context.Context, commentID string, isModeratorAction bool) (*dto.DeleteResult, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrPermissionDenied
	}
	root, err := s.liveComment(ctx, commentID)
	if err != nil {
		return nil, err
	}

	caps, post, err := s.capabilities(ctx, user, root)
	if err != nil {
		return nil, err
	}
	if !caps.CanDelete {
		return nil, ErrPermissionDenied
	}

	plan := &deletePlan{
		batch:             s.store.Batch(),
		actor:             user,
		isModeratorAction: isModeratorAction,
		canModerate:       caps.CanModerate,
		visited:           make(map[string]struct{}),
		authorDeltas:      make(map[string]int),
	}
	if err := s.collectDeletion(ctx, plan, root); err != nil {
		return nil, err
	}

	if err := s.addAuthorDecrements(ctx, plan); err != nil {
		return nil, err
	}
	if post != nil {
		plan.batch.Update(docstore.Doc(repository.PostCollection, post.ID), docstore.Fields{
			"comment_count": docstore.Increment(-plan.count),
		})
	} else {
		s.logger.Warn("post missing, comment count skipped", zap.String("post_id", root.PostID))
	}

	if err := plan.batch.Commit(ctx); err != nil {
		return nil, storeError(err, "delete comment tree")
	}

	result := &dto.DeleteResult{DeletionType: DeletionTypeUser, DeletedCount: plan.count}
	if plan.moderated(root) {
		result.DeletionType = DeletionTypeModerator
	}

	s.logger.Info("comment tree deleted",
		zap.String("comment_id", root.ID),
		zap.String("post_id", root.PostID),
		zap.String("actor_id", user.ID),
		zap.String("deletion_type", result.DeletionType),
		zap.Int("deleted_count", plan.count))
	return result, nil
}

// moderated 该节点的删除是否记为管理删除
func (p *deletePlan) moderated(c *model.Comment) bool {
	return p.isModeratorAction || (c.AuthorID != p.actor.ID && p.canModerate)
}

// collectDeletion 后序遍历：先处理全部未删除的回复，再处理自身
func (s *CommentService) collectDeletion(ctx context.Context, plan *deletePlan, c *model.Comment) error {
	if _, seen := plan.visited[c.ID]; seen {
		return nil
	}
	plan.visited[c.ID] = struct{}{}

	children, err := s.comments.ListChildren(ctx, c.ID)
	if err != nil {
		return storeError(err, "list replies of "+c.ID)
	}
	for _, child := range children {
		if err := s.collectDeletion(ctx, plan, child); err != nil {
			return err
		}
	}

	fields := docstore.Fields{
		"is_deleted":      true,
		"deleted_at":      docstore.ServerTimestamp(),
		"deleted_content": c.Content,
	}
	if plan.moderated(c) {
		fields["deleted_by"] = plan.actor.ID
		fields["moderator_delete"] = true
	}
	plan.batch.Update(docstore.Doc(repository.CommentCollection, c.ID), fields)
	plan.authorDeltas[c.AuthorID]++
	plan.count++
	return nil
}

// addAuthorDecrements 按作者汇总计数变更；已不存在的作者跳过
func (s *CommentService) addAuthorDecrements(ctx context.Context, plan *deletePlan) error {
	authorIDs := make([]string, 0, len(plan.authorDeltas))
	for id := range plan.authorDeltas {
		authorIDs = append(authorIDs, id)
	}
	// 固定顺序，避免并发事务以不同顺序加锁
	sort.Strings(authorIDs)

	existing, err := s.users.GetByIDs(ctx, authorIDs)
	if err != nil {
		return storeError(err, "load comment authors")
	}
	for _, id := range authorIDs {
		if _, ok := existing[id]; !ok {
			s.logger.Warn("comment author missing, counters skipped", zap.String("author_id", id))
			continue
		}
		n := plan.authorDeltas[id]
		plan.batch.Update(docstore.Doc(repository.UserCollection, id), docstore.Fields{
			"comment_count": docstore.Increment(-n),
			"contributions": docstore.Increment(-n),
		})
	}
	return nil
}

// ToggleLike 点赞或取消点赞。点赞集合、点赞数与作者声望在同一批次提交；
// 成员关系作为提交前置条件，并发切换导致冲突时重新读取后重试。
func (s *CommentService) ToggleLike(ctx context.Context, commentID string) (*dto.LikeResponse, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrPermissionDenied
	}

	for attempt := 0; attempt <= s.cfg.WriteRetries; attempt++ {
		comment, err := s.liveComment(ctx, commentID)
		if err != nil {
			return nil, err
		}

		liked := comment.Likes.Contains(user.ID)
		delta := 1
		transform := docstore.ArrayUnion(user.ID)
		if liked {
			delta = -1
			transform = docstore.ArrayRemove(user.ID)
		}

		batch := s.store.Batch()
		batch.Update(docstore.Doc(repository.CommentCollection, comment.ID), docstore.Fields{
			"likes":      transform,
			"like_count": docstore.Increment(delta),
		}, docstore.ArrayContains("likes", user.ID, liked))

		if user.ID != comment.AuthorID {
			if err := s.addAuraChange(ctx, batch, comment.AuthorID, delta); err != nil {
				return nil, err
			}
		}

		err = batch.Commit(ctx)
		if errors.Is(err, docstore.ErrPreconditionFailed) {
			s.logger.Debug("like toggle conflict, retrying",
				zap.String("comment_id", comment.ID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, storeError(err, "toggle like")
		}

		updated, err := s.comments.GetByID(ctx, comment.ID)
		if err != nil {
			return nil, storeError(err, "reload comment")
		}
		return &dto.LikeResponse{
			Liked:     updated.Likes.Contains(user.ID),
			LikeCount: updated.LikeCount,
		}, nil
	}

	return nil, fmt.Errorf("toggle like on %s: %w: too many concurrent updates", commentID, ErrStoreUnavailable)
}

func (s *CommentService) addAuraChange(ctx context.Context, batch docstore.Batch, authorID string, delta int) error {
	_, err := s.users.GetByID(ctx, authorID)
	if errors.Is(err, docstore.ErrNotFound) {
		s.logger.Warn("comment author missing, aura skipped", zap.String("author_id", authorID))
		return nil
	}
	if err != nil {
		return storeError(err, "load comment author")
	}
	batch.Update(docstore.Doc(repository.UserCollection, authorID), docstore.Fields{
		"aura": docstore.Increment(delta),
	})
	return nil
}

// Permissions 当前用户对评论的权限，评论不存在时返回 ErrNotFound
func (s *CommentService) Permissions(ctx context.Context, commentID string) (*thread.Capabilities, error) {
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return nil, storeError(err, "comment "+commentID)
	}
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return &thread.Capabilities{}, nil
	}

	caps, _, err := s.capabilities(ctx, user, comment)
	if err != nil {
		return nil, err
	}
	return &caps, nil
}

// capabilities 沿 评论 → 帖子 → 社区 查找管理关系；帖子已不存在时返回的 post 为 nil
func (s *CommentService) capabilities(ctx context.Context, user *identity.User, comment *model.Comment) (thread.Capabilities, *model.Post, error) {
	var forum *model.Forum

	post, err := s.posts.GetByID(ctx, comment.PostID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		post = nil
	case err != nil:
		return thread.Capabilities{}, nil, storeError(err, "post "+comment.PostID)
	case post.ForumID != nil && *post.ForumID != "":
		forum, err = s.posts.GetForum(ctx, *post.ForumID)
		if errors.Is(err, docstore.ErrNotFound) {
			forum = nil
		} else if err != nil {
			return thread.Capabilities{}, nil, storeError(err, "forum "+*post.ForumID)
		}
	}

	return thread.Resolve(user, comment, forum), post, nil
}

// ListThread 一次性读取帖子的评论楼层
func (s *CommentService) ListThread(ctx context.Context, postID string) (*dto.ThreadView, error) {
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return nil, storeError(err, "post "+postID)
	}
	viewer, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	comments, err := s.comments.ListLive(ctx, postID, s.cfg.PageLimit)
	if err != nil {
		return nil, storeError(err, "list comments")
	}
	return s.buildThread(ctx, postID, comments, viewer)
}

// WatchThread 订阅帖子的评论楼层：每次变更都重新投递完整的楼层（非增量）。
// fn 在订阅协程中串行调用；取消 ctx 或调用 Unsubscribe 停止投递。
func (s *CommentService) WatchThread(ctx context.Context, postID string, fn func(*dto.ThreadView, error)) (docstore.Subscription, error) {
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return nil, storeError(err, "post "+postID)
	}
	viewer, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}

	q := s.comments.LiveQuery(postID, s.cfg.PageLimit)
	sub, err := docstore.Subscribe(ctx, s.store, q, func(comments []*model.Comment, err error) {
		if err != nil {
			fn(nil, storeError(err, "live comments"))
			return
		}
		fn(s.buildThread(ctx, postID, comments, viewer))
	})
	if err != nil {
		return nil, storeError(err, "watch comments")
	}

	s.logger.Debug("thread watch started", zap.String("post_id", postID))
	return sub, nil
}

// buildThread 按展示层级过滤后组装楼层
func (s *CommentService) buildThread(ctx context.Context, postID string, comments []*model.Comment, viewer *identity.User) (*dto.ThreadView, error) {
	lookup := thread.NewArenaLookup(comments, thread.StoreLookup(s.store))
	visible, err := thread.FilterByDepth(ctx, comments, s.cfg.DisplayMaxDepth, lookup)
	if err != nil {
		return nil, storeError(err, "display depth")
	}
	forest := thread.Assemble(visible)

	authorIDs := make([]string, 0, len(visible))
	seen := make(map[string]struct{}, len(visible))
	for _, c := range visible {
		if _, ok := seen[c.AuthorID]; !ok {
			seen[c.AuthorID] = struct{}{}
			authorIDs = append(authorIDs, c.AuthorID)
		}
	}
	authors, err := s.users.GetByIDs(ctx, authorIDs)
	if err != nil {
		return nil, storeError(err, "load comment authors")
	}

	view := &dto.ThreadView{
		PostID:   postID,
		Total:    len(visible),
		Comments: make([]*dto.CommentItem, 0, len(forest)),
	}
	for _, n := range forest {
		view.Comments = append(view.Comments, buildCommentItem(n, authors, viewer))
	}
	return view, nil
}

func buildCommentItem(n *thread.Node, authors map[string]*model.User, viewer *identity.User) *dto.CommentItem {
	c := n.Comment
	item := &dto.CommentItem{
		ID:              c.ID,
		PostID:          c.PostID,
		ParentCommentID: c.ParentCommentID,
		Content:         c.Content,
		ContentHTML:     markdown.Render(c.Content),
		LikeCount:       c.LikeCount,
		Edited:          len(c.EditHistory) > 0,
		Depth:           n.Depth,
		ReplyCount:      n.ReplyCount,
		Replies:         make([]*dto.CommentItem, 0, len(n.Replies)),
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
	if c.UpdatedAt != nil {
		item.UpdatedAt = c.UpdatedAt.Format(time.RFC3339)
	}
	if viewer != nil {
		item.Liked = c.Likes.Contains(viewer.ID)
	}
	if u, ok := authors[c.AuthorID]; ok {
		item.Author = &dto.CommentAuthor{
			ID:        u.ID,
			Username:  u.Username,
			AvatarURL: u.AvatarURL,
			Role:      u.Role,
			Verified:  u.IsVerifiedProfessional(),
		}
	}

	for _, r := range n.Replies {
		item.Replies = append(item.Replies, buildCommentItem(r, authors, viewer))
	}
	return item
}
