package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/medforum_server/internal/model"
)

// TestUser 创建测试用户（默认为认证医生）
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	user := &model.User{
		Username: fmt.Sprintf("testuser_%d", time.Now().UnixNano()),
		Role:     model.RoleDoctor,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// WithRole 设置角色
func WithRole(role string) func(*model.User) {
	return func(u *model.User) {
		u.Role = role
	}
}

// WithAura 设置初始声望
func WithAura(aura int) func(*model.User) {
	return func(u *model.User) {
		u.Aura = aura
	}
}

// TestForum 创建测试社区
func TestForum(t *testing.T, db *gorm.DB, ownerID string, moderators ...string) *model.Forum {
	t.Helper()

	forum := &model.Forum{
		Name:       fmt.Sprintf("Test Forum %d", time.Now().UnixNano()%10000),
		OwnerID:    ownerID,
		Moderators: model.StringArray(moderators),
	}

	if err := db.Create(forum).Error; err != nil {
		t.Fatalf("Failed to create test forum: %v", err)
	}

	return forum
}

// TestPost 创建测试帖子
func TestPost(t *testing.T, db *gorm.DB, authorID string, opts ...func(*model.Post)) *model.Post {
	t.Helper()

	post := &model.Post{
		AuthorID: authorID,
		Title:    fmt.Sprintf("Test Post %d", time.Now().UnixNano()%10000),
	}

	for _, opt := range opts {
		opt(post)
	}

	if err := db.Create(post).Error; err != nil {
		t.Fatalf("Failed to create test post: %v", err)
	}

	return post
}

// InForum 将帖子挂到社区下
func InForum(forumID string) func(*model.Post) {
	return func(p *model.Post) {
		p.ForumID = &forumID
	}
}

// WithCommentCount 设置帖子初始评论数
func WithCommentCount(n int) func(*model.Post) {
	return func(p *model.Post) {
		p.CommentCount = n
	}
}

// TestComment 直接写库创建评论（不经过引擎，不更新计数）
func TestComment(t *testing.T, db *gorm.DB, authorID, postID, content string) *model.Comment {
	t.Helper()

	comment := &model.Comment{
		AuthorID: authorID,
		PostID:   postID,
		Content:  content,
	}

	if err := db.Create(comment).Error; err != nil {
		t.Fatalf("Failed to create test comment: %v", err)
	}

	return comment
}

// TestReply 直接写库创建回复，不校验层级，可用于构造异常数据
func TestReply(t *testing.T, db *gorm.DB, authorID, postID, parentID, content string) *model.Comment {
	t.Helper()

	comment := &model.Comment{
		AuthorID:        authorID,
		PostID:          postID,
		ParentCommentID: &parentID,
		Content:         content,
	}

	if err := db.Create(comment).Error; err != nil {
		t.Fatalf("Failed to create test reply: %v", err)
	}

	return comment
}

// ReloadComment 从库中重新读取评论
func ReloadComment(t *testing.T, db *gorm.DB, id string) *model.Comment {
	t.Helper()

	var c model.Comment
	if err := db.Where("id = ?", id).Take(&c).Error; err != nil {
		t.Fatalf("Failed to reload comment %s: %v", id, err)
	}
	return &c
}

// ReloadUser 从库中重新读取用户
func ReloadUser(t *testing.T, db *gorm.DB, id string) *model.User {
	t.Helper()

	var u model.User
	if err := db.Where("id = ?", id).Take(&u).Error; err != nil {
		t.Fatalf("Failed to reload user %s: %v", id, err)
	}
	return &u
}

// ReloadPost 从库中重新读取帖子
func ReloadPost(t *testing.T, db *gorm.DB, id string) *model.Post {
	t.Helper()

	var p model.Post
	if err := db.Where("id = ?", id).Take(&p).Error; err != nil {
		t.Fatalf("Failed to reload post %s: %v", id, err)
	}
	return &p
}
