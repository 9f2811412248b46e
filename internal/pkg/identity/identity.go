// Package identity 提供当前用户身份：认证中间件把用户 ID 写入 context，
// Provider 按 ID 从 users 集合加载角色。
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/qs3c/medforum_server/internal/model"
	"github.com/qs3c/medforum_server/internal/pkg/docstore"
)

// User 当前用户
type User struct {
	ID   string
	Role string
}

// IsStaff 是否为全局版主或管理员
func (u *User) IsStaff() bool {
	return u != nil && (u.Role == model.RoleModerator || u.Role == model.RoleAdmin)
}

// IsVerifiedProfessional 是否具备发表评论的资格
func (u *User) IsVerifiedProfessional() bool {
	if u == nil {
		return false
	}
	switch u.Role {
	case model.RoleDoctor, model.RoleModerator, model.RoleAdmin:
		return true
	}
	return false
}

// Provider 解析当前请求的用户，未登录返回 (nil, nil)
type Provider interface {
	CurrentUser(ctx context.Context) (*User, error)
}

type ctxKey struct{}

// WithUserID 写入已认证的用户 ID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFrom 读取已认证的用户 ID
func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// StoreProvider 从文档存储加载用户角色
type StoreProvider struct {
	store docstore.Store
}

func NewStoreProvider(store docstore.Store) *StoreProvider {
	return &StoreProvider{store: store}
}

func (p *StoreProvider) CurrentUser(ctx context.Context) (*User, error) {
	id, ok := UserIDFrom(ctx)
	if !ok {
		return nil, nil
	}

	var u model.User
	err := p.store.Get(ctx, "users", id, &u)
	if errors.Is(err, docstore.ErrNotFound) {
		// 令牌有效但用户已不存在，按未登录处理
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load current user: %w", err)
	}
	return &User{ID: u.ID, Role: u.Role}, nil
}

// Static 固定身份，命令行任务与测试使用
type Static struct {
	User *User
}

func (s Static) CurrentUser(context.Context) (*User, error) {
	return s.User, nil
}
