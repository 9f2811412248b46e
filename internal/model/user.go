package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 用户角色
const (
	RoleUser      = "user"
	RoleDoctor    = "doctor"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

type User struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	Username      string    `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Role          string    `gorm:"size:20;default:user;not null" json:"role"`
	AvatarURL     string    `gorm:"size:500" json:"avatar_url"`
	CommentCount  int       `gorm:"default:0" json:"comment_count"`
	Contributions int       `gorm:"default:0" json:"contributions"`
	Aura          int       `gorm:"default:0" json:"aura"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (u *User) DocID() string {
	return u.ID
}

// IsVerifiedProfessional 是否允许发表评论（认证医生或管理人员）
func (u *User) IsVerifiedProfessional() bool {
	switch u.Role {
	case RoleDoctor, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// IsStaff 是否为全局版主或管理员
func (u *User) IsStaff() bool {
	return u.Role == RoleModerator || u.Role == RoleAdmin
}
