package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Comment struct {
	ID              string      `gorm:"primaryKey;size:36" json:"id"`
	Content         string      `gorm:"type:text;not null" json:"content"`
	AuthorID        string      `gorm:"size:36;not null;index" json:"author_id"`
	PostID          string      `gorm:"size:36;not null;index:idx_comments_post_live,priority:1" json:"post_id"`
	ParentCommentID *string     `gorm:"size:36;index" json:"parent_comment_id"`
	Likes           StringArray `gorm:"type:text" json:"likes"`
	LikeCount       int         `gorm:"default:0" json:"like_count"`
	IsDeleted       bool        `gorm:"default:false;index:idx_comments_post_live,priority:2" json:"is_deleted"`
	CreatedAt       time.Time   `gorm:"index:idx_comments_post_live,priority:3" json:"created_at"`
	UpdatedAt       *time.Time  `gorm:"autoUpdateTime:false" json:"updated_at,omitempty"`
	EditHistory     EditHistory `gorm:"type:text" json:"edit_history"`

	// 仅在软删除时写入，用于审计
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	DeletedBy       *string    `gorm:"size:36" json:"deleted_by,omitempty"`
	ModeratorDelete bool       `gorm:"default:false" json:"moderator_delete"`
	DeletedContent  *string    `gorm:"type:text" json:"deleted_content,omitempty"`
}

func (Comment) TableName() string {
	return "comments"
}

// BeforeCreate 由存储层分配文档 ID
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Likes == nil {
		c.Likes = StringArray{}
	}
	if c.EditHistory == nil {
		c.EditHistory = EditHistory{}
	}
	return nil
}

func (c *Comment) DocID() string {
	return c.ID
}

// IsRoot 是否为一级评论
func (c *Comment) IsRoot() bool {
	return c.ParentCommentID == nil || *c.ParentCommentID == ""
}
