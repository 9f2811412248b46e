package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Post struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	ForumID      *string   `gorm:"size:36;index" json:"forum_id,omitempty"`
	AuthorID     string    `gorm:"size:36;not null;index" json:"author_id"`
	Title        string    `gorm:"size:200;not null" json:"title"`
	Content      string    `gorm:"type:text" json:"content"`
	ImageURL     string    `gorm:"size:500" json:"image_url,omitempty"`
	CommentCount int       `gorm:"default:0" json:"comment_count"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Post) TableName() string {
	return "posts"
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p *Post) DocID() string {
	return p.ID
}

// Forum 社区（版块）
type Forum struct {
	ID         string      `gorm:"primaryKey;size:36" json:"id"`
	Name       string      `gorm:"size:100;not null" json:"name"`
	OwnerID    string      `gorm:"size:36;not null;index" json:"owner_id"`
	Moderators StringArray `gorm:"type:text" json:"moderators"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (Forum) TableName() string {
	return "forums"
}

func (f *Forum) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Moderators == nil {
		f.Moderators = StringArray{}
	}
	return nil
}

func (f *Forum) DocID() string {
	return f.ID
}
