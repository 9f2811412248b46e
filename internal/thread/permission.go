package thread

import (
	"github.com/qs3c/medforum_server/internal/model"
	"github.com/qs3c/medforum_server/internal/pkg/identity"
)

// Capabilities 当前用户对某条评论的操作权限
type Capabilities struct {
	IsAuthor    bool `json:"is_author"`
	CanEdit     bool `json:"can_edit"`
	CanDelete   bool `json:"can_delete"`
	CanModerate bool `json:"can_moderate"`
}

// Resolve 计算权限。编辑仅限作者；删除允许作者与管理方；forum 为 nil 表示帖子不属于任何社区。
func Resolve(actor *identity.User, comment *model.Comment, forum *model.Forum) Capabilities {
	if actor == nil || actor.ID == "" || comment == nil {
		return Capabilities{}
	}

	isAuthor := actor.ID == comment.AuthorID
	canModerate := actor.IsStaff()
	if forum != nil {
		canModerate = canModerate || forum.OwnerID == actor.ID || forum.Moderators.Contains(actor.ID)
	}

	return Capabilities{
		IsAuthor:    isAuthor,
		CanEdit:     isAuthor,
		CanDelete:   isAuthor || canModerate,
		CanModerate: canModerate,
	}
}
