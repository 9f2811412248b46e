package dto

// CreateCommentRequest 创建评论请求，PostID 取自路由参数
type CreateCommentRequest struct {
	PostID          string  `json:"-"`
	Content         string  `json:"content" binding:"required,min=2,max=500"`
	ParentCommentID *string `json:"parent_comment_id,omitempty"`
}

// EditCommentRequest 编辑评论请求
type EditCommentRequest struct {
	Content string `json:"content" binding:"required,min=2,max=500"`
}

// CommentAuthor 评论作者信息
type CommentAuthor struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	Role      string `json:"role"`
	Verified  bool   `json:"verified"`
}

// CommentItem 楼层中的一条评论
type CommentItem struct {
	ID              string         `json:"id"`
	PostID          string         `json:"post_id"`
	ParentCommentID *string        `json:"parent_comment_id"`
	Content         string         `json:"content"`
	ContentHTML     string         `json:"content_html"`
	Author          *CommentAuthor `json:"author,omitempty"`
	LikeCount       int            `json:"like_count"`
	Liked           bool           `json:"liked"`
	Edited          bool           `json:"edited"`
	Depth           int            `json:"depth"`
	ReplyCount      int            `json:"reply_count"`
	Replies         []*CommentItem `json:"replies"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at,omitempty"`
}

// ThreadView 帖子的评论楼层
type ThreadView struct {
	PostID   string         `json:"post_id"`
	Total    int            `json:"total"`
	Comments []*CommentItem `json:"comments"`
}

// LikeResponse 点赞响应
type LikeResponse struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"like_count"`
}

// DeleteResult 级联删除结果
type DeleteResult struct {
	DeletionType string `json:"deletion_type"` // user, moderator
	DeletedCount int    `json:"deleted_count"`
}

// ImageUploadResponse 图片上传响应
type ImageUploadResponse struct {
	URL string `json:"url"`
}

// ReconcileReport 计数校正结果
type ReconcileReport struct {
	PostsChecked  int  `json:"posts_checked"`
	PostsFixed    int  `json:"posts_fixed"`
	CommentsFixed int  `json:"comments_fixed"`
	PostsSkipped  int  `json:"posts_skipped"` // 修正期间计数被并发修改，留待下次
	DryRun        bool `json:"dry_run"`
}
