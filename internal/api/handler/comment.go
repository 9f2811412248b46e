package handler

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/medforum_server/internal/model/dto"
	"github.com/qs3c/medforum_server/internal/pkg/response"
	"github.com/qs3c/medforum_server/internal/service"
)

type CommentHandler struct {
	commentService *service.CommentService
}

func NewCommentHandler(commentService *service.CommentService) *CommentHandler {
	return &CommentHandler{
		commentService: commentService,
	}
}

// List 获取帖子的评论楼层
// GET /api/v1/posts/:id/comments
func (h *CommentHandler) List(c *gin.Context) {
	view, err := h.commentService.ListThread(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, view)
}

// Create 发表评论或回复
// POST /api/v1/posts/:id/comments
func (h *CommentHandler) Create(c *gin.Context) {
	var req dto.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	req.PostID = c.Param("id")

	comment, err := h.commentService.Create(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.SuccessWithMessage(c, "评论成功", comment)
}

// Edit 编辑评论
// PUT /api/v1/comments/:id
func (h *CommentHandler) Edit(c *gin.Context) {
	var req dto.EditCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	comment, err := h.commentService.Edit(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}

	response.SuccessWithMessage(c, "编辑成功", comment)
}

// Delete 删除评论及其全部回复
// DELETE /api/v1/comments/:id?moderator=true
func (h *CommentHandler) Delete(c *gin.Context) {
	moderator := strings.EqualFold(c.Query("moderator"), "true")

	result, err := h.commentService.DeleteWithReplies(c.Request.Context(), c.Param("id"), moderator)
	if err != nil {
		writeError(c, err)
		return
	}

	response.SuccessWithMessage(c, "删除成功", result)
}

// Like 点赞或取消点赞
// POST /api/v1/comments/:id/like
func (h *CommentHandler) Like(c *gin.Context) {
	result, err := h.commentService.ToggleLike(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, result)
}

// Permissions 当前用户对评论的操作权限
// GET /api/v1/comments/:id/permissions
func (h *CommentHandler) Permissions(c *gin.Context) {
	caps, err := h.commentService.Permissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, caps)
}

// writeError 将服务层错误映射为业务错误码
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		response.NotFoundError(c, service.ErrNotFound.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		response.PermissionError(c, service.ErrPermissionDenied.Error())
	case errors.Is(err, service.ErrDepthLimitExceeded):
		response.DepthLimitError(c, "")
	case errors.Is(err, service.ErrValidation):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrStoreUnavailable):
		_ = c.Error(err)
		response.StoreUnavailableError(c, "")
	default:
		_ = c.Error(err)
		response.ServerError(c, "")
	}
}
