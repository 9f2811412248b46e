package handler

import (
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/medforum_server/internal/pkg/response"
	"github.com/qs3c/medforum_server/internal/service"
)

type ImageHandler struct {
	imageService *service.ImageService
}

func NewImageHandler(imageService *service.ImageService) *ImageHandler {
	return &ImageHandler{
		imageService: imageService,
	}
}

// Upload 上传评论图片，返回 URL 供评论内容引用
// POST /api/v1/images
func (h *ImageHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.ParamError(c, "请选择文件")
		return
	}
	defer file.Close()

	maxSize := h.imageService.MaxSize()
	if header.Size > maxSize {
		response.ParamError(c, fmt.Sprintf("文件大小不能超过 %dKB", maxSize>>10))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		response.ServerError(c, "文件读取失败")
		return
	}

	result, err := h.imageService.Upload(c.Request.Context(), header.Filename, data)
	if err != nil {
		writeError(c, err)
		return
	}

	response.SuccessWithMessage(c, "上传成功", result)
}
