package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/qs3c/medforum_server/config"
	"github.com/qs3c/medforum_server/internal/model/dto"
	"github.com/qs3c/medforum_server/internal/pkg/identity"
)

const defaultImageMaxSize = 5 << 20

var defaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// Uploader 图片存储，由 oss.Client 实现
type Uploader interface {
	UploadImage(userID string, data []byte, ext string) (string, error)
}

// ImageService 评论内嵌图片上传，存储后只返回 URL，评论内容中以 markdown 引用
type ImageService struct {
	uploader   Uploader
	identity   identity.Provider
	maxSize    int64
	extensions map[string]struct{}
	logger     *zap.Logger
}

func NewImageService(uploader Uploader, ident identity.Provider, cfg *config.Config, logger *zap.Logger) *ImageService {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxSize := cfg.Upload.MaxSize
	if maxSize <= 0 {
		maxSize = defaultImageMaxSize
	}
	exts := cfg.Upload.AllowedExtensions
	if len(exts) == 0 {
		exts = defaultImageExtensions
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	return &ImageService{
		uploader:   uploader,
		identity:   ident,
		maxSize:    maxSize,
		extensions: allowed,
		logger:     logger.Named("image"),
	}
}

func (s *ImageService) MaxSize() int64 {
	return s.maxSize
}

// Upload 校验并上传图片，仅可发表评论的用户可用
func (s *ImageService) Upload(ctx context.Context, filename string, data []byte) (*dto.ImageUploadResponse, error) {
	user, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, storeError(err, "current user")
	}
	if user == nil || !user.IsVerifiedProfessional() {
		return nil, ErrPermissionDenied
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := s.extensions[ext]; !ok {
		return nil, fmt.Errorf("unsupported image type %q: %w", ext, ErrValidation)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image: %w", ErrValidation)
	}
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("image exceeds %d bytes: %w", s.maxSize, ErrValidation)
	}
	if s.uploader == nil {
		return nil, fmt.Errorf("image storage not configured: %w", ErrStoreUnavailable)
	}

	url, err := s.uploader.UploadImage(user.ID, data, ext)
	if err != nil {
		s.logger.Error("image upload failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.logger.Info("image uploaded", zap.String("user_id", user.ID), zap.Int("size", len(data)))
	return &dto.ImageUploadResponse{URL: url}, nil
}
