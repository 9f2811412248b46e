package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/qs3c/medforum_server/internal/pkg/docstore"
)

var (
	ErrNotFound           = errors.New("资源不存在")
	ErrPermissionDenied   = errors.New("无权执行该操作")
	ErrDepthLimitExceeded = errors.New("回复层级已达上限")
	ErrValidation         = errors.New("参数无效")
	ErrStoreUnavailable   = errors.New("存储服务暂不可用")
)

// storeError 把存储层错误归入业务错误分类；调用方取消的 context 原样返回
func storeError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%s: %w: %v", what, ErrStoreUnavailable, err)
	}
}
