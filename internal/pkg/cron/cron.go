package cron

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/medforum_server/internal/model/dto"
)

// Reconciler 由 service.ReconcileService 实现
type Reconciler interface {
	Run(ctx context.Context, dryRun bool) (*dto.ReconcileReport, error)
}

type Service struct {
	reconciler Reconciler
	interval   time.Duration
	logger     *zap.Logger
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewService(reconciler Reconciler, interval time.Duration, logger *zap.Logger) *Service {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger.Named("cron"),
		stopChan:   make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	s.wg.Add(1)
	go s.runReconcile()
	s.logger.Info("cron service started", zap.Duration("reconcile_interval", s.interval))
}

// Stop 停止定时任务并等待正在执行的任务结束，可重复调用
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.logger.Info("cron service stopped")
}

// runReconcile 按固定间隔校正计数
func (s *Service) runReconcile() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.RunNow(); err != nil {
				s.logger.Error("scheduled reconcile failed", zap.Error(err))
			}
		}
	}
}

// RunNow 立即执行一次计数校正；Stop 会取消正在执行的校正
func (s *Service) RunNow() (*dto.ReconcileReport, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.reconciler.Run(ctx, false)
}
