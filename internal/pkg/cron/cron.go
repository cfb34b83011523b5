package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
)

// UploadCleaner 删除过期上传
type UploadCleaner interface {
	DeleteExpired(ctx context.Context, now time.Time, dryRun bool) (int, error)
}

type Service struct {
	uploads  UploadCleaner
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewService(uploads UploadCleaner, interval time.Duration, logger *slog.Logger) *Service {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{
		uploads:  uploads,
		interval: interval,
		logger:   logger.With("component", "cron"),
		now:      time.Now,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runCleanup()
	s.logger.Info("cron service started", "interval", s.interval)
}

// Stop 停止定时任务并等待当前清理结束
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
		s.logger.Info("cron service stopped")
	})
}

// runCleanup 按固定间隔清理过期上传
func (s *Service) runCleanup() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunNow(context.Background())
		}
	}
}

// RunNow 立即执行一次清理（用于测试或手动触发）
func (s *Service) RunNow(ctx context.Context) int {
	n, err := s.uploads.DeleteExpired(ctx, s.now(), false)
	if err != nil {
		s.logger.Error("failed to delete expired uploads", "deleted", n, sl.Err(err))
		return n
	}
	if n > 0 {
		s.logger.Info("expired uploads deleted", "count", n)
	}
	return n
}
