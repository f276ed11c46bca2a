// Package cleanup 以固定间隔回收废弃上传会话与孤立存储。
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-media/internal/services"

	"github.com/go-kratos/kratos/v2/log"
)

// Runner 周期性触发清理扫描。
type Runner struct {
	svc      *services.CleanupService
	interval time.Duration
	logger   *log.Helper
}

// NewRunner 构造清理 Runner。
func NewRunner(svc *services.CleanupService, cfg configloader.CleanupConfig, logger log.Logger) (*Runner, error) {
	if svc == nil {
		return nil, fmt.Errorf("cleanup: service is required")
	}
	interval := cfg.Interval.AsDuration()
	if interval <= 0 {
		return nil, fmt.Errorf("cleanup: interval must be positive")
	}
	return &Runner{
		svc:      svc,
		interval: interval,
		logger:   log.NewHelper(logger),
	}, nil
}

// Run 启动清理循环，直到 context 取消。
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep 执行一轮清理。单项失败只记日志，不中断循环。
func (r *Runner) sweep(ctx context.Context) {
	if _, err := r.svc.ExpireSessions(ctx); err != nil {
		r.logger.WithContext(ctx).Errorf("expire sessions sweep failed: %v", err)
	}
	if _, err := r.svc.ReapStaleVideos(ctx); err != nil {
		r.logger.WithContext(ctx).Errorf("reap stale videos sweep failed: %v", err)
	}
}
