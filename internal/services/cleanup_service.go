package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/configloader"
	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/txmanager"
	"github.com/bionicotaku/lingo-services-media/internal/models/po"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// CleanupVideoStore 抽象清理任务对视频表的访问。
type CleanupVideoStore interface {
	ListStaleUploading(ctx context.Context, sess txmanager.Session, olderThan time.Time, limit int32) ([]*po.Video, error)
	SoftDelete(ctx context.Context, sess txmanager.Session, videoID uuid.UUID) error
}

// CleanupSessionStore 抽象清理任务对上传会话表的访问。
type CleanupSessionStore interface {
	ExpireBatch(ctx context.Context, sess txmanager.Session, now time.Time, limit int32) ([]*po.UploadSession, error)
}

// CleanupStorage 定义清理任务所需的存储回收能力。
type CleanupStorage interface {
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// CleanupService 回收废弃的上传会话与孤立存储：
//   - 过期会话置为 expired 并终止存储侧分片上传；
//   - 超过保留期仍未完成上传的视频软删除并清空其存储前缀。
type CleanupService struct {
	videos    CleanupVideoStore
	sessions  CleanupSessionStore
	storage   CleanupStorage
	batchSize int32
	retention time.Duration
	log       *log.Helper
	now       func() time.Time
}

// NewCleanupService 创建 CleanupService。
func NewCleanupService(
	videos CleanupVideoStore,
	sessions CleanupSessionStore,
	storage CleanupStorage,
	cfg configloader.CleanupConfig,
	logger log.Logger,
) (*CleanupService, error) {
	switch {
	case videos == nil:
		return nil, errors.New("cleanup service: video store is required")
	case sessions == nil:
		return nil, errors.New("cleanup service: session store is required")
	case storage == nil:
		return nil, errors.New("cleanup service: storage is required")
	case cfg.SessionBatchSize <= 0:
		return nil, errors.New("cleanup service: batch size must be positive")
	case cfg.VideoRetention.AsDuration() <= 0:
		return nil, errors.New("cleanup service: video retention must be positive")
	}

	return &CleanupService{
		videos:    videos,
		sessions:  sessions,
		storage:   storage,
		batchSize: cfg.SessionBatchSize,
		retention: cfg.VideoRetention.AsDuration(),
		now:       time.Now,
		log:       log.NewHelper(logger),
	}, nil
}

// ExpireSessions 将过期会话批量置为 expired，并尽力终止存储侧分片上传。
// 条件更新只命中仍为 uploading 的会话，并发完成的会话不受影响。
func (s *CleanupService) ExpireSessions(ctx context.Context) (int, error) {
	expired, err := s.sessions.ExpireBatch(ctx, nil, s.now(), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}

	for _, session := range expired {
		if err := s.storage.AbortMultipartUpload(ctx, session.ObjectKey, session.ExternalUploadID); err != nil {
			// 分片可能已被终止或从未写入，失败不阻塞后续会话。
			s.log.WithContext(ctx).Warnf("abort expired multipart upload failed: session_id=%s err=%v", session.SessionID, err)
		}
	}

	if len(expired) > 0 {
		s.log.WithContext(ctx).Infof("expired %d upload sessions", len(expired))
	}
	return len(expired), nil
}

// ReapStaleVideos 软删除超过保留期仍停留在 uploading 的视频并清空其存储前缀。
func (s *CleanupService) ReapStaleVideos(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention)
	stale, err := s.videos.ListStaleUploading(ctx, nil, cutoff, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale videos: %w", err)
	}

	reaped := 0
	for _, video := range stale {
		prefix := fmt.Sprintf("videos/%s/", video.VideoID)
		if err := s.storage.DeletePrefix(ctx, prefix); err != nil {
			s.log.WithContext(ctx).Warnf("delete storage prefix failed: video_id=%s err=%v", video.VideoID, err)
			continue
		}
		if err := s.videos.SoftDelete(ctx, nil, video.VideoID); err != nil {
			s.log.WithContext(ctx).Errorf("soft delete stale video failed: video_id=%s err=%v", video.VideoID, err)
			continue
		}
		reaped++
	}

	if reaped > 0 {
		s.log.WithContext(ctx).Infof("reaped %d stale videos", reaped)
	}
	return reaped, nil
}
