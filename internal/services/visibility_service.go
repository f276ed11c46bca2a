package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/txmanager"
	"github.com/bionicotaku/lingo-services-media/internal/models/po"
	"github.com/bionicotaku/lingo-services-media/internal/repositories"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// VisibilityStore 抽象可见性用例对视频表的读写。
type VisibilityStore interface {
	GetByID(ctx context.Context, sess txmanager.Session, videoID uuid.UUID) (*po.Video, error)
	UpdateVisibility(ctx context.Context, sess txmanager.Session, videoID uuid.UUID, visibility po.Visibility) error
}

// VisibilityService 实现视频可见性切换用例。
// 约束：仅 ready 状态的视频可以公开。
type VisibilityService struct {
	videos VisibilityStore
	log    *log.Helper
}

// NewVisibilityService 创建 VisibilityService。
func NewVisibilityService(videos VisibilityStore, logger log.Logger) (*VisibilityService, error) {
	if videos == nil {
		return nil, errors.New("visibility service: video store is required")
	}
	return &VisibilityService{
		videos: videos,
		log:    log.NewHelper(logger),
	}, nil
}

// UpdateVisibility 切换视频可见性。
func (s *VisibilityService) UpdateVisibility(ctx context.Context, videoID uuid.UUID, visibility po.Visibility) (*po.Video, error) {
	if videoID == uuid.Nil {
		return nil, kerrors.BadRequest(ReasonVideoNotFound, "video_id is required")
	}
	if visibility != po.VisibilityPrivate && visibility != po.VisibilityPublic {
		return nil, kerrors.BadRequest(ReasonVisibilityInvalid, fmt.Sprintf("unknown visibility: %s", visibility))
	}

	video, err := s.videos.GetByID(ctx, nil, videoID)
	if err != nil {
		if errors.Is(err, repositories.ErrVideoNotFound) {
			return nil, kerrors.NotFound(ReasonVideoNotFound, "video not found")
		}
		return nil, kerrors.InternalServer(ReasonQueryVideoFailed, fmt.Sprintf("load video: %v", err))
	}

	if visibility == po.VisibilityPublic && !video.IsReady() {
		return nil, kerrors.Conflict(ReasonVisibilityInvalid, "video is not ready for public visibility")
	}

	if err := s.videos.UpdateVisibility(ctx, nil, videoID, visibility); err != nil {
		if errors.Is(err, repositories.ErrVideoNotFound) {
			// 条件更新未命中：读取与更新之间状态发生变化。
			return nil, kerrors.Conflict(ReasonVisibilityInvalid, "video state changed, retry")
		}
		return nil, fmt.Errorf("update visibility: %w", err)
	}

	video.Visibility = visibility
	s.log.WithContext(ctx).Infof("visibility updated: video_id=%s visibility=%s", videoID, visibility)
	return video, nil
}
