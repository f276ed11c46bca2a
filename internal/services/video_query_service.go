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

// VideoReader 抽象查询用例对视频表的读取。
type VideoReader interface {
	GetByID(ctx context.Context, sess txmanager.Session, videoID uuid.UUID) (*po.Video, error)
}

// VideoQueryService 提供视频状态查询用例。
type VideoQueryService struct {
	videos VideoReader
	log    *log.Helper
}

// NewVideoQueryService 创建 VideoQueryService。
func NewVideoQueryService(videos VideoReader, logger log.Logger) (*VideoQueryService, error) {
	if videos == nil {
		return nil, errors.New("video query service: video reader is required")
	}
	return &VideoQueryService{
		videos: videos,
		log:    log.NewHelper(logger),
	}, nil
}

// GetVideo 查询单个视频的当前状态。
func (s *VideoQueryService) GetVideo(ctx context.Context, videoID uuid.UUID) (*po.Video, error) {
	if videoID == uuid.Nil {
		return nil, kerrors.BadRequest(ReasonVideoNotFound, "video_id is required")
	}

	video, err := s.videos.GetByID(ctx, nil, videoID)
	if err != nil {
		if errors.Is(err, repositories.ErrVideoNotFound) {
			return nil, kerrors.NotFound(ReasonVideoNotFound, "video not found")
		}
		return nil, kerrors.InternalServer(ReasonQueryVideoFailed, fmt.Sprintf("load video: %v", err))
	}
	return video, nil
}
